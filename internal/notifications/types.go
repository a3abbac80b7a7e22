package notifications

// Payload is one user-facing notification. Urgent payloads are shown with an audible alert
// where the backend supports it.
type Payload struct {
	Title   string
	Content string
	Urgent  bool
}

// Sender delivers notifications to the operator. Implementations must not block for long:
// they are called from the bus subscriber goroutine.
type Sender interface {
	Send(payload Payload)
}
