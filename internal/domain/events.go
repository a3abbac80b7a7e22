package domain

// NodeEvent is published after a node update has been merged into the store.
type NodeEvent struct {
	Node  Node
	IsNew bool
}

// AlertAck is published when an alert gets acknowledged.
type AlertAck struct {
	ID string
}
