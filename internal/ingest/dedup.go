package ingest

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Deduplicator remembers message ids for a trailing window. The same transmission is usually
// republished by several gateways, so only the first copy goes through.
type Deduplicator struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func NewDeduplicator(size int, window time.Duration) *Deduplicator {
	if size <= 0 {
		size = 10000
	}

	return &Deduplicator{seen: expirable.NewLRU[string, struct{}](size, nil, window)}
}

// Seen records key and reports whether it was already recorded within the window.
func (d *Deduplicator) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen.Get(key); ok {
		return true
	}
	d.seen.Add(key, struct{}{})

	return false
}

func (d *Deduplicator) Len() int {
	return d.seen.Len()
}

// PacketKey identifies a packet by sender and protocol packet id.
func PacketKey(sender uint32, packetID uint64) string {
	return strconv.FormatUint(uint64(sender), 16) + ":" + strconv.FormatUint(packetID, 10)
}

// ContentKey identifies a message without a packet id by a hash of its topic and payload.
func ContentKey(topic string, payload []byte) string {
	h := xxhash.New()
	_, _ = h.WriteString(topic)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(payload)

	return "h:" + strconv.FormatUint(h.Sum64(), 16)
}
