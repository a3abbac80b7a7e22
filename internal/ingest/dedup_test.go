package ingest

import (
	"testing"
	"time"
)

func TestDeduplicator_Seen(t *testing.T) {
	d := NewDeduplicator(10, time.Minute)

	if d.Seen("a") {
		t.Fatalf("expected first sighting to be new")
	}
	if !d.Seen("a") {
		t.Fatalf("expected second sighting to be a duplicate")
	}
	if d.Seen("b") {
		t.Fatalf("expected other key to be new")
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", d.Len())
	}
}

func TestDeduplicator_Bounded(t *testing.T) {
	d := NewDeduplicator(2, time.Minute)
	d.Seen("a")
	d.Seen("b")
	d.Seen("c")

	if d.Len() != 2 {
		t.Fatalf("expected size bound 2, got %d", d.Len())
	}
	if d.Seen("a") {
		t.Fatalf("expected evicted key to be new again")
	}
}

func TestDedupKeys(t *testing.T) {
	if got := PacketKey(0x12345678, 99); got != "12345678:99" {
		t.Fatalf("unexpected packet key %q", got)
	}

	a := ContentKey("msh/US/2/json/LongFast/!1", []byte("{}"))
	b := ContentKey("msh/US/2/json/LongFast/!2", []byte("{}"))
	if a == b {
		t.Fatalf("expected topic to be part of the content key")
	}
	if a != ContentKey("msh/US/2/json/LongFast/!1", []byte("{}")) {
		t.Fatalf("expected content key to be deterministic")
	}
}
