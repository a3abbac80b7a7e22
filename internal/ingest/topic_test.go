package ingest

import "testing"

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  Topic
	}{
		{
			topic: "msh/US/2/e/LongFast/!abcd",
			want:  Topic{Root: "msh", Region: "US", Channel: "LongFast", Kind: KindEncrypted, NodeID: "!abcd"},
		},
		{
			topic: "msh/US/2/json/LongFast/!ABCD1234",
			want:  Topic{Root: "msh", Region: "US", Channel: "LongFast", Kind: KindJSON, NodeID: "!abcd1234"},
		},
		{
			topic: "msh/US/2/stat/!abcd",
			want:  Topic{Root: "msh", Region: "US", Kind: KindStatus, NodeID: "!abcd"},
		},
		{
			topic: "msh/US/LongFast/json/!0000beef",
			want:  Topic{Root: "msh", Region: "US", Channel: "LongFast", Kind: KindJSON, NodeID: "!0000beef"},
		},
		{
			topic: "msh/US/LongFast/something",
			want:  Topic{Root: "msh", Region: "US", Channel: "LongFast", Kind: KindRaw},
		},
		{
			topic: "msh",
			want:  Topic{Root: "msh", Kind: KindRaw},
		},
	}

	for _, tc := range tests {
		if got := ParseTopic(tc.topic); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.topic, tc.want, got)
		}
	}
}

func TestSubscriptionFilters(t *testing.T) {
	got := SubscriptionFilters("msh/US/", "LongFast")
	want := []string{
		"msh/US/LongFast/#",
		"msh/US/2/json/#",
		"msh/US/+/json/#",
		"msh/US/2/e/#",
		"msh/US/2/stat/#",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d filters, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("filter %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestJSONPublishTopic(t *testing.T) {
	if got := JSONPublishTopic("msh/US", "LongFast", "!0000beef"); got != "msh/US/LongFast/json/!0000beef" {
		t.Fatalf("unexpected topic %q", got)
	}
}
