package ingest

import (
	"strconv"
	"testing"
	"time"

	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/domain"
)

func newTestDetector(now *time.Time) *AlertDetector {
	d := NewAlertDetector(config.Default().Alerts)
	d.now = func() time.Time { return *now }
	seq := 0
	d.newID = func() string {
		seq++
		return "alert-" + strconv.Itoa(seq)
	}

	return d
}

func TestAlertDetector_EmergencyKeyword(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDetector(&now)

	msg := domain.Message{SenderID: "!00000001", SenderName: "Alice", Text: "SOS, need help", Type: domain.MessageTypeText}
	alerts := d.CheckMessage(msg)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Type != domain.AlertTypeEmergency || a.Severity != 4 || a.Metadata["keyword"] != "sos" {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.Message != "Alice: SOS, need help" || a.SourceNode != "!00000001" || a.ID != "alert-1" {
		t.Fatalf("unexpected alert fields %+v", a)
	}

	if again := d.CheckMessage(msg); len(again) != 1 {
		t.Fatalf("expected emergencies to bypass the cooldown")
	}
	if none := d.CheckMessage(domain.Message{Text: "all good", Type: domain.MessageTypeText}); len(none) != 0 {
		t.Fatalf("expected no alert, got %+v", none)
	}
	out := msg
	out.Direction = domain.MessageDirectionOut
	if none := d.CheckMessage(out); len(none) != 0 {
		t.Fatalf("expected outgoing messages to be ignored")
	}
}

func TestAlertDetector_NodeChecksAndCooldown(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDetector(&now)

	battery := uint32(10)
	util := 45.0
	snr := -18.0
	node := domain.Node{NodeID: "!00000001", BatteryLevel: &battery, ChannelUtilization: &util, SNR: &snr}

	alerts := d.CheckNode(node, true)
	got := map[domain.AlertType]int{}
	for _, a := range alerts {
		got[a.Type] = a.Severity
	}
	want := map[domain.AlertType]int{
		domain.AlertTypeNewNode:    1,
		domain.AlertTypeBattery:    2,
		domain.AlertTypeCongestion: 3,
		domain.AlertTypeSNR:        2,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("expected %s severity %d, got %d", k, v, got[k])
		}
	}

	now = now.Add(time.Minute)
	if again := d.CheckNode(node, false); len(again) != 0 {
		t.Fatalf("expected cooldown to suppress alerts, got %+v", again)
	}

	now = now.Add(5 * time.Minute)
	if again := d.CheckNode(node, false); len(again) != 3 {
		t.Fatalf("expected alerts after cooldown, got %+v", again)
	}
}

func TestAlertDetector_Thresholds(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDetector(&now)

	zero := uint32(0)
	full := uint32(20)
	util := 30.0
	node := domain.Node{NodeID: "!00000002", BatteryLevel: &zero, ChannelUtilization: &util}
	alerts := d.CheckNode(node, false)
	if len(alerts) != 1 || alerts[0].Type != domain.AlertTypeCongestion || alerts[0].Severity != 2 {
		t.Fatalf("expected one warning congestion alert, got %+v", alerts)
	}

	node = domain.Node{NodeID: "!00000003", BatteryLevel: &full}
	if alerts := d.CheckNode(node, false); len(alerts) != 0 {
		t.Fatalf("expected battery at threshold not to alert, got %+v", alerts)
	}
}

func TestAlertDetector_ForgetBefore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDetector(&now)
	d.CheckNode(domain.Node{NodeID: "!00000001"}, true)

	d.ForgetBefore(now.Add(time.Second))
	if len(d.last) != 0 {
		t.Fatalf("expected cooldown entries to be dropped, got %d", len(d.last))
	}
}
