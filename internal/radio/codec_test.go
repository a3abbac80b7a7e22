package radio

import (
	"math"
	"testing"

	generated "github.com/meshtastic/go/generated"
	"google.golang.org/protobuf/proto"
)

func mustMarshal(t *testing.T, m proto.Message) []byte {
	t.Helper()

	raw, err := proto.Marshal(m)
	if err != nil {
		t.Fatalf("marshal %T: %v", m, err)
	}

	return raw
}

func TestDecode_Text(t *testing.T) {
	got := Decode(PortTextMessage, []byte("hello mesh"))
	if got.Err != "" {
		t.Fatalf("unexpected decode error: %s", got.Err)
	}
	body, ok := got.Body.(TextBody)
	if !ok {
		t.Fatalf("expected text body, got %T", got.Body)
	}
	if body.Text != "hello mesh" {
		t.Fatalf("expected text %q, got %q", "hello mesh", body.Text)
	}
	if got.PortName != "TEXT_MESSAGE_APP" {
		t.Fatalf("unexpected port name %q", got.PortName)
	}
}

func TestDecode_TextInvalidUTF8(t *testing.T) {
	got := Decode(PortTextMessage, []byte{'o', 'k', 0xff, 0xfe})
	if got.Err == "" {
		t.Fatalf("expected decode error for invalid utf-8")
	}
	if _, ok := got.Body.(TextBody); !ok {
		t.Fatalf("expected text body, got %T", got.Body)
	}
}

func TestDecode_UnknownPortIsTotal(t *testing.T) {
	for _, port := range []PortNum{PortAdmin, PortWaypoint, 150, 9999, math.MaxUint32} {
		raw := []byte{0x01, 0x02, 0x03}
		got := Decode(port, raw)
		body, ok := got.Body.(UnknownBody)
		if !ok {
			t.Fatalf("expected unknown body for port %d, got %T", port, got.Body)
		}
		if got.Err != "" {
			t.Fatalf("expected no error for port %d, got %q", port, got.Err)
		}
		if string(body.Raw) != string(raw) {
			t.Fatalf("expected raw payload to pass through for port %d", port)
		}
	}

	if got := Decode(150, nil).Body.(UnknownBody).Label; got != "UNKNOWN_150" {
		t.Fatalf("expected synthesized label, got %q", got)
	}
	if got := Decode(PortWaypoint, nil).Body.(UnknownBody).Label; got != "WAYPOINT_APP" {
		t.Fatalf("expected known label, got %q", got)
	}
}

func TestDecode_Position(t *testing.T) {
	payload := mustMarshal(t, &generated.Position{
		LatitudeI:  proto.Int32(455000000),
		LongitudeI: proto.Int32(-1226000000),
		Altitude:   proto.Int32(120),
		Time:       1_735_000_000,
		SatsInView: 9,
	})

	got := Decode(PortPosition, payload)
	body, ok := got.Body.(PositionBody)
	if !ok {
		t.Fatalf("expected position body, got %T", got.Body)
	}
	if body.Latitude == nil || math.Abs(*body.Latitude-45.5) > 1e-9 {
		t.Fatalf("unexpected latitude: %v", body.Latitude)
	}
	if body.Longitude == nil || math.Abs(*body.Longitude+122.6) > 1e-9 {
		t.Fatalf("unexpected longitude: %v", body.Longitude)
	}
	if body.Altitude == nil || *body.Altitude != 120 {
		t.Fatalf("unexpected altitude: %v", body.Altitude)
	}
	if body.SatsInView != 9 || body.Time != 1_735_000_000 {
		t.Fatalf("unexpected sats/time: %+v", body)
	}
}

func TestDecode_NodeInfo(t *testing.T) {
	payload := mustMarshal(t, &generated.User{
		Id:         "!1234abcd",
		LongName:   "Hilltop Relay",
		ShortName:  "HTR",
		HwModel:    generated.HardwareModel(43),
		IsLicensed: true,
		Role:       generated.Config_DeviceConfig_Role(2),
	})

	got := Decode(PortNodeInfo, payload)
	body, ok := got.Body.(NodeInfoBody)
	if !ok {
		t.Fatalf("expected node info body, got %T", got.Body)
	}
	if body.ID != "!1234abcd" || body.LongName != "Hilltop Relay" || body.ShortName != "HTR" {
		t.Fatalf("unexpected identity: %+v", body)
	}
	if body.HardwareModel != "HELTEC_V3" || body.Role != "ROUTER" || !body.IsLicensed {
		t.Fatalf("unexpected hardware/role: %+v", body)
	}
}

func TestDecode_TelemetryPartial(t *testing.T) {
	payload := mustMarshal(t, &generated.Telemetry{
		Time: 1_735_000_000,
		Variant: &generated.Telemetry_DeviceMetrics{DeviceMetrics: &generated.DeviceMetrics{
			BatteryLevel:       proto.Uint32(87),
			ChannelUtilization: proto.Float32(12.5),
		}},
	})

	got := Decode(PortTelemetry, payload)
	body, ok := got.Body.(TelemetryBody)
	if !ok {
		t.Fatalf("expected telemetry body, got %T", got.Body)
	}
	if body.Device == nil || body.Device.BatteryLevel == nil || *body.Device.BatteryLevel != 87 {
		t.Fatalf("unexpected device metrics: %+v", body.Device)
	}
	if body.Device.Voltage != nil {
		t.Fatalf("expected voltage to stay unset")
	}
	if body.Device.ChannelUtilization == nil || *body.Device.ChannelUtilization != 12.5 {
		t.Fatalf("unexpected channel utilization: %v", body.Device.ChannelUtilization)
	}
	if body.Environment != nil {
		t.Fatalf("expected no environment metrics")
	}
}

func TestDecode_TracerouteAndNeighbors(t *testing.T) {
	trPayload := mustMarshal(t, &generated.RouteDiscovery{
		Route:      []uint32{0x11111111, 0x22222222},
		SnrTowards: []int32{24, -8, 12},
	})
	tr, ok := Decode(PortTraceroute, trPayload).Body.(TracerouteBody)
	if !ok {
		t.Fatalf("expected traceroute body")
	}
	if len(tr.Route) != 2 || tr.Route[1] != 0x22222222 || len(tr.SNRTowards) != 3 {
		t.Fatalf("unexpected traceroute: %+v", tr)
	}

	niPayload := mustMarshal(t, &generated.NeighborInfo{
		NodeId:                    0x11111111,
		NodeBroadcastIntervalSecs: 900,
		Neighbors: []*generated.Neighbor{
			{NodeId: 0x22222222, Snr: 6.5},
			{NodeId: 0x33333333, Snr: -3},
		},
	})
	ni, ok := Decode(PortNeighborInfo, niPayload).Body.(NeighborInfoBody)
	if !ok {
		t.Fatalf("expected neighbor info body")
	}
	if ni.NodeID != 0x11111111 || ni.BroadcastIntervalSecs != 900 || len(ni.Neighbors) != 2 {
		t.Fatalf("unexpected neighbor info: %+v", ni)
	}
	if ni.Neighbors[1].SNR != -3 {
		t.Fatalf("unexpected neighbor snr: %v", ni.Neighbors[1].SNR)
	}
}

func TestDecode_Routing(t *testing.T) {
	got := Decode(PortRouting, mustMarshal(t, &generated.Routing{
		Variant: &generated.Routing_ErrorReason{ErrorReason: generated.Routing_NO_ROUTE},
	}))
	body, ok := got.Body.(RoutingBody)
	if !ok {
		t.Fatalf("expected routing body, got %T", got.Body)
	}
	if body.ErrorReason == nil || body.ErrorReason.String() != "NO_ROUTE" {
		t.Fatalf("unexpected error reason: %v", body.ErrorReason)
	}
	if RoutingError(200).String() != "ROUTING_ERROR_200" {
		t.Fatalf("expected fallback routing error name")
	}
}

func TestDecode_MalformedNestedPayload(t *testing.T) {
	got := Decode(PortPosition, []byte{0x0d, 0x01, 0x02})
	if got.Err == "" {
		t.Fatalf("expected decode error for truncated position")
	}
	if _, ok := got.Body.(PositionBody); !ok {
		t.Fatalf("expected empty position body, got %T", got.Body)
	}
}

func TestEnumNameFallbacks(t *testing.T) {
	if got := HardwareModelName(9); got != "RAK4631" {
		t.Fatalf("expected RAK4631, got %q", got)
	}
	if got := HardwareModelName(7777); got != "HW_7777" {
		t.Fatalf("expected HW_7777, got %q", got)
	}
	if got := RoleName(42); got != "ROLE_42" {
		t.Fatalf("expected ROLE_42, got %q", got)
	}
}
