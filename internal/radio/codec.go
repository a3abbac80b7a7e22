package radio

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	generated "github.com/meshtastic/go/generated"
	"google.golang.org/protobuf/proto"
)

const positionScale = 1e-7

var errInvalidUTF8 = errors.New("text payload is not valid utf-8")

// Body is the decoded application payload. The set of implementations is closed.
type Body interface {
	isBody()
}

type TextBody struct {
	Text string
}

type PositionBody struct {
	Latitude      *float64
	Longitude     *float64
	Altitude      *int32
	Time          uint32
	SatsInView    uint32
	GroundSpeed   *uint32
	GroundTrack   *uint32
	PrecisionBits uint32
}

type NodeInfoBody struct {
	ID            string
	LongName      string
	ShortName     string
	HardwareModel string
	HardwareID    uint32
	IsLicensed    bool
	Role          string
	PublicKey     []byte
}

type DeviceMetrics struct {
	BatteryLevel       *uint32
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
	UptimeSeconds      *uint32
}

type EnvironmentMetrics struct {
	Temperature        *float64
	RelativeHumidity   *float64
	BarometricPressure *float64
	GasResistance      *float64
	Voltage            *float64
	Current            *float64
	IAQ                *uint32
}

type TelemetryBody struct {
	Time        uint32
	Device      *DeviceMetrics
	Environment *EnvironmentMetrics
}

// RouteDiscovery lists the node numbers a traceroute traversed and the SNR (dB * 4) per hop.
type RouteDiscovery struct {
	Route      []uint32
	SNRTowards []int32
	RouteBack  []uint32
	SNRBack    []int32
}

type TracerouteBody struct {
	RouteDiscovery
}

type NeighborEntry struct {
	NodeID uint32
	SNR    float64
}

type NeighborInfoBody struct {
	NodeID                uint32
	LastSentByID          uint32
	BroadcastIntervalSecs uint32
	Neighbors             []NeighborEntry
}

type RoutingBody struct {
	ErrorReason  *RoutingError
	RouteRequest *RouteDiscovery
	RouteReply   *RouteDiscovery
}

// UnknownBody carries ports this codec does not interpret.
type UnknownBody struct {
	Port  PortNum
	Label string
	Raw   []byte
}

func (TextBody) isBody()         {}
func (PositionBody) isBody()     {}
func (NodeInfoBody) isBody()     {}
func (TelemetryBody) isBody()    {}
func (TracerouteBody) isBody()   {}
func (NeighborInfoBody) isBody() {}
func (RoutingBody) isBody()      {}
func (UnknownBody) isBody()      {}

// Decoded is the result of decoding one Data payload.
type Decoded struct {
	Port     PortNum
	PortName string
	Body     Body
	Raw      []byte
	// Err is set when the payload or a nested field failed to decode. Body still holds what
	// could be read.
	Err string
}

// Decode interprets payload according to port. It never fails: malformed payloads produce a
// partial Body and a non-empty Err.
func Decode(port PortNum, payload []byte) Decoded {
	out := Decoded{Port: port, PortName: port.String(), Raw: payload}

	var err error
	switch port {
	case PortTextMessage:
		out.Body, err = decodeText(payload)
	case PortPosition:
		out.Body, err = decodePosition(payload)
	case PortNodeInfo:
		out.Body, err = decodeNodeInfo(payload)
	case PortRouting:
		out.Body, err = decodeRouting(payload)
	case PortTelemetry:
		out.Body, err = decodeTelemetry(payload)
	case PortTraceroute:
		out.Body, err = decodeTraceroute(payload)
	case PortNeighborInfo:
		out.Body, err = decodeNeighborInfo(payload)
	default:
		out.Body = UnknownBody{Port: port, Label: port.String(), Raw: payload}
	}
	if err != nil {
		out.Err = fmt.Sprintf("decode %s: %v", port, err)
	}

	return out
}

func decodeText(payload []byte) (Body, error) {
	if !utf8.Valid(payload) {
		return TextBody{Text: strings.ToValidUTF8(string(payload), "\uFFFD")}, errInvalidUTF8
	}

	return TextBody{Text: string(payload)}, nil
}

func decodePosition(payload []byte) (Body, error) {
	var pos generated.Position
	if err := proto.Unmarshal(payload, &pos); err != nil {
		return PositionBody{}, err
	}

	out := PositionBody{
		Altitude:      pos.Altitude,
		Time:          pos.GetTime(),
		SatsInView:    pos.GetSatsInView(),
		GroundSpeed:   pos.GroundSpeed,
		GroundTrack:   pos.GroundTrack,
		PrecisionBits: pos.GetPrecisionBits(),
	}
	if out.Time == 0 {
		out.Time = pos.GetTimestamp()
	}
	if pos.LatitudeI != nil {
		v := float64(pos.GetLatitudeI()) * positionScale
		out.Latitude = &v
	}
	if pos.LongitudeI != nil {
		v := float64(pos.GetLongitudeI()) * positionScale
		out.Longitude = &v
	}

	return out, nil
}

func decodeNodeInfo(payload []byte) (Body, error) {
	var user generated.User
	if err := proto.Unmarshal(payload, &user); err != nil {
		return NodeInfoBody{}, err
	}

	return NodeInfoBody{
		ID:            user.GetId(),
		LongName:      user.GetLongName(),
		ShortName:     user.GetShortName(),
		HardwareModel: HardwareModelName(uint32(user.GetHwModel())),
		HardwareID:    uint32(user.GetHwModel()),
		IsLicensed:    user.GetIsLicensed(),
		Role:          RoleName(uint32(user.GetRole())),
		PublicKey:     user.GetPublicKey(),
	}, nil
}

func decodeTelemetry(payload []byte) (Body, error) {
	var tm generated.Telemetry
	if err := proto.Unmarshal(payload, &tm); err != nil {
		return TelemetryBody{}, err
	}

	out := TelemetryBody{Time: tm.GetTime()}
	if dm := tm.GetDeviceMetrics(); dm != nil {
		out.Device = &DeviceMetrics{
			BatteryLevel:       dm.BatteryLevel,
			Voltage:            widen(dm.Voltage),
			ChannelUtilization: widen(dm.ChannelUtilization),
			AirUtilTx:          widen(dm.AirUtilTx),
			UptimeSeconds:      dm.UptimeSeconds,
		}
	}
	if em := tm.GetEnvironmentMetrics(); em != nil {
		out.Environment = &EnvironmentMetrics{
			Temperature:        widen(em.Temperature),
			RelativeHumidity:   widen(em.RelativeHumidity),
			BarometricPressure: widen(em.BarometricPressure),
			GasResistance:      widen(em.GasResistance),
			Voltage:            widen(em.Voltage),
			Current:            widen(em.Current),
			IAQ:                em.Iaq,
		}
	}

	return out, nil
}

func decodeTraceroute(payload []byte) (Body, error) {
	var rd generated.RouteDiscovery
	if err := proto.Unmarshal(payload, &rd); err != nil {
		return TracerouteBody{}, err
	}

	return TracerouteBody{RouteDiscovery: routeFromWire(&rd)}, nil
}

func decodeNeighborInfo(payload []byte) (Body, error) {
	var ni generated.NeighborInfo
	if err := proto.Unmarshal(payload, &ni); err != nil {
		return NeighborInfoBody{}, err
	}

	out := NeighborInfoBody{
		NodeID:                ni.GetNodeId(),
		LastSentByID:          ni.GetLastSentById(),
		BroadcastIntervalSecs: ni.GetNodeBroadcastIntervalSecs(),
	}
	for _, n := range ni.GetNeighbors() {
		out.Neighbors = append(out.Neighbors, NeighborEntry{NodeID: n.GetNodeId(), SNR: float64(n.GetSnr())})
	}

	return out, nil
}

func decodeRouting(payload []byte) (Body, error) {
	var r generated.Routing
	if err := proto.Unmarshal(payload, &r); err != nil {
		return RoutingBody{}, err
	}

	var out RoutingBody
	switch v := r.GetVariant().(type) {
	case *generated.Routing_ErrorReason:
		reason := RoutingError(v.ErrorReason)
		out.ErrorReason = &reason
	case *generated.Routing_RouteRequest:
		rd := routeFromWire(v.RouteRequest)
		out.RouteRequest = &rd
	case *generated.Routing_RouteReply:
		rd := routeFromWire(v.RouteReply)
		out.RouteReply = &rd
	}

	return out, nil
}

func routeFromWire(rd *generated.RouteDiscovery) RouteDiscovery {
	return RouteDiscovery{
		Route:      rd.GetRoute(),
		SNRTowards: rd.GetSnrTowards(),
		RouteBack:  rd.GetRouteBack(),
		SNRBack:    rd.GetSnrBack(),
	}
}

func widen(v *float32) *float64 {
	if v == nil {
		return nil
	}
	w := float64(*v)

	return &w
}
