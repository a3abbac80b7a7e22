package ingest

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/radio"
)

var errInvalidJSON = errors.New("invalid json payload")

// parseJSONMessage reads the JSON convenience format published by gateways with JSON output
// enabled. Both the firmware's snake_case fields and camelCase variants are accepted.
func parseJSONMessage(payload []byte, now time.Time) (packet, error) {
	if !utf8.Valid(payload) || !gjson.ValidBytes(payload) {
		return packet{}, errInvalidJSON
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return packet{}, errInvalidJSON
	}

	from, ok := jsonNodeNum(root.Get("from"))
	if !ok {
		return packet{}, errors.New("json message without sender")
	}
	to, ok := jsonNodeNum(root.Get("to"))
	if !ok {
		to = domain.BroadcastNodeNum
	}

	pkt := packet{
		From:     from,
		To:       to,
		ID:       root.Get("id").Uint(),
		Channel:  int(root.Get("channel").Int()),
		SNR:      root.Get("snr").Float(),
		RSSI:     int(root.Get("rssi").Int()),
		HopStart: uint32(root.Get("hop_start").Uint()),
		HopLimit: uint32(root.Get("hop_limit").Uint()),
		At:       now,
		Source:   KindJSON,
	}
	if hops := root.Get("hops_away"); hops.Exists() {
		h := int(hops.Int())
		pkt.Hops = &h
	}
	if ts := root.Get("timestamp").Int(); ts > 0 {
		pkt.RxTime = time.Unix(ts, 0)
	}

	body := root.Get("payload")
	pkt.Port, pkt.Body = jsonBody(strings.ToLower(root.Get("type").String()), body)

	return pkt, nil
}

func jsonBody(kind string, payload gjson.Result) (radio.PortNum, radio.Body) {
	switch {
	case kind == "text" || kind == "sendtext" || payload.Get("text").Exists():
		text := payload.Get("text")
		if !text.Exists() {
			text = payload
		}
		return radio.PortTextMessage, radio.TextBody{Text: text.String()}
	case kind == "position" || payload.Get("position").Exists():
		return radio.PortPosition, jsonPosition(nested(payload, "position"))
	case kind == "telemetry" || payload.Get("telemetry").Exists():
		return radio.PortTelemetry, jsonTelemetry(nested(payload, "telemetry"))
	case kind == "nodeinfo" || payload.Get("user").Exists():
		return radio.PortNodeInfo, jsonNodeInfo(nested(payload, "user"))
	case kind == "neighborinfo":
		return radio.PortNeighborInfo, jsonNeighborInfo(payload)
	case kind == "traceroute":
		return radio.PortTraceroute, jsonTraceroute(payload)
	default:
		return radio.PortUnknown, radio.UnknownBody{Label: kind, Raw: []byte(payload.Raw)}
	}
}

func nested(payload gjson.Result, key string) gjson.Result {
	if inner := payload.Get(key); inner.IsObject() {
		return inner
	}

	return payload
}

func jsonPosition(p gjson.Result) radio.PositionBody {
	var body radio.PositionBody
	if lat, ok := jsonCoordinate(p, "latitude", "latitude_i", "latitudeI"); ok {
		body.Latitude = &lat
	}
	if lon, ok := jsonCoordinate(p, "longitude", "longitude_i", "longitudeI"); ok {
		body.Longitude = &lon
	}
	if alt := p.Get("altitude"); alt.Exists() {
		v := int32(alt.Int())
		body.Altitude = &v
	}
	body.Time = uint32(p.Get("time").Uint())
	body.SatsInView = uint32(first(p, "sats_in_view", "satsInView").Uint())
	body.PrecisionBits = uint32(first(p, "precision_bits", "precisionBits").Uint())

	return body
}

// jsonCoordinate prefers a plain degree value and falls back to the 1e-7 scaled integer form.
func jsonCoordinate(p gjson.Result, plain string, scaled ...string) (float64, bool) {
	if v := p.Get(plain); v.Exists() && v.Float() != 0 {
		return v.Float(), true
	}
	if v := first(p, scaled...); v.Exists() {
		return float64(v.Int()) * 1e-7, true
	}

	return 0, false
}

func jsonTelemetry(t gjson.Result) radio.TelemetryBody {
	body := radio.TelemetryBody{Time: uint32(t.Get("time").Uint())}

	dm := t
	if inner := first(t, "device_metrics", "deviceMetrics"); inner.IsObject() {
		dm = inner
	}
	device := radio.DeviceMetrics{
		BatteryLevel:       optUint(first(dm, "battery_level", "batteryLevel")),
		Voltage:            optFloat(dm.Get("voltage")),
		ChannelUtilization: optFloat(first(dm, "channel_utilization", "channelUtilization")),
		AirUtilTx:          optFloat(first(dm, "air_util_tx", "airUtilTx")),
		UptimeSeconds:      optUint(first(dm, "uptime_seconds", "uptimeSeconds")),
	}
	if device != (radio.DeviceMetrics{}) {
		body.Device = &device
	}

	em := t
	if inner := first(t, "environment_metrics", "environmentMetrics"); inner.IsObject() {
		em = inner
	}
	env := radio.EnvironmentMetrics{
		Temperature:        optFloat(em.Get("temperature")),
		RelativeHumidity:   optFloat(first(em, "relative_humidity", "relativeHumidity")),
		BarometricPressure: optFloat(first(em, "barometric_pressure", "barometricPressure")),
		GasResistance:      optFloat(first(em, "gas_resistance", "gasResistance")),
	}
	if env != (radio.EnvironmentMetrics{}) {
		body.Environment = &env
	}

	return body
}

func jsonNodeInfo(u gjson.Result) radio.NodeInfoBody {
	body := radio.NodeInfoBody{
		ID:         u.Get("id").String(),
		LongName:   first(u, "longname", "longName", "long_name").String(),
		ShortName:  first(u, "shortname", "shortName", "short_name").String(),
		IsLicensed: first(u, "is_licensed", "isLicensed").Bool(),
	}
	if hw := first(u, "hardware", "hwModel", "hw_model"); hw.Exists() {
		if hw.Type == gjson.Number {
			body.HardwareModel = radio.HardwareModelName(uint32(hw.Uint()))
		} else {
			body.HardwareModel = hw.String()
		}
	}
	if role := u.Get("role"); role.Exists() {
		if role.Type == gjson.Number {
			body.Role = radio.RoleName(uint32(role.Uint()))
		} else {
			body.Role = role.String()
		}
	}

	return body
}

func jsonNeighborInfo(p gjson.Result) radio.NeighborInfoBody {
	body := radio.NeighborInfoBody{
		NodeID:                uint32(first(p, "node_id", "nodeId").Uint()),
		BroadcastIntervalSecs: uint32(first(p, "node_broadcast_interval_secs", "nodeBroadcastIntervalSecs").Uint()),
	}
	first(p, "neighbors").ForEach(func(_, n gjson.Result) bool {
		body.Neighbors = append(body.Neighbors, radio.NeighborEntry{
			NodeID: uint32(first(n, "node_id", "nodeId").Uint()),
			SNR:    n.Get("snr").Float(),
		})
		return true
	})

	return body
}

func jsonTraceroute(p gjson.Result) radio.TracerouteBody {
	var body radio.TracerouteBody
	p.Get("route").ForEach(func(_, v gjson.Result) bool {
		body.Route = append(body.Route, uint32(v.Uint()))
		return true
	})
	first(p, "snr_towards", "snrTowards").ForEach(func(_, v gjson.Result) bool {
		body.SNRTowards = append(body.SNRTowards, int32(v.Int()))
		return true
	})
	first(p, "route_back", "routeBack").ForEach(func(_, v gjson.Result) bool {
		body.RouteBack = append(body.RouteBack, uint32(v.Uint()))
		return true
	})
	first(p, "snr_back", "snrBack").ForEach(func(_, v gjson.Result) bool {
		body.SNRBack = append(body.SNRBack, int32(v.Int()))
		return true
	})

	return body
}

// jsonNodeNum accepts a node number or a "!xxxxxxxx" string.
func jsonNodeNum(v gjson.Result) (uint32, bool) {
	switch v.Type {
	case gjson.Number:
		n := v.Uint()
		return uint32(n), n > 0 && n <= uint64(domain.BroadcastNodeNum)
	case gjson.String:
		if strings.EqualFold(v.Str, "^all") {
			return domain.BroadcastNodeNum, true
		}
		n, err := domain.ParseNodeID(v.Str)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}

func first(v gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() {
			return r
		}
	}

	return gjson.Result{}
}

func optFloat(v gjson.Result) *float64 {
	if !v.Exists() || v.Type != gjson.Number {
		return nil
	}
	f := v.Float()

	return &f
}

func optUint(v gjson.Result) *uint32 {
	if !v.Exists() || v.Type != gjson.Number {
		return nil
	}
	u := uint32(v.Uint())

	return &u
}
