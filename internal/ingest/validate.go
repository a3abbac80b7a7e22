package ingest

import (
	"math"
	"time"

	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/radio"
)

// fieldCheck collects the number of values dropped while building an update.
type fieldCheck struct {
	invalid int
}

func (c *fieldCheck) position(node *domain.Node, lat, lon *float64, at time.Time) bool {
	if lat == nil || lon == nil {
		return false
	}
	if *lat == 0 && *lon == 0 {
		return false
	}
	if !domain.IsValidCoordinate(*lat, *lon) {
		c.invalid++
		return false
	}
	node.Latitude = float64Ptr(*lat)
	node.Longitude = float64Ptr(*lon)
	node.PositionAt = at

	return true
}

func (c *fieldCheck) percent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if !isFinite(*v) || !domain.IsValidPercent(*v) {
		c.invalid++
		return nil
	}

	return float64Ptr(*v)
}

func (c *fieldCheck) battery(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	if !domain.IsValidBatteryLevel(*v) {
		c.invalid++
		return nil
	}
	out := *v

	return &out
}

func (c *fieldCheck) snr(v float64) *float64 {
	if v == 0 {
		return nil
	}
	if !domain.IsValidSNR(v) {
		c.invalid++
		return nil
	}

	return float64Ptr(v)
}

func (c *fieldCheck) rssi(v int) *int {
	if v == 0 {
		return nil
	}
	if !domain.IsValidRSSI(v) {
		c.invalid++
		return nil
	}

	return &v
}

// positionUpdate builds a node update from a position report. ok is false when nothing usable
// remains after validation.
func (c *fieldCheck) positionUpdate(nodeID string, body radio.PositionBody, at time.Time) (domain.Node, bool) {
	node := domain.Node{NodeID: nodeID}
	if !c.position(&node, body.Latitude, body.Longitude, at) {
		return node, false
	}
	if body.Altitude != nil {
		alt := *body.Altitude
		node.Altitude = &alt
	}
	if body.PrecisionBits > 0 {
		bits := body.PrecisionBits
		node.PositionPrecision = &bits
	}

	return node, true
}

func (c *fieldCheck) telemetryUpdate(nodeID string, body radio.TelemetryBody, at time.Time) (domain.Node, bool) {
	node := domain.Node{NodeID: nodeID}
	found := false
	if dm := body.Device; dm != nil {
		node.BatteryLevel = c.battery(dm.BatteryLevel)
		node.Voltage = c.nonNegative(dm.Voltage)
		node.ChannelUtilization = c.percent(dm.ChannelUtilization)
		node.AirUtilTx = c.percent(dm.AirUtilTx)
		if dm.UptimeSeconds != nil {
			up := *dm.UptimeSeconds
			node.UptimeSeconds = &up
		}
		found = node.BatteryLevel != nil || node.Voltage != nil || node.ChannelUtilization != nil ||
			node.AirUtilTx != nil || node.UptimeSeconds != nil
	}
	if em := body.Environment; em != nil {
		node.Temperature = c.finite(em.Temperature)
		node.Humidity = c.percent(em.RelativeHumidity)
		node.Pressure = c.nonNegative(em.BarometricPressure)
		node.GasResistance = c.nonNegative(em.GasResistance)
		found = found || node.Temperature != nil || node.Humidity != nil || node.Pressure != nil ||
			node.GasResistance != nil
	}
	if found {
		node.TelemetryAt = at
	}

	return node, found
}

func float64Ptr(v float64) *float64 {
	return &v
}

// finite drops NaN and infinities, which encoding/json cannot marshal.
func (c *fieldCheck) finite(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if !isFinite(*v) {
		c.invalid++
		return nil
	}

	return float64Ptr(*v)
}

func (c *fieldCheck) nonNegative(v *float64) *float64 {
	v = c.finite(v)
	if v == nil || *v < 0 {
		return nil
	}

	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
