package domain

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinSNR       = -50.0
	MaxSNR       = 50.0
	MinRSSI      = -200
	MaxRSSI      = 0

	ChannelUtilWarning  = 25.0
	ChannelUtilCritical = 40.0
	AirUtilTxWarning    = 7.0
	AirUtilTxCritical   = 10.0

	UtilizationNormal   = "normal"
	UtilizationWarning  = "warning"
	UtilizationCritical = "critical"
)

// IsValidCoordinate rejects out-of-range values and the (0, 0) "unset" marker.
func IsValidCoordinate(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}

	return lat >= MinLatitude && lat <= MaxLatitude && lon >= MinLongitude && lon <= MaxLongitude
}

func IsValidSNR(snr float64) bool {
	return snr >= MinSNR && snr <= MaxSNR
}

func IsValidRSSI(rssi int) bool {
	return rssi >= MinRSSI && rssi <= MaxRSSI
}

func IsValidPercent(v float64) bool {
	return v >= 0 && v <= 100
}

// IsValidBatteryLevel rejects 101, which devices send when running on external power.
func IsValidBatteryLevel(v uint32) bool {
	return v <= 100
}

// CongestionStatus classifies a channel utilization percentage.
func CongestionStatus(channelUtil float64) string {
	switch {
	case channelUtil >= ChannelUtilCritical:
		return UtilizationCritical
	case channelUtil >= ChannelUtilWarning:
		return UtilizationWarning
	default:
		return UtilizationNormal
	}
}

// AirUtilTxStatus classifies a transmit airtime percentage.
func AirUtilTxStatus(airUtil float64) string {
	switch {
	case airUtil >= AirUtilTxCritical:
		return UtilizationCritical
	case airUtil >= AirUtilTxWarning:
		return UtilizationWarning
	default:
		return UtilizationNormal
	}
}
