package domain

const (
	SNRGood  = -7.0
	SNRFair  = -15.0
	RSSIGood = -115
	RSSIFair = -126
)

type SignalQuality int

const (
	SignalUnknown SignalQuality = iota
	SignalBad
	SignalFair
	SignalGood
)

func (q SignalQuality) String() string {
	switch q {
	case SignalBad:
		return "bad"
	case SignalFair:
		return "fair"
	case SignalGood:
		return "good"
	default:
		return "unknown"
	}
}

// DetermineSignalQuality Thresholds match Meshtastic Android signal indicator:
// https://github.com/meshtastic/Meshtastic-Android/blob/fe5d7d6b92ae185fad5b4df9587a18c756512684/core/ui/src/main/kotlin/org/meshtastic/core/ui/component/LoraSignalIndicator.kt#L62-L66
func DetermineSignalQuality(snr float64, rssi int) SignalQuality {
	if rssi == 0 {
		return SignalUnknown
	}
	if snr >= SNRGood && rssi >= RSSIGood {
		return SignalGood
	}
	if snr >= SNRFair && rssi >= RSSIFair {
		return SignalFair
	}

	return SignalBad
}

// NodeSignalQuality classifies the last reception from a node.
func NodeSignalQuality(n Node) SignalQuality {
	if n.SNR == nil || n.RSSI == nil {
		return SignalUnknown
	}

	return DetermineSignalQuality(*n.SNR, *n.RSSI)
}
