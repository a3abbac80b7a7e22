package radio

import "fmt"

// PortNum identifies the application payload carried by a Data message.
type PortNum uint32

const (
	PortUnknown               PortNum = 0
	PortTextMessage           PortNum = 1
	PortRemoteHardware        PortNum = 2
	PortPosition              PortNum = 3
	PortNodeInfo              PortNum = 4
	PortRouting               PortNum = 5
	PortAdmin                 PortNum = 6
	PortTextMessageCompressed PortNum = 7
	PortWaypoint              PortNum = 8
	PortAudio                 PortNum = 9
	PortDetectionSensor       PortNum = 10
	PortReply                 PortNum = 32
	PortIPTunnel              PortNum = 33
	PortPaxcounter            PortNum = 34
	PortSerial                PortNum = 64
	PortStoreForward          PortNum = 65
	PortRangeTest             PortNum = 66
	PortTelemetry             PortNum = 67
	PortZPS                   PortNum = 68
	PortSimulator             PortNum = 69
	PortTraceroute            PortNum = 70
	PortNeighborInfo          PortNum = 71
	PortATAKPlugin            PortNum = 72
	PortMapReport             PortNum = 73
	PortPowerstress           PortNum = 74
	PortPrivate               PortNum = 256
	PortATAKForwarder         PortNum = 257
)

var portNames = map[PortNum]string{
	PortUnknown:               "UNKNOWN_APP",
	PortTextMessage:           "TEXT_MESSAGE_APP",
	PortRemoteHardware:        "REMOTE_HARDWARE_APP",
	PortPosition:              "POSITION_APP",
	PortNodeInfo:              "NODEINFO_APP",
	PortRouting:               "ROUTING_APP",
	PortAdmin:                 "ADMIN_APP",
	PortTextMessageCompressed: "TEXT_MESSAGE_COMPRESSED_APP",
	PortWaypoint:              "WAYPOINT_APP",
	PortAudio:                 "AUDIO_APP",
	PortDetectionSensor:       "DETECTION_SENSOR_APP",
	PortReply:                 "REPLY_APP",
	PortIPTunnel:              "IP_TUNNEL_APP",
	PortPaxcounter:            "PAXCOUNTER_APP",
	PortSerial:                "SERIAL_APP",
	PortStoreForward:          "STORE_FORWARD_APP",
	PortRangeTest:             "RANGE_TEST_APP",
	PortTelemetry:             "TELEMETRY_APP",
	PortZPS:                   "ZPS_APP",
	PortSimulator:             "SIMULATOR_APP",
	PortTraceroute:            "TRACEROUTE_APP",
	PortNeighborInfo:          "NEIGHBORINFO_APP",
	PortATAKPlugin:            "ATAK_PLUGIN",
	PortMapReport:             "MAP_REPORT_APP",
	PortPowerstress:           "POWERSTRESS_APP",
	PortPrivate:               "PRIVATE_APP",
	PortATAKForwarder:         "ATAK_FORWARDER",
}

func (p PortNum) String() string {
	if name, ok := portNames[p]; ok {
		return name
	}

	return fmt.Sprintf("UNKNOWN_%d", uint32(p))
}

// Known reports whether the port has a registered name.
func (p PortNum) Known() bool {
	_, ok := portNames[p]

	return ok
}

// RoutingError is the error_reason of a ROUTING_APP payload.
type RoutingError uint32

var routingErrorNames = map[RoutingError]string{
	0:  "NONE",
	1:  "NO_ROUTE",
	2:  "GOT_NAK",
	3:  "TIMEOUT",
	4:  "NO_INTERFACE",
	5:  "MAX_RETRANSMIT",
	6:  "NO_CHANNEL",
	7:  "TOO_LARGE",
	8:  "NO_RESPONSE",
	9:  "DUTY_CYCLE_LIMIT",
	32: "BAD_REQUEST",
	33: "NOT_AUTHORIZED",
	34: "PKI_FAILED",
	35: "PKI_UNKNOWN_PUBKEY",
	36: "ADMIN_BAD_SESSION_KEY",
	37: "ADMIN_PUBLIC_KEY_UNAUTHORIZED",
}

func (e RoutingError) String() string {
	if name, ok := routingErrorNames[e]; ok {
		return name
	}

	return fmt.Sprintf("ROUTING_ERROR_%d", uint32(e))
}

var roleNames = []string{
	"CLIENT",
	"CLIENT_MUTE",
	"ROUTER",
	"ROUTER_CLIENT",
	"REPEATER",
	"TRACKER",
	"SENSOR",
	"TAK",
	"CLIENT_HIDDEN",
	"LOST_AND_FOUND",
	"TAK_TRACKER",
	"ROUTER_LATE",
}

// RoleName returns the device role name for a NODEINFO role value.
func RoleName(role uint32) string {
	if int(role) < len(roleNames) {
		return roleNames[role]
	}

	return fmt.Sprintf("ROLE_%d", role)
}

var hardwareModelNames = map[uint32]string{
	0:   "UNSET",
	1:   "TLORA_V2",
	2:   "TLORA_V1",
	3:   "TLORA_V2_1_1P6",
	4:   "TBEAM",
	5:   "HELTEC_V2_0",
	6:   "TBEAM_V0P7",
	7:   "T_ECHO",
	8:   "TLORA_V1_1P3",
	9:   "RAK4631",
	10:  "HELTEC_V2_1",
	11:  "HELTEC_V1",
	12:  "LILYGO_TBEAM_S3_CORE",
	13:  "RAK11200",
	14:  "NANO_G1",
	15:  "TLORA_V2_1_1P8",
	16:  "TLORA_T3_S3",
	17:  "NANO_G1_EXPLORER",
	18:  "NANO_G2_ULTRA",
	25:  "STATION_G1",
	26:  "RAK11310",
	29:  "CANARYONE",
	31:  "STATION_G2",
	32:  "LORA_RELAY_V1",
	39:  "DIY_V1",
	41:  "DR_DEV",
	42:  "M5STACK",
	43:  "HELTEC_V3",
	44:  "HELTEC_WSL_V3",
	47:  "RPI_PICO",
	48:  "HELTEC_WIRELESS_TRACKER",
	49:  "HELTEC_WIRELESS_PAPER",
	50:  "T_DECK",
	51:  "T_WATCH_S3",
	52:  "PICOMPUTER_S3",
	53:  "HELTEC_HT62",
	58:  "HELTEC_WIRELESS_TRACKER_V1_0",
	59:  "UNPHONE",
	64:  "TRACKER_T1000_E",
	65:  "RAK3172",
	66:  "WIO_E5",
	69:  "SEEED_XIAO_S3",
	71:  "RP2040_FEATHER_RFM95",
	84:  "WISMESH_TAP",
	95:  "HELTEC_MESH_NODE_T114",
	96:  "SENSECAP_INDICATOR",
	97:  "TRACKER_T1000_E_LR",
	255: "PRIVATE_HW",
}

// HardwareModelName returns the hardware model name for a NODEINFO hw_model value.
func HardwareModelName(model uint32) string {
	if name, ok := hardwareModelNames[model]; ok {
		return name
	}

	return fmt.Sprintf("HW_%d", model)
}
