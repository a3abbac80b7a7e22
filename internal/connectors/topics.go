package connectors

const (
	TopicConnStatus = "conn.status"
	TopicRawPacket  = "raw.packet"
	TopicNodeUpdate = "node.update"
	TopicMessage    = "mesh.message"
	TopicAlert      = "mesh.alert"
	TopicAlertAck   = "mesh.alert.ack"
	TopicRoute      = "mesh.route"
	TopicPosition   = "mesh.position"
	TopicTelemetry  = "mesh.telemetry"
)
