package app

const (
	Name           = "meshwatch"
	ConfigFilename = "config.json"
	LogFilename    = "meshwatch.log"

	writerQueueCapacity = 1024
	notifyMinSeverity   = 2
)
