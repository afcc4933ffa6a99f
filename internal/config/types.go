package config

// DefaultBaseURL is the production backend.
const DefaultBaseURL = "https://api.outings.app"

// ValidLogLevels lists the accepted logging.level values.
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// EventTopics lists the topics the local WebSocket surface publishes.
var EventTopics = []string{"comments", "activity", "toast", "alert"}
