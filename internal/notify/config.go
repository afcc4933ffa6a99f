package notify

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled       bool   // Whether ntfy delivery is enabled
	Server        string // ntfy server URL (default: https://ntfy.sh)
	Topic         string // Topic name (required if enabled)
	Priority      string // Priority for toasts: min, low, default, high, urgent
	AlertPriority string // Priority for write failure alerts
	Tags          string // Comma-separated emoji tags (e.g., "speech_balloon")
	Token         string // Optional access token for private topics

	// Consecutive failed sends that open the circuit, and how long it stays
	// open before one trial request is let through.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// LoadConfig loads notification config from environment variables.
func LoadConfig() *Config {
	return &Config{
		Enabled:       getEnvBoolOrDefault("NTFY_ENABLED", false),
		Server:        getEnvOrDefault("NTFY_SERVER", "https://ntfy.sh"),
		Topic:         os.Getenv("NTFY_TOPIC"),
		Priority:      getEnvOrDefault("NTFY_PRIORITY", "low"),
		AlertPriority: getEnvOrDefault("NTFY_ALERT_PRIORITY", "high"),
		Tags:          getEnvOrDefault("NTFY_TAGS", "speech_balloon"),
		Token:         os.Getenv("NTFY_TOKEN"),

		BreakerFailures: uint32(getEnvIntOrDefault("NTFY_BREAKER_FAILURES", 3)),
		BreakerCooldown: getEnvDurationOrDefault("NTFY_BREAKER_COOLDOWN", time.Minute),
	}
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("NTFY_TOPIC is required when NTFY_ENABLED=true")
	}

	validPriorities := map[string]bool{
		"min": true, "low": true, "default": true, "high": true, "urgent": true,
	}
	if !validPriorities[c.Priority] {
		return fmt.Errorf("invalid NTFY_PRIORITY: %s (valid: min, low, default, high, urgent)", c.Priority)
	}
	if !validPriorities[c.AlertPriority] {
		return fmt.Errorf("invalid NTFY_ALERT_PRIORITY: %s (valid: min, low, default, high, urgent)", c.AlertPriority)
	}

	if c.BreakerFailures < 1 {
		return errors.New("NTFY_BREAKER_FAILURES must be >= 1")
	}

	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
