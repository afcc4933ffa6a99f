package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FakeUser is a bearer token accepted by the fake backend.
type FakeUser struct {
	Token string
	ID    int64
	Name  string
}

// FakeAPIConfig configures the in-memory development backend.
type FakeAPIConfig struct {
	Port       string
	Users      []FakeUser
	ActivityID int64
	Title      string
	// FailRate is the fraction of writes answered with 500.
	FailRate float64
	Latency  time.Duration
	Gzip     bool
}

// LoadFakeAPIConfig reads FAKEAPI_* environment variables.
func LoadFakeAPIConfig() (*FakeAPIConfig, error) {
	users, err := ParseFakeUsers(getEnvOrDefault("FAKEAPI_USERS", "dev-token:1:Dev User;alex-token:2:Alex Doe"))
	if err != nil {
		return nil, err
	}

	activityID, err := strconv.ParseInt(getEnvOrDefault("FAKEAPI_ACTIVITY_ID", "1"), 10, 64)
	if err != nil || activityID < 1 {
		return nil, fmt.Errorf("invalid FAKEAPI_ACTIVITY_ID: must be a positive integer")
	}

	failRate, err := strconv.ParseFloat(getEnvOrDefault("FAKEAPI_FAIL_RATE", "0"), 64)
	if err != nil || failRate < 0 || failRate > 1 {
		return nil, fmt.Errorf("invalid FAKEAPI_FAIL_RATE: must be between 0 and 1")
	}

	latency, err := time.ParseDuration(getEnvOrDefault("FAKEAPI_LATENCY", "0s"))
	if err != nil {
		latency = 0 // Default to no latency on parse error
	}

	return &FakeAPIConfig{
		Port:       getEnvOrDefault("FAKEAPI_PORT", "8080"),
		Users:      users,
		ActivityID: activityID,
		Title:      getEnvOrDefault("FAKEAPI_TITLE", "Saturday picnic"),
		FailRate:   failRate,
		Latency:    latency,
		Gzip:       getEnvOrDefault("FAKEAPI_GZIP", "true") == "true",
	}, nil
}

// ParseFakeUsers parses "token:id:name" entries separated by semicolons.
func ParseFakeUsers(raw string) ([]FakeUser, error) {
	var users []FakeUser
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid FAKEAPI_USERS entry %q (want token:id:name)", entry)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid user id in FAKEAPI_USERS entry %q", entry)
		}
		users = append(users, FakeUser{Token: parts[0], ID: id, Name: parts[2]})
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("FAKEAPI_USERS must name at least one user")
	}
	return users, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
