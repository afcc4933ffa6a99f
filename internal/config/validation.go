package config

import (
	"fmt"
	"sort"
	"strings"
)

// FieldError is one invalid configuration key.
type FieldError struct {
	Key     string
	Message string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Keys returns the invalid keys in the order they were found.
func (e *ValidationErrors) Keys() []string {
	keys := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s %s\n", f.Key, f.Message))
	}
	return sb.String()
}

func (e *ValidationErrors) check(ok bool, key, message string) {
	if !ok {
		e.Fields = append(e.Fields, FieldError{Key: key, Message: message})
	}
}

func logLevelList() string {
	levels := make([]string, 0, len(ValidLogLevels))
	for l := range ValidLogLevels {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	return strings.Join(levels, ", ")
}
