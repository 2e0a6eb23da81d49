// Package featureflags provides feature flag management for runtime configuration.
package featureflags

import (
	"time"
)

// Well-known feature flag keys.
const (
	// FlagNotificationsPaused stops subscriber notifications from being sent.
	FlagNotificationsPaused = "notifications_paused"

	// FlagIngestPaused rejects incoming health events.
	FlagIngestPaused = "ingest_paused"

	// FlagStatusBanner is an operator message shown on top of the status page.
	FlagStatusBanner = "status_banner"

	// FlagRecentIncidentDays is how many days of resolved incidents the status
	// page lists.
	FlagRecentIncidentDays = "recent_incident_days"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`

	// UpdatedBy is the operator who last changed the flag. Empty for defaults.
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// StringValue returns the flag value as a string.
// Returns the default value if the flag is nil or not a string.
func (f *Flag) StringValue(defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	if v, ok := f.Value.(string); ok {
		return v
	}
	return defaultValue
}

// IntValue returns the flag value as an integer.
// Returns the default value if the flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagNotificationsPaused: {
			Key:       FlagNotificationsPaused,
			Value:     false,
			UpdatedAt: now,
		},
		FlagIngestPaused: {
			Key:       FlagIngestPaused,
			Value:     false,
			UpdatedAt: now,
		},
		FlagStatusBanner: {
			Key:       FlagStatusBanner,
			Value:     "",
			UpdatedAt: now,
		},
		FlagRecentIncidentDays: {
			Key:       FlagRecentIncidentDays,
			Value:     7,
			UpdatedAt: now,
		},
	}
}

// Known reports whether key is one of the well-known flags.
func Known(key string) bool {
	_, ok := DefaultFlags()[key]
	return ok
}

// ValidValue reports whether value has the type expected by a well-known flag.
func ValidValue(key string, value interface{}) bool {
	switch key {
	case FlagNotificationsPaused, FlagIngestPaused:
		_, ok := value.(bool)
		return ok
	case FlagStatusBanner:
		s, ok := value.(string)
		return ok && len(s) <= 500
	case FlagRecentIncidentDays:
		n, ok := value.(float64)
		return ok && n >= 1 && n <= 90 && n == float64(int(n))
	default:
		return false
	}
}
