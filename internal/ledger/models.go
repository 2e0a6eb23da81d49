// Package ledger keeps the current public status of every monitored service.
package ledger

import (
	"errors"
	"time"

	"github.com/chainstatus/statuspage/internal/status"
)

// ErrServiceNotFound is returned when no service matches the lookup.
var ErrServiceNotFound = errors.New("service not found")

// Service is a monitored endpoint and its current public status.
type Service struct {
	ID          string
	Slug        string
	Name        string
	Category    string
	Description string

	// ProbeURL is empty for status-only services that have no synthetic probe.
	ProbeURL *string

	// Public services are listed on the status page and count towards the
	// overall status. Services are never deleted, only hidden.
	Public    bool
	SortOrder int

	Status             status.Level
	LastCheckedAt      *time.Time
	LastResponseTimeMs *int
	LastStatusChangeAt time.Time

	Uptime Uptime

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uptime holds the rolling uptime percentages derived from hourly metrics.
type Uptime struct {
	Day     float64
	Week    float64
	Month   float64
	AllTime float64
}

// FullUptime is the uptime of a service with no recorded failures.
func FullUptime() Uptime {
	return Uptime{Day: 100, Week: 100, Month: 100, AllTime: 100}
}

// ListOptions filters List results.
type ListOptions struct {
	PublicOnly bool
}

func copyService(s *Service) *Service {
	if s == nil {
		return nil
	}
	c := *s
	if s.ProbeURL != nil {
		v := *s.ProbeURL
		c.ProbeURL = &v
	}
	if s.LastCheckedAt != nil {
		v := *s.LastCheckedAt
		c.LastCheckedAt = &v
	}
	if s.LastResponseTimeMs != nil {
		v := *s.LastResponseTimeMs
		c.LastResponseTimeMs = &v
	}
	return &c
}
