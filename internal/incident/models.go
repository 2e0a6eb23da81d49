// Package incident stores incidents and their update timelines and exposes
// the operator-facing lifecycle operations.
package incident

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chainstatus/statuspage/internal/status"
)

// Predefined incident errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrIncidentResolved = errors.New("incident is already resolved")
)

// Incident is a customer-visible health event.
// At most one incident per service may be open at any time.
type Incident struct {
	ID            string
	ServiceID     *string
	Title         string
	Description   string
	Severity      status.Severity
	Status        status.IncidentStatus
	ImpactStartAt time.Time
	ImpactEndAt   *time.Time
	ResolvedAt    *time.Time
	Postmortem    *string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Open reports whether the incident has not been resolved.
func (i *Incident) Open() bool {
	return i.Status.Open()
}

// ServiceIDs returns the services the incident is attached to.
func (i *Incident) ServiceIDs() []string {
	if i.ServiceID == nil {
		return nil
	}
	return []string{*i.ServiceID}
}

// Update is one immutable entry on an incident's timeline.
type Update struct {
	ID         string
	IncidentID string
	Status     status.IncidentStatus
	Message    string
	Author     string
	CreatedAt  time.Time
}

// Outcome tags the result of an attempt to open an incident.
type Outcome int

// Outcomes of CreateOpen.
const (
	// Created means a new incident and its first update were stored.
	Created Outcome = iota + 1
	// AlreadyOpen means the service already had an open incident; nothing
	// was written and Incident holds the existing one.
	AlreadyOpen
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyOpen:
		return "already_open"
	default:
		return "unknown"
	}
}

// CreateResult is the tagged result of CreateOpen.
type CreateResult struct {
	Outcome  Outcome
	Incident *Incident
}

// Event names an incident lifecycle change that subscribers hear about.
type Event string

// Incident events.
const (
	EventCreated  Event = "incident.created"
	EventUpdated  Event = "incident.updated"
	EventResolved Event = "incident.resolved"
)

// Delta is an incident change handed to notifiers.
type Delta struct {
	Event      Event
	Incident   *Incident
	Message    string
	ServiceIDs []string
}

// NewIncidentID returns a fresh incident ID.
func NewIncidentID() string {
	return "inc_" + uuid.New().String()[:22]
}

// NewUpdateID returns a fresh update ID.
func NewUpdateID() string {
	return "upd_" + uuid.New().String()[:22]
}

func copyIncident(i *Incident) *Incident {
	if i == nil {
		return nil
	}
	c := *i
	if i.ServiceID != nil {
		v := *i.ServiceID
		c.ServiceID = &v
	}
	if i.ImpactEndAt != nil {
		v := *i.ImpactEndAt
		c.ImpactEndAt = &v
	}
	if i.ResolvedAt != nil {
		v := *i.ResolvedAt
		c.ResolvedAt = &v
	}
	if i.Postmortem != nil {
		v := *i.Postmortem
		c.Postmortem = &v
	}
	return &c
}
