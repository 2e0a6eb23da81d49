package status

import "fmt"

// EventKind is the kind of health event a monitor reports.
type EventKind string

// Event kinds.
const (
	EventOutage      EventKind = "outage"
	EventPartial     EventKind = "partial"
	EventDegraded    EventKind = "degraded"
	EventMaintenance EventKind = "maintenance"
	EventRecovery    EventKind = "recovery"
)

// ParseEventKind converts a wire value into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	switch k {
	case EventOutage, EventPartial, EventDegraded, EventMaintenance, EventRecovery:
		return k, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}

// Level maps the event onto the service level it implies.
func (k EventKind) Level() (Level, bool) {
	switch k {
	case EventOutage:
		return MajorOutage, true
	case EventPartial:
		return PartialOutage, true
	case EventDegraded:
		return Degraded, true
	case EventMaintenance:
		return Maintenance, true
	case EventRecovery:
		return Operational, true
	default:
		return "", false
	}
}

// Severity is the severity of an incident auto-opened by this event.
func (k EventKind) Severity() Severity {
	switch k {
	case EventOutage:
		return SeverityCritical
	case EventPartial:
		return SeverityMajor
	default:
		return SeverityMinor
	}
}
