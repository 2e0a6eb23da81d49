package status

import "fmt"

// Severity grades how badly an incident affects users.
type Severity string

// Severities.
const (
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity converts a wire value into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	switch sev {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Level projects the severity onto the status level an open incident implies.
func (s Severity) Level() Level {
	switch s {
	case SeverityCritical:
		return MajorOutage
	case SeverityMajor:
		return PartialOutage
	case SeverityMinor:
		return Degraded
	default:
		return Operational
	}
}

// IncidentStatus is the lifecycle stage of an incident. RESOLVED is the only
// terminal stage; the others may be visited in any order.
type IncidentStatus string

// Incident statuses.
const (
	Investigating IncidentStatus = "INVESTIGATING"
	Identified    IncidentStatus = "IDENTIFIED"
	Monitoring    IncidentStatus = "MONITORING"
	Resolved      IncidentStatus = "RESOLVED"
)

// ParseIncidentStatus converts a wire value into an IncidentStatus.
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	st := IncidentStatus(s)
	switch st {
	case Investigating, Identified, Monitoring, Resolved:
		return st, nil
	default:
		return "", fmt.Errorf("unknown incident status %q", s)
	}
}

// Open reports whether the incident is still in progress.
func (s IncidentStatus) Open() bool {
	return s != Resolved
}
