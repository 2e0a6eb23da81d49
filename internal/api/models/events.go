package models

// HealthEventRequest is a health event submitted by a monitor.
type HealthEventRequest struct {
	ServiceSlug    string `json:"serviceSlug"`
	EventKind      string `json:"eventKind"`
	Message        string `json:"message"`
	DiagnosticLog  string `json:"diagnosticLog,omitempty"`
	ResponseTimeMs *int   `json:"responseTimeMs,omitempty"`
	StatusCode     *int   `json:"statusCode,omitempty"`
	Source         string `json:"source,omitempty"`
}

// HealthEventResponse describes what a health event changed.
type HealthEventResponse struct {
	ServiceID        string `json:"serviceId"`
	PreviousStatus   string `json:"previousStatus"`
	NewStatus        string `json:"newStatus"`
	IncidentCreated  bool   `json:"incidentCreated"`
	IncidentResolved bool   `json:"incidentResolved"`
	IncidentID       string `json:"incidentId,omitempty"`
}
