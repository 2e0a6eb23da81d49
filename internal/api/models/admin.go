package models

// CreateIncidentRequest opens an incident. ServiceSlug is optional; an
// incident without a service covers the whole network.
type CreateIncidentRequest struct {
	ServiceSlug   *string    `json:"serviceSlug,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Severity      string     `json:"severity"`
	Status        string     `json:"status,omitempty"`
	Message       string     `json:"message,omitempty"`
	ImpactStartAt *Timestamp `json:"impactStartAt,omitempty"`
}

// AddIncidentUpdateRequest appends a timeline entry.
type AddIncidentUpdateRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ResolveIncidentRequest resolves an incident.
type ResolveIncidentRequest struct {
	Message    string  `json:"message,omitempty"`
	Postmortem *string `json:"postmortem,omitempty"`
}

// PostmortemRequest stores a postmortem.
type PostmortemRequest struct {
	Postmortem string `json:"postmortem"`
}

// ServiceStatusRequest overrides a service status.
type ServiceStatusRequest struct {
	Status string `json:"status"`
}

// ServiceVisibilityRequest lists or hides a service.
type ServiceVisibilityRequest struct {
	Public *bool `json:"public"`
}
