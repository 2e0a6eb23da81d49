package models

// UptimeSummary holds rolling uptime percentages.
type UptimeSummary struct {
	Day     float64 `json:"day"`
	Week    float64 `json:"week"`
	Month   float64 `json:"month"`
	AllTime float64 `json:"allTime"`
}

// ServiceStatus is a monitored service and its current status.
type ServiceStatus struct {
	ID                 string        `json:"id"`
	Slug               string        `json:"slug"`
	Name               string        `json:"name"`
	Category           string        `json:"category,omitempty"`
	Description        string        `json:"description,omitempty"`
	Status             string        `json:"status"`
	Public             bool          `json:"public"`
	Uptime             UptimeSummary `json:"uptime"`
	LastCheckedAt      *Timestamp    `json:"lastCheckedAt,omitempty"`
	LastResponseTimeMs *int          `json:"lastResponseTimeMs,omitempty"`
	LastStatusChangeAt Timestamp     `json:"lastStatusChangeAt"`
}

// ServiceList is a list of services.
type ServiceList struct {
	Items []ServiceStatus `json:"items"`
	Meta  ListMeta        `json:"meta"`
}

// Incident is an incident without its timeline.
type Incident struct {
	ID            string     `json:"id"`
	ServiceID     *string    `json:"serviceId,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Severity      string     `json:"severity"`
	Status        string     `json:"status"`
	ImpactStartAt Timestamp  `json:"impactStartAt"`
	ImpactEndAt   *Timestamp `json:"impactEndAt,omitempty"`
	ResolvedAt    *Timestamp `json:"resolvedAt,omitempty"`
	Postmortem    *string    `json:"postmortem,omitempty"`
	CreatedAt     Timestamp  `json:"createdAt"`
	UpdatedAt     Timestamp  `json:"updatedAt"`
}

// IncidentUpdate is one entry on an incident timeline.
type IncidentUpdate struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Author    string    `json:"author,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
}

// IncidentDetail is an incident with its timeline in timestamp order.
type IncidentDetail struct {
	Incident
	Updates []IncidentUpdate `json:"updates"`
}

// OverallStatus is the system-wide status.
type OverallStatus struct {
	Status        string  `json:"status"`
	UptimePercent float64 `json:"uptimePercent"`
}

// StatusPage is the public status page.
type StatusPage struct {
	Overall                 OverallStatus   `json:"overall"`
	Services                []ServiceStatus `json:"services"`
	ActiveIncidents         []Incident      `json:"activeIncidents"`
	RecentResolvedIncidents []Incident      `json:"recentResolvedIncidents"`
	Banner                  string          `json:"banner,omitempty"`
	GeneratedAt             Timestamp       `json:"generatedAt"`
}

// DayUptime is the uptime of one UTC day.
type DayUptime struct {
	Date          string   `json:"date"`
	Checks        int      `json:"checks"`
	UptimePercent float64  `json:"uptimePercent"`
	AvgResponseMs *float64 `json:"avgResponseMs,omitempty"`
}

// UptimeReport is the uptime of a service over a range of days.
type UptimeReport struct {
	ServiceID            string      `json:"serviceId"`
	Slug                 string      `json:"slug"`
	RangeDays            int         `json:"rangeDays"`
	SummaryUptimePercent float64     `json:"summaryUptimePercent"`
	DownDayCount         int         `json:"downDayCount"`
	Days                 []DayUptime `json:"days"`
}
