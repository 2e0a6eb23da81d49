package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the operator view of the API process.
type SystemStatus struct {
	Status            HealthStatus       `json:"status"`
	Time              Timestamp          `json:"time"`
	Subsystems        []SubsystemStatus  `json:"subsystems"`
	Dispatchers       []DispatcherStatus `json:"dispatchers"`
	NotificationQueue QueueStatus        `json:"notificationQueue"`
	LiveClients       int                `json:"liveClients"`
	ActiveFlags       []string           `json:"activeFlags,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// DispatcherStatus is the circuit state of a notification endpoint.
type DispatcherStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError     *string      `json:"lastError,omitempty"`
}

// QueueStatus describes the notification queue.
type QueueStatus struct {
	Depth int `json:"depth"`
}
