package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/api/response"
	"github.com/chainstatus/statuspage/internal/featureflags"
	"github.com/chainstatus/statuspage/internal/resilience"
)

// readyTimeout bounds each dependency check of the readiness probe.
const readyTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyCheck names a dependency probed by readiness and status checks.
type DependencyCheck struct {
	Name   string
	Pinger Pinger
	// Optional dependencies degrade the system status instead of failing it.
	Optional bool
}

// OpsConfig holds the dependencies of OpsHandler. Every field except the
// version is optional.
type OpsConfig struct {
	Version   string
	BuildTime string

	Checks      []DependencyCheck
	Dispatchers *resilience.Registry
	Queue       interface{ Depth() int }
	Live        interface{ Clients() int }
	Flags       *featureflags.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It fails when a required
// dependency does not answer.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems, overall := h.checkDependencies(r.Context())

	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
	}
	health := models.Health{
		Status:  overall,
		Time:    models.NewTimestamp(time.Now()),
		Details: details,
	}
	if overall == models.HealthStatusFail {
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and dispatcher status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems, overall := h.checkDependencies(r.Context())

	dispatchers := h.dispatchers()
	for _, d := range dispatchers {
		if d.Status != models.HealthStatusOK && overall == models.HealthStatusOK {
			overall = models.HealthStatusDegraded
		}
	}

	result := models.SystemStatus{
		Status:      overall,
		Time:        models.NewTimestamp(time.Now()),
		Subsystems:  subsystems,
		Dispatchers: dispatchers,
		ActiveFlags: h.activeFlags(r.Context()),
	}
	if h.cfg.Queue != nil {
		result.NotificationQueue.Depth = h.cfg.Queue.Depth()
	}
	if h.cfg.Live != nil {
		result.LiveClients = h.cfg.Live.Clients()
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *OpsHandler) checkDependencies(ctx context.Context) ([]models.SubsystemStatus, models.HealthStatus) {
	overall := models.HealthStatusOK
	subsystems := make([]models.SubsystemStatus, 0, len(h.cfg.Checks))
	for _, check := range h.cfg.Checks {
		s := models.SubsystemStatus{Name: check.Name, Status: models.HealthStatusOK}

		pingCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		err := check.Pinger.Ping(pingCtx)
		cancel()

		if err != nil {
			detail := err.Error()
			s.Detail = &detail
			if check.Optional {
				s.Status = models.HealthStatusDegraded
				if overall == models.HealthStatusOK {
					overall = models.HealthStatusDegraded
				}
			} else {
				s.Status = models.HealthStatusFail
				overall = models.HealthStatusFail
			}
		}
		subsystems = append(subsystems, s)
	}
	return subsystems, overall
}

func (h *OpsHandler) dispatchers() []models.DispatcherStatus {
	if h.cfg.Dispatchers == nil {
		return []models.DispatcherStatus{}
	}
	endpoints := h.cfg.Dispatchers.All()
	out := make([]models.DispatcherStatus, 0, len(endpoints))
	for _, e := range endpoints {
		d := models.DispatcherStatus{
			Name:          e.Name,
			Status:        models.HealthStatusOK,
			CircuitState:  e.StateName,
			Requests:      e.Counts.Requests,
			Failures:      e.Counts.TotalFailures,
			LastSuccessAt: models.TimestampPtr(e.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(e.LastFailureAt),
		}
		switch {
		case e.Unavailable():
			d.Status = models.HealthStatusFail
		case e.Degraded():
			d.Status = models.HealthStatusDegraded
		}
		if e.LastError != "" {
			lastErr := e.LastError
			d.LastError = &lastErr
		}
		out = append(out, d)
	}
	return out
}

// activeFlags lists flags that differ from their defaults.
func (h *OpsHandler) activeFlags(ctx context.Context) []string {
	if h.cfg.Flags == nil {
		return nil
	}
	var active []string
	for key, f := range h.cfg.Flags.GetAllFlags(ctx) {
		switch key {
		case featureflags.FlagNotificationsPaused, featureflags.FlagIngestPaused:
			if f.BoolValue(false) {
				active = append(active, key)
			}
		case featureflags.FlagStatusBanner:
			if f.StringValue("") != "" {
				active = append(active, key)
			}
		}
	}
	sort.Strings(active)
	return active
}
