package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// EndpointHealth is a snapshot of one delivery endpoint.
type EndpointHealth struct {
	Name          string           `json:"name"`
	State         gobreaker.State  `json:"-"`
	StateName     string           `json:"state"`
	Counts        gobreaker.Counts `json:"-"`
	LastSuccessAt *time.Time       `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time       `json:"lastFailureAt,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
}

// Healthy reports a closed breaker.
func (h *EndpointHealth) Healthy() bool {
	return h.State == gobreaker.StateClosed
}

// Degraded reports a half-open breaker.
func (h *EndpointHealth) Degraded() bool {
	return h.State == gobreaker.StateHalfOpen
}

// Unavailable reports an open breaker.
func (h *EndpointHealth) Unavailable() bool {
	return h.State == gobreaker.StateOpen
}

// Registry tracks delivery clients and the outcome of their last calls.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
}

type endpoint struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*endpoint)}
}

// Register adds or replaces the client for name.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = &endpoint{client: client}
}

// Unregister removes name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, name)
}

// RecordSuccess stamps the last success time. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[name]; ok {
		now := time.Now().UTC()
		e.lastSuccessAt = &now
	}
}

// RecordFailure stamps the last failure time and error. Unknown names are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[name]; ok {
		now := time.Now().UTC()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns the snapshot for name, or nil when it is not registered.
func (r *Registry) Health(name string) *EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	if !ok {
		return nil
	}
	return e.snapshot(name)
}

// All returns snapshots for every endpoint, ordered by name.
func (r *Registry) All() []*EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EndpointHealth, 0, len(r.endpoints))
	for name, e := range r.endpoints {
		out = append(out, e.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

func (e *endpoint) snapshot(name string) *EndpointHealth {
	state := e.client.State()
	return &EndpointHealth{
		Name:          name,
		State:         state,
		StateName:     state.String(),
		Counts:        e.client.Counts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
