package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ResourceHealth is the observed health of one backend resource.
type ResourceHealth struct {
	// Name is the backend resource identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the time of the last successful request.
	LastSuccessAt *time.Time

	// LastFailureAt is the time of the last failed request.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// Healthy reports whether the resource circuit is closed.
func (h *ResourceHealth) Healthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// HealthRegistry tracks request outcomes per backend resource. The
// simulator's debug endpoint reads it to show backend reachability.
type HealthRegistry struct {
	mu        sync.RWMutex
	resources map[string]*trackedResource
}

type trackedResource struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewHealthRegistry creates an empty health registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{resources: make(map[string]*trackedResource)}
}

func (r *HealthRegistry) track(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[name] = &trackedResource{client: client}
}

// RecordSuccess records a successful request for a resource.
func (r *HealthRegistry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.resources[name]; ok {
		now := time.Now()
		res.lastSuccessAt = &now
	}
}

// RecordFailure records a failed request for a resource.
func (r *HealthRegistry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.resources[name]; ok {
		now := time.Now()
		res.lastFailureAt = &now
		if err != nil {
			res.lastError = err.Error()
		}
	}
}

// Health returns the health of one resource, or nil if untracked.
func (r *HealthRegistry) Health(name string) *ResourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[name]
	if !ok {
		return nil
	}
	return snapshot(name, res)
}

// AllHealth returns the health of every tracked resource.
func (r *HealthRegistry) AllHealth() []*ResourceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ResourceHealth, 0, len(r.resources))
	for name, res := range r.resources {
		out = append(out, snapshot(name, res))
	}
	return out
}

func snapshot(name string, res *trackedResource) *ResourceHealth {
	return &ResourceHealth{
		Name:          name,
		CircuitState:  res.client.BreakerState(),
		Counts:        res.client.BreakerCounts(),
		LastSuccessAt: res.lastSuccessAt,
		LastFailureAt: res.lastFailureAt,
		LastError:     res.lastError,
	}
}
