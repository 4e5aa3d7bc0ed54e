package routing

import (
	"sort"
	"sync"
	"time"
)

// Endpoint statuses. An empty status counts as healthy.
const (
	EndpointHealthy = "healthy"
	EndpointDown    = "down"
)

// Endpoint is one model-serving target known to the resolver.
type Endpoint struct {
	Host       string `json:"host" yaml:"host"`
	Model      string `json:"model" yaml:"model"`
	Tier       string `json:"tier" yaml:"tier"`
	TargetType string `json:"target_type" yaml:"targetType"`
	Status     string `json:"status" yaml:"status"`

	UpdatedAtMs int64 `json:"updated_at_ms" yaml:"-"`
}

// Healthy reports whether the endpoint is usable.
func (e Endpoint) Healthy() bool {
	return e.Status == "" || e.Status == EndpointHealthy
}

// EndpointTable is the live endpoint view, keyed by host. Probing
// collaborators update it via routing.endpoint_changed events; the
// scheduler applies those updates before re-running a matching pass.
type EndpointTable struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewEndpointTable creates an empty table.
func NewEndpointTable() *EndpointTable {
	return &EndpointTable{endpoints: make(map[string]Endpoint)}
}

// Upsert inserts or replaces the endpoint under its host.
func (t *EndpointTable) Upsert(ep Endpoint) {
	if ep.Host == "" {
		return
	}
	if ep.TargetType == "" {
		ep.TargetType = TargetLocalModel
	}
	ep.UpdatedAtMs = time.Now().UnixMilli()
	t.mu.Lock()
	t.endpoints[ep.Host] = ep
	t.mu.Unlock()
}

// SetStatus updates one endpoint's status. Returns false when the host is
// unknown.
func (t *EndpointTable) SetStatus(host, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ep, ok := t.endpoints[host]
	if !ok {
		return false
	}
	ep.Status = status
	ep.UpdatedAtMs = time.Now().UnixMilli()
	t.endpoints[host] = ep
	return true
}

// Snapshot returns all endpoints sorted by host for deterministic
// selection.
func (t *EndpointTable) Snapshot() []Endpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Endpoint, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// Len returns the number of known endpoints.
func (t *EndpointTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.endpoints)
}
