package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/queue"
)

const eventSource = "agent-registry"

var (
	// ErrAgentNotFound is returned when the agent id is unknown.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrTaskMismatch is returned when an operation names a task the
	// agent does not currently hold.
	ErrTaskMismatch = errors.New("agent does not hold this task")
)

// Agent is the registry's view of one connected (or recently connected)
// agent.
type Agent struct {
	ID                string   `json:"id"`
	Capabilities      []string `json:"capabilities,omitempty"`
	State             State    `json:"state"`
	CurrentTaskID     string   `json:"current_task_id,omitempty"`
	ConnectedAtMs     int64    `json:"connected_at_ms,omitempty"`
	LastStateChangeMs int64    `json:"last_state_change_ms"`
	AcceptDeadlineMs  int64    `json:"accept_deadline_ms,omitempty"`
	LastSeenMs        int64    `json:"last_seen_ms,omitempty"`
	SlowAccept        bool     `json:"slow_accept,omitempty"`
	RepoScope         []string `json:"repo_scope,omitempty"`
	LocalEndpointHost string   `json:"local_endpoint_host,omitempty"`
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (a *Agent) Clone() *Agent {
	clone := *a
	if a.Capabilities != nil {
		clone.Capabilities = append([]string(nil), a.Capabilities...)
	}
	if a.RepoScope != nil {
		clone.RepoScope = append([]string(nil), a.RepoScope...)
	}
	return &clone
}

// HasCapabilities reports whether the agent advertises every needed
// capability.
func (a *Agent) HasCapabilities(needed []string) bool {
	if len(needed) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c] = struct{}{}
	}
	for _, c := range needed {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// InRepoScope reports whether the agent may take tasks for repo. An
// empty scope means unrestricted.
func (a *Agent) InRepoScope(repo string) bool {
	if repo == "" || len(a.RepoScope) == 0 {
		return true
	}
	for _, r := range a.RepoScope {
		if r == repo {
			return true
		}
	}
	return false
}

// ConnectOpts carries optional fields from the identify frame.
type ConnectOpts struct {
	RepoScope         []string
	LocalEndpointHost string
}

// TaskReclaimer returns assigned tasks to the queue when their agent can
// no longer work on them. Implemented by the queue service.
type TaskReclaimer interface {
	Reclaim(ctx context.Context, id, reason string) (*queue.Task, error)
}

// Options configures registry timing.
type Options struct {
	// AcceptanceTimeout is how long an assigned agent has to accept
	// before the task is reclaimed.
	AcceptanceTimeout time.Duration
	// StaleThreshold is how long an agent may go without a heartbeat
	// before the reaper disconnects it.
	StaleThreshold time.Duration
	// ReaperInterval is how often the reaper sweeps.
	ReaperInterval time.Duration
}

// Registry tracks all agents and validates their lifecycle transitions.
// One mutex guards the whole map; operations are short.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Agent
	timers map[string]*time.Timer

	queue    TaskReclaimer
	eventBus bus.EventBus
	logger   *logger.Logger

	acceptanceTimeout time.Duration
	staleThreshold    time.Duration
	reaperInterval    time.Duration
}

// NewRegistry creates an agent registry.
func NewRegistry(reclaimer TaskReclaimer, eventBus bus.EventBus, log *logger.Logger, opts Options) *Registry {
	if log == nil {
		log = logger.Default()
	}
	if opts.AcceptanceTimeout <= 0 {
		opts.AcceptanceTimeout = 30 * time.Second
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 60 * time.Second
	}
	if opts.ReaperInterval <= 0 {
		opts.ReaperInterval = 15 * time.Second
	}
	return &Registry{
		agents:            make(map[string]*Agent),
		timers:            make(map[string]*time.Timer),
		queue:             reclaimer,
		eventBus:          eventBus,
		logger:            log,
		acceptanceTimeout: opts.AcceptanceTimeout,
		staleThreshold:    opts.StaleThreshold,
		reaperInterval:    opts.ReaperInterval,
	}
}

// Connect registers an agent (or resets an existing record) and moves it
// to idle. Publishes presence.agent_joined.
func (r *Registry) Connect(ctx context.Context, id string, capabilities []string, opts ConnectOpts) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		a = &Agent{ID: id, State: StateOffline}
		r.agents[id] = a
	}
	if err := r.transitionLocked(a, EventConnect); err != nil {
		return nil, err
	}
	r.stopTimerLocked(id)

	now := nowMs()
	a.Capabilities = append([]string(nil), capabilities...)
	a.CurrentTaskID = ""
	a.ConnectedAtMs = now
	a.AcceptDeadlineMs = 0
	a.LastSeenMs = now
	a.SlowAccept = false
	a.RepoScope = append([]string(nil), opts.RepoScope...)
	a.LocalEndpointHost = opts.LocalEndpointHost

	r.logger.WithAgentID(id).Info("Agent connected")
	r.publish(ctx, events.AgentJoined, events.AgentEvent{
		AgentID:      id,
		State:        string(a.State),
		Capabilities: a.Capabilities,
	})
	return a.Clone(), nil
}

// Disconnect moves an agent offline. A held task is reclaimed back to
// the queue first. Publishes presence.agent_left.
func (r *Registry) Disconnect(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if a.State == StateOffline {
		return nil
	}
	r.stopTimerLocked(id)

	if taskID := a.CurrentTaskID; taskID != "" {
		if _, err := r.queue.Reclaim(ctx, taskID, "agent_disconnected"); err != nil {
			// The task may have completed in the same instant. The
			// disconnect proceeds either way.
			r.logger.WithAgentID(id).WithTaskID(taskID).WithError(err).Debug("Reclaim on disconnect failed")
		}
	}
	if err := r.transitionLocked(a, EventDisconnect); err != nil {
		return err
	}
	a.CurrentTaskID = ""
	a.AcceptDeadlineMs = 0

	r.logger.WithAgentID(id).Info("Agent disconnected", zap.String("reason", reason))
	r.publish(ctx, events.AgentLeft, events.AgentEvent{
		AgentID: id,
		State:   string(a.State),
		Reason:  reason,
	})
	return nil
}

// Assign marks an idle agent as assigned to a task and arms the
// acceptance timer.
func (r *Registry) Assign(ctx context.Context, id, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if err := r.transitionLocked(a, EventAssign); err != nil {
		return err
	}
	a.CurrentTaskID = taskID
	a.AcceptDeadlineMs = nowMs() + r.acceptanceTimeout.Milliseconds()
	a.SlowAccept = false

	r.stopTimerLocked(id)
	r.timers[id] = time.AfterFunc(r.acceptanceTimeout, func() {
		r.onAcceptTimeout(id, taskID)
	})

	r.publish(ctx, events.AgentStateChanged, events.AgentEvent{
		AgentID: id,
		State:   string(a.State),
		TaskID:  taskID,
	})
	return nil
}

// Accept confirms an assignment and moves the agent to working.
func (r *Registry) Accept(ctx context.Context, id, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if a.CurrentTaskID != taskID {
		return ErrTaskMismatch
	}
	if err := r.transitionLocked(a, EventAccept); err != nil {
		return err
	}
	a.AcceptDeadlineMs = 0
	r.stopTimerLocked(id)

	r.publish(ctx, events.AgentStateChanged, events.AgentEvent{
		AgentID: id,
		State:   string(a.State),
		TaskID:  taskID,
	})
	return nil
}

// Reject refuses an assignment. The task is reclaimed under the given
// reason and the agent returns to idle.
func (r *Registry) Reject(ctx context.Context, id, taskID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if a.CurrentTaskID != taskID {
		return ErrTaskMismatch
	}
	if err := r.transitionLocked(a, EventReject); err != nil {
		return err
	}
	a.CurrentTaskID = ""
	a.AcceptDeadlineMs = 0
	r.stopTimerLocked(id)

	reclaimReason := reason
	if reclaimReason == "" {
		reclaimReason = "rejected"
	}
	if _, err := r.queue.Reclaim(ctx, taskID, reclaimReason); err != nil {
		r.logger.WithAgentID(id).WithTaskID(taskID).WithError(err).Warn("Reclaim on reject failed")
	}
	r.logger.WithAgentID(id).WithTaskID(taskID).Info("Assignment rejected", zap.String("reason", reason))
	r.publishIdle(ctx, a)
	return nil
}

// Complete records that the agent finished its task and is idle again.
// The queue mutation happens separately via the queue service.
func (r *Registry) Complete(ctx context.Context, id, taskID string) error {
	return r.finishTask(ctx, id, taskID, EventComplete)
}

// Fail records that the agent gave up on its task and is idle again.
func (r *Registry) Fail(ctx context.Context, id, taskID string) error {
	return r.finishTask(ctx, id, taskID, EventFail)
}

func (r *Registry) finishTask(ctx context.Context, id, taskID string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if a.CurrentTaskID != taskID {
		return ErrTaskMismatch
	}
	if err := r.transitionLocked(a, event); err != nil {
		return err
	}
	a.CurrentTaskID = ""
	a.AcceptDeadlineMs = 0

	r.publishIdle(ctx, a)
	return nil
}

// Resume puts a reconnected agent straight back to working on the task
// it held before the connection dropped.
func (r *Registry) Resume(ctx context.Context, id, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if err := r.transitionLocked(a, EventRecover); err != nil {
		return err
	}
	a.CurrentTaskID = taskID

	r.publish(ctx, events.AgentStateChanged, events.AgentEvent{
		AgentID: id,
		State:   string(a.State),
		TaskID:  taskID,
	})
	return nil
}

// Block marks an agent as unavailable for scheduling. An agent blocked
// mid-task loses the task back to the queue so it is not stranded.
func (r *Registry) Block(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	taskID := a.CurrentTaskID
	if err := r.transitionLocked(a, EventBlock); err != nil {
		return err
	}
	a.CurrentTaskID = ""
	a.AcceptDeadlineMs = 0
	r.stopTimerLocked(id)

	if taskID != "" {
		if _, err := r.queue.Reclaim(ctx, taskID, "agent_blocked"); err != nil {
			r.logger.WithAgentID(id).WithTaskID(taskID).WithError(err).Warn("Reclaim on block failed")
		}
	}
	r.logger.WithAgentID(id).Info("Agent blocked", zap.String("reason", reason))
	r.publish(ctx, events.AgentStateChanged, events.AgentEvent{
		AgentID: id,
		State:   string(a.State),
		Reason:  reason,
	})
	return nil
}

// Unblock returns a blocked agent to idle.
func (r *Registry) Unblock(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if err := r.transitionLocked(a, EventUnblock); err != nil {
		return err
	}
	r.publishIdle(ctx, a)
	return nil
}

// Heartbeat refreshes the agent's liveness timestamp.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	a.LastSeenMs = nowMs()
	return nil
}

// Get returns a copy of one agent record.
func (r *Registry) Get(ctx context.Context, id string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a.Clone(), nil
}

// ListAll returns copies of every known agent record, sorted by id.
func (r *Registry) ListAll(ctx context.Context) []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// onAcceptTimeout fires when an assigned agent never accepted. State is
// re-read under the lock: the timer only acts if the agent still holds
// the same assignment.
func (r *Registry) onAcceptTimeout(id, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.timers, id)
	a, ok := r.agents[id]
	if !ok || a.State != StateAssigned || a.CurrentTaskID != taskID {
		return
	}
	if err := r.transitionLocked(a, EventAcceptTimeout); err != nil {
		return
	}
	a.CurrentTaskID = ""
	a.AcceptDeadlineMs = 0
	a.SlowAccept = true

	ctx := context.Background()
	if _, err := r.queue.Reclaim(ctx, taskID, "accept_timeout"); err != nil {
		r.logger.WithAgentID(id).WithTaskID(taskID).WithError(err).Warn("Reclaim on accept timeout failed")
	}
	r.logger.WithAgentID(id).WithTaskID(taskID).Warn("Acceptance timed out")
	r.publishIdle(ctx, a)
}

// transitionLocked applies event to the agent's state. Caller holds the
// lock.
func (r *Registry) transitionLocked(a *Agent, event Event) error {
	next, ok := nextState(a.State, event)
	if !ok {
		return &TransitionError{From: a.State, Event: event}
	}
	a.State = next
	a.LastStateChangeMs = nowMs()
	return nil
}

func (r *Registry) stopTimerLocked(id string) {
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// publishIdle announces an agent returning to idle, which is a
// scheduling opportunity.
func (r *Registry) publishIdle(ctx context.Context, a *Agent) {
	r.publish(ctx, events.AgentIdle, events.AgentEvent{
		AgentID:      a.ID,
		State:        string(a.State),
		Capabilities: append([]string(nil), a.Capabilities...),
	})
}

func (r *Registry) publish(ctx context.Context, subject string, payload events.AgentEvent) {
	if r.eventBus == nil {
		return
	}
	event := bus.NewEvent(subject, eventSource, payload)
	if err := r.eventBus.Publish(ctx, subject, event); err != nil {
		r.logger.WithError(err).Warn("Failed to publish agent event", zap.String("subject", subject))
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
