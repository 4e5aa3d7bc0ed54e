// Package websocket is the agent-facing gateway. Each connection runs one
// Session speaking the JSON frame protocol from pkg/protocol; the Hub keys
// live sessions by agent id and relays queue assignments to the owning
// session as task_assign pushes.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/queue"
)

// Hub tracks the live session per agent id. At most one session per id; a
// newcomer identifying under a held id supersedes the incumbent.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	queue    *queue.Service
	eventBus bus.EventBus
	sub      bus.Subscription
	logger   *logger.Logger
}

// NewHub creates a hub over the queue and event bus.
func NewHub(q *queue.Service, eventBus bus.EventBus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		queue:    q,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Start subscribes the hub to assignment events so they reach the assigned
// agent's session.
func (h *Hub) Start() error {
	sub, err := h.eventBus.Subscribe(events.TaskAssigned, h.handleTaskAssigned)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.TaskAssigned, err)
	}
	h.sub = sub
	h.logger.Info("WebSocket hub started")
	return nil
}

// Stop drops the bus subscription and closes every live session.
func (h *Hub) Stop() {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
		h.sub = nil
	}
	h.CloseAll("server_shutdown")
	h.logger.Info("WebSocket hub stopped")
}

// Admit registers the session under its agent id and returns the session
// it displaced, if any. The caller supersedes the displaced session.
func (h *Hub) Admit(s *Session) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	prior := h.sessions[s.AgentID]
	h.sessions[s.AgentID] = s
	h.logger.Debug("Session registered", zap.String("agent_id", s.AgentID))
	return prior
}

// Remove deregisters the session. A session that was superseded leaves the
// newcomer's registration untouched.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.sessions[s.AgentID]; ok && current == s {
		delete(h.sessions, s.AgentID)
		h.logger.Debug("Session deregistered", zap.String("agent_id", s.AgentID))
	}
}

// Get returns the live session for the agent id.
func (h *Hub) Get(agentID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[agentID]
	return s, ok
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every live session with a going-away frame.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(gorillaws.CloseGoingAway, reason)
	}
}

// handleTaskAssigned pushes a fresh assignment to the assignee's session.
func (h *Hub) handleTaskAssigned(ctx context.Context, event *bus.Event) error {
	var data events.TaskEvent
	if err := parseEventData(event.Data, &data); err != nil {
		h.logger.Warn("Failed to parse task event", zap.Error(err))
		return nil
	}

	s, ok := h.Get(data.AgentID)
	if !ok {
		// The assignee dropped between assignment and delivery; the
		// acceptance timeout hands the task back.
		h.logger.Debug("No live session for assignment",
			zap.String("agent_id", data.AgentID),
			zap.String("task_id", data.TaskID))
		return nil
	}

	task, err := h.queue.Get(ctx, data.TaskID)
	if err != nil {
		h.logger.Warn("Failed to load assigned task",
			zap.String("task_id", data.TaskID),
			zap.Error(err))
		return nil
	}
	s.PushAssignment(task)
	return nil
}

// parseEventData round-trips event payloads through JSON. In-process
// events arrive as typed structs, NATS events as maps; this handles both.
func parseEventData(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
