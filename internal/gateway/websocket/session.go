package websocket

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/metrics"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/routing"
	"github.com/agentcom/agentcom/pkg/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from an agent.
	maxMessageSize = 512 * 1024 // 512KB

	// Outbound frame buffer per session.
	sendBufferSize = 256
)

// eventSource identifies this component in published events.
const eventSource = "agent-session"

// Deps are the collaborators a session mutates on behalf of its agent.
type Deps struct {
	Queue     *queue.Service
	Registry  *agent.Registry
	Cooldowns *routing.CooldownStore
	Auth      TokenValidator
	EventBus  bus.EventBus

	// Resources receives resource_report frames. Nil drops them.
	Resources ResourceSink
}

// ResourceSink receives agent-side resource reports.
type ResourceSink interface {
	ObserveAgentResources(agentID string, metrics map[string]float64)
}

// Options tunes session behavior. Zero values take the defaults.
type Options struct {
	// HeartbeatInterval is the ping period.
	HeartbeatInterval time.Duration

	// PongWait is the watchdog grace beyond two unanswered pings before
	// the read deadline trips.
	PongWait time.Duration

	// IdentifyTimeout bounds how long an unidentified connection may sit
	// before its first frame.
	IdentifyTimeout time.Duration

	// ViolationThreshold and ViolationWindow parameterize the sliding
	// window of protocol violations that closes the session.
	ViolationThreshold int
	ViolationWindow    time.Duration

	// WakeMaxAttempts is the failed wake attempt count past which the
	// assignment is handed back.
	WakeMaxAttempts int
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = o.HeartbeatInterval / 2
	}
	if o.IdentifyTimeout <= 0 {
		o.IdentifyTimeout = 10 * time.Second
	}
	if o.ViolationThreshold <= 0 {
		o.ViolationThreshold = 10
	}
	if o.ViolationWindow <= 0 {
		o.ViolationWindow = 60 * time.Second
	}
	if o.WakeMaxAttempts <= 0 {
		o.WakeMaxAttempts = 3
	}
}

// Session is one agent connection. AgentID is set once during identify,
// before the session is admitted to the hub, and never changes after.
type Session struct {
	AgentID string

	conn *websocket.Conn
	hub  *Hub
	deps Deps
	opts Options

	// identified is owned by the read pump goroutine.
	identified bool

	// superseded marks a session displaced by a newer connection under
	// the same agent id; its close must not disconnect the agent.
	superseded atomic.Bool

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeText   string
	send        chan []byte
	generations map[string]int64
	violations  []time.Time

	dispatcher *protocol.Dispatcher
	logger     *logger.Logger
}

// NewSession wraps an upgraded connection. Run the pumps to serve it.
func NewSession(conn *websocket.Conn, hub *Hub, deps Deps, opts Options, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	opts.applyDefaults()
	s := &Session{
		conn:        conn,
		hub:         hub,
		deps:        deps,
		opts:        opts,
		send:        make(chan []byte, sendBufferSize),
		generations: make(map[string]int64),
		logger:      log.WithFields(zap.String("component", "ws_session")),
	}
	s.registerHandlers()
	return s
}

// ReadPump reads frames until the connection dies. The first frame must
// identify the agent; everything after goes through the dispatcher.
func (s *Session) ReadPump(ctx context.Context) {
	defer s.cleanup(ctx)

	// The read deadline trips only after two pings go unanswered plus
	// the watchdog grace.
	readWait := 2*s.opts.HeartbeatInterval + s.opts.PongWait

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.IdentifyTimeout))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
		if s.identified {
			_ = s.deps.Registry.Heartbeat(s.AgentID)
		}
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.ClosePolicyViolation) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		if !s.identified {
			if !s.handleIdentify(ctx, message) {
				return
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
			continue
		}
		s.handleFrame(ctx, message)
	}
}

// WritePump owns all writes on the connection: queued frames, pings, and
// the final close frame. One JSON object per WebSocket message.
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close drained the buffer ahead of this; say goodbye.
				s.mu.Lock()
				code, text := s.closeCode, s.closeText
				s.mu.Unlock()
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, text))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close ends the session. Buffered frames are flushed before the close
// frame; the read pump unwinds once the peer or the write pump drops the
// connection.
func (s *Session) Close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.closeCode = code
	s.closeText = text
	close(s.send)
}

// Supersede closes a session displaced by a newer connection under the
// same agent id without releasing the agent's registry record.
func (s *Session) Supersede() {
	s.superseded.Store(true)
	s.logger.Info("Session superseded by newer connection")
	s.Close(websocket.CloseGoingAway, "superseded")
}

// cleanup runs when the read pump exits. A superseded session leaves the
// agent connected; every other close disconnects it, which reclaims any
// held task.
func (s *Session) cleanup(ctx context.Context) {
	if s.identified && !s.superseded.Load() {
		if err := s.deps.Registry.Disconnect(ctx, s.AgentID, "connection_closed"); err != nil &&
			!errors.Is(err, agent.ErrAgentNotFound) {
			s.logger.WithError(err).Debug("Disconnect on close failed")
		}
	}
	s.hub.Remove(s)
	s.Close(websocket.CloseNormalClosure, "")
}

// handleIdentify processes the mandatory first frame. It returns false
// when the session must end.
func (s *Session) handleIdentify(ctx context.Context, data []byte) bool {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil || env.Type != protocol.FrameIdentify {
		s.logger.Warn("First frame was not identify")
		s.push(protocol.NewErrorFrame(protocol.ErrBadFrame))
		s.Close(websocket.ClosePolicyViolation, "identify required")
		return false
	}

	var frame protocol.IdentifyFrame
	if err := env.Decode(&frame); err != nil {
		s.logger.Warn("Malformed identify frame", zap.Error(err))
		s.push(protocol.NewErrorFrame(protocol.ErrBadFrame))
		s.Close(websocket.ClosePolicyViolation, "malformed identify")
		return false
	}

	if err := s.deps.Auth.Validate(ctx, frame.AgentID, frame.Token); err != nil {
		s.logger.Warn("Agent failed authentication", zap.String("agent_id", frame.AgentID))
		s.push(protocol.NewErrorFrame(protocol.ErrUnauthorized))
		s.Close(websocket.ClosePolicyViolation, "unauthorized")
		return false
	}

	if remaining, active := s.deps.Cooldowns.Active(ctx, frame.AgentID); active {
		retryAfter := int64(math.Ceil(remaining.Seconds()))
		s.logger.Warn("Agent reconnected during cooldown",
			zap.String("agent_id", frame.AgentID),
			zap.Int64("retry_after_s", retryAfter))
		s.push(protocol.NewCooldownError(retryAfter))
		s.Close(websocket.ClosePolicyViolation, "cooldown")
		return false
	}

	s.AgentID = frame.AgentID
	s.logger = s.logger.WithAgentID(frame.AgentID)

	if prior := s.hub.Admit(s); prior != nil {
		prior.Supersede()
	}

	if _, err := s.deps.Registry.Connect(ctx, frame.AgentID, frame.Capabilities, agent.ConnectOpts{
		RepoScope:         frame.RepoScope,
		LocalEndpointHost: frame.LocalEndpoint,
	}); err != nil {
		s.logger.WithError(err).Error("Failed to register agent")
		s.Close(websocket.CloseInternalServerErr, "registration failed")
		return false
	}
	s.identified = true
	s.logger.Info("Agent identified",
		zap.String("client_type", frame.ClientType),
		zap.Int("protocol_version", frame.ProtocolVersion),
		zap.Int("capabilities", len(frame.Capabilities)))

	// Reconnect payload: reconcile every task the agent still believes
	// it holds.
	for _, taskID := range frame.ActiveTasks {
		s.recoverTask(ctx, taskID, "")
	}
	return true
}

// handleFrame decodes and dispatches one post-identify frame. Only
// malformed frames count as violations; unknown but well-formed types are
// logged and dropped.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.violation(ctx, err)
		return
	}

	err = s.dispatcher.Dispatch(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrUnknownType):
		s.logger.Debug("Unknown frame type", zap.String("type", string(env.Type)))
	default:
		var verr *protocol.ValidationError
		if errors.As(err, &verr) {
			s.violation(ctx, verr)
			return
		}
		s.logger.WithError(err).Warn("Frame handler failed", zap.String("type", string(env.Type)))
	}
}

// violation records one protocol violation in the sliding window. At the
// threshold the session closes and a durable cooldown is recorded against
// the agent id.
func (s *Session) violation(ctx context.Context, cause error) {
	s.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-s.opts.ViolationWindow)
	kept := s.violations[:0]
	for _, ts := range s.violations {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.violations = append(kept, now)
	count := len(s.violations)
	s.mu.Unlock()

	s.logger.Warn("Protocol violation", zap.Error(cause), zap.Int("violations", count))
	metrics.SessionViolations.Inc()
	s.push(protocol.NewErrorFrame(protocol.ErrBadFrame))
	if count < s.opts.ViolationThreshold {
		return
	}

	if _, err := s.deps.Cooldowns.Record(ctx, s.AgentID); err != nil {
		s.logger.WithError(err).Warn("Failed to record violation cooldown")
	}
	metrics.SessionCooldowns.Inc()
	s.push(protocol.NewErrorFrame(protocol.ErrTooManyViolations))
	s.Close(websocket.ClosePolicyViolation, "too_many_violations")
}

// PushAssignment delivers a task_assign push and records the assignment
// generation for the session's bookkeeping.
func (s *Session) PushAssignment(task *queue.Task) {
	frame := &protocol.TaskAssignFrame{
		Type:               protocol.FrameTaskAssign,
		TaskID:             task.ID,
		Description:        task.Description,
		Metadata:           task.Metadata,
		Generation:         task.Generation,
		AssignedAtMs:       task.AssignedAtMs,
		NeededCapabilities: task.NeededCapabilities,
		DependsOn:          task.DependsOn,
		Repo:               task.Repo,
		RoutingDecision:    wireDecision(task.RoutingDecision),
		Verification:       verificationOptions(task),
	}
	s.recordGeneration(task.ID, task.Generation)
	s.push(frame)
	s.logger.WithTaskID(task.ID).Debug("Assignment pushed", zap.Int64("generation", task.Generation))
}

// push queues an outbound frame. A full buffer drops the frame; the
// acceptance timeout and stuck sweep cover lost assignments.
func (s *Session) push(frame any) {
	data, err := protocol.Encode(frame)
	if err != nil {
		s.logger.Error("Failed to encode frame", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		s.logger.Warn("Session send buffer full, dropping frame")
	}
}

func (s *Session) recordGeneration(taskID string, generation int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[taskID] = generation
}

func (s *Session) clearGeneration(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, taskID)
}

// DeliveredGeneration returns the generation last pushed or continued for
// the task on this session.
func (s *Session) DeliveredGeneration(taskID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.generations[taskID]
	return gen, ok
}

// wireDecision projects a stored routing decision onto the wire schema.
func wireDecision(d *routing.Decision) *protocol.RoutingDecision {
	if d == nil {
		return nil
	}
	return &protocol.RoutingDecision{
		TargetType: d.TargetType,
		Endpoint:   d.SelectedEndpoint,
		Model:      d.SelectedModel,
		Tier:       d.EffectiveTier,
		Fallback:   d.FallbackUsed,
	}
}

// verificationOptions lifts verification hints out of task metadata.
func verificationOptions(task *queue.Task) *protocol.VerificationOptions {
	required, _ := task.Metadata["verification_required"].(bool)
	suite, _ := task.Metadata["verification_suite"].(string)
	if !required && suite == "" {
		return nil
	}
	return &protocol.VerificationOptions{Required: required, Suite: suite}
}
