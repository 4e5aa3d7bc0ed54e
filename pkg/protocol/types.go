package protocol

import "fmt"

// Field bounds applied to inbound frames.
const (
	maxIDLen          = 128
	maxTokenLen       = 512
	maxNameLen        = 128
	maxReasonLen      = 2048
	maxCapabilities   = 64
	maxMetricKeys     = 64
	maxTrackedTaskIDs = 64
)

// Validator is implemented by every inbound frame type.
type Validator interface {
	Validate() error
}

// ValidationError reports a frame that failed schema validation. It counts
// as a protocol violation at the session boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid frame: %s: %s", e.Field, e.Reason)
}

// IdentifyFrame is the first frame a connecting agent must send.
type IdentifyFrame struct {
	Type            FrameType `json:"type"`
	AgentID         string    `json:"agent_id"`
	Token           string    `json:"token"`
	Capabilities    []string  `json:"capabilities,omitempty"`
	ClientType      string    `json:"client_type,omitempty"`
	ProtocolVersion int       `json:"protocol_version"`
	// Reconnect payload: task ids the agent believes are in flight,
	// reconciled via the recovery handshake.
	ActiveTasks   []string `json:"active_tasks,omitempty"`
	RepoScope     []string `json:"repo_scope,omitempty"`
	LocalEndpoint string   `json:"local_endpoint,omitempty"`
}

func (f *IdentifyFrame) Validate() error {
	if err := requireID("agent_id", f.AgentID); err != nil {
		return err
	}
	if f.Token == "" {
		return &ValidationError{Field: "token", Reason: "required"}
	}
	if len(f.Token) > maxTokenLen {
		return &ValidationError{Field: "token", Reason: "too long"}
	}
	if f.ProtocolVersion < 1 {
		return &ValidationError{Field: "protocol_version", Reason: "required"}
	}
	if f.ProtocolVersion > Version {
		return &ValidationError{Field: "protocol_version", Reason: fmt.Sprintf("unsupported version %d", f.ProtocolVersion)}
	}
	if len(f.Capabilities) > maxCapabilities {
		return &ValidationError{Field: "capabilities", Reason: "too many entries"}
	}
	for _, c := range f.Capabilities {
		if c == "" || len(c) > maxNameLen {
			return &ValidationError{Field: "capabilities", Reason: "entries must be non-empty and bounded"}
		}
	}
	if len(f.ActiveTasks) > maxTrackedTaskIDs {
		return &ValidationError{Field: "active_tasks", Reason: "too many entries"}
	}
	if err := boundedString("client_type", f.ClientType, maxNameLen); err != nil {
		return err
	}
	return boundedString("local_endpoint", f.LocalEndpoint, maxNameLen)
}

// TaskAcceptedFrame acknowledges a task_assign push.
type TaskAcceptedFrame struct {
	Type   FrameType `json:"type"`
	TaskID string    `json:"task_id"`
}

func (f *TaskAcceptedFrame) Validate() error {
	return requireID("task_id", f.TaskID)
}

// TaskRejectedFrame declines a task_assign push.
type TaskRejectedFrame struct {
	Type   FrameType `json:"type"`
	TaskID string    `json:"task_id"`
	Reason string    `json:"reason,omitempty"`
}

func (f *TaskRejectedFrame) Validate() error {
	if err := requireID("task_id", f.TaskID); err != nil {
		return err
	}
	return boundedString("reason", f.Reason, maxReasonLen)
}

// TaskProgressFrame signals live work; it refreshes the stuck-sweep clock.
type TaskProgressFrame struct {
	Type   FrameType `json:"type"`
	TaskID string    `json:"task_id"`
	Note   string    `json:"note,omitempty"`
}

func (f *TaskProgressFrame) Validate() error {
	if err := requireID("task_id", f.TaskID); err != nil {
		return err
	}
	return boundedString("note", f.Note, maxReasonLen)
}

// TaskCompleteFrame reports terminal success, fenced by generation.
type TaskCompleteFrame struct {
	Type               FrameType      `json:"type"`
	TaskID             string         `json:"task_id"`
	Generation         int64          `json:"generation"`
	Result             map[string]any `json:"result,omitempty"`
	TokensUsed         int64          `json:"tokens_used,omitempty"`
	VerificationReport map[string]any `json:"verification_report,omitempty"`
}

func (f *TaskCompleteFrame) Validate() error {
	if err := requireID("task_id", f.TaskID); err != nil {
		return err
	}
	if f.Generation < 1 {
		return &ValidationError{Field: "generation", Reason: "must be positive"}
	}
	return nil
}

// TaskFailedFrame reports terminal failure, fenced by generation.
type TaskFailedFrame struct {
	Type       FrameType `json:"type"`
	TaskID     string    `json:"task_id"`
	Generation int64     `json:"generation"`
	Reason     string    `json:"reason"`
}

func (f *TaskFailedFrame) Validate() error {
	if err := requireID("task_id", f.TaskID); err != nil {
		return err
	}
	if f.Generation < 1 {
		return &ValidationError{Field: "generation", Reason: "must be positive"}
	}
	if f.Reason == "" {
		return &ValidationError{Field: "reason", Reason: "required"}
	}
	return boundedString("reason", f.Reason, maxReasonLen)
}

// TaskRecoveringFrame starts the reconnect reconciliation handshake.
type TaskRecoveringFrame struct {
	Type       FrameType `json:"type"`
	TaskID     string    `json:"task_id"`
	LastStatus string    `json:"last_status"`
}

func (f *TaskRecoveringFrame) Validate() error {
	if err := requireID("task_id", f.TaskID); err != nil {
		return err
	}
	if f.LastStatus == "" {
		return &ValidationError{Field: "last_status", Reason: "required"}
	}
	return boundedString("last_status", f.LastStatus, maxNameLen)
}

// Wake result statuses.
const (
	WakeStatusOK     = "ok"
	WakeStatusFailed = "failed"
)

// WakeResultFrame reports the outcome of a wake attempt.
type WakeResultFrame struct {
	Type    FrameType `json:"type"`
	TaskID  string    `json:"task_id"`
	Status  string    `json:"status"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func (f *WakeResultFrame) Validate() error {
	if err := requireID("task_id", f.TaskID); err != nil {
		return err
	}
	if f.Status != WakeStatusOK && f.Status != WakeStatusFailed {
		return &ValidationError{Field: "status", Reason: "must be ok or failed"}
	}
	return boundedString("error", f.Error, maxReasonLen)
}

// ResourceReportFrame carries agent-side metrics for the metrics collaborator.
type ResourceReportFrame struct {
	Type    FrameType          `json:"type"`
	Metrics map[string]float64 `json:"metrics"`
}

func (f *ResourceReportFrame) Validate() error {
	if len(f.Metrics) > maxMetricKeys {
		return &ValidationError{Field: "metrics", Reason: "too many entries"}
	}
	for k := range f.Metrics {
		if k == "" || len(k) > maxNameLen {
			return &ValidationError{Field: "metrics", Reason: "keys must be non-empty and bounded"}
		}
	}
	return nil
}

// PingFrame / PongFrame carry the application-level heartbeat.
type PingFrame struct {
	Type FrameType `json:"type"`
}

func (f *PingFrame) Validate() error { return nil }

type PongFrame struct {
	Type FrameType `json:"type"`
}

func (f *PongFrame) Validate() error { return nil }

// RoutingDecision is the wire form of a task's routing annotation.
type RoutingDecision struct {
	TargetType string `json:"target_type"`
	Endpoint   string `json:"endpoint,omitempty"`
	Model      string `json:"model,omitempty"`
	Tier       string `json:"tier"`
	Fallback   bool   `json:"fallback,omitempty"`
}

// VerificationOptions control sidecar-side verification of the result.
type VerificationOptions struct {
	Required bool   `json:"required"`
	Suite    string `json:"suite,omitempty"`
}

// TaskAssignFrame pushes an assignment to the owning session.
type TaskAssignFrame struct {
	Type               FrameType            `json:"type"`
	TaskID             string               `json:"task_id"`
	Description        string               `json:"description"`
	Metadata           map[string]any       `json:"metadata,omitempty"`
	Generation         int64                `json:"generation"`
	AssignedAtMs       int64                `json:"assigned_at"`
	NeededCapabilities []string             `json:"needed_capabilities,omitempty"`
	DependsOn          []string             `json:"depends_on,omitempty"`
	Repo               string               `json:"repo,omitempty"`
	RoutingDecision    *RoutingDecision     `json:"routing_decision,omitempty"`
	Verification       *VerificationOptions `json:"verification,omitempty"`
}

// TaskContinueFrame tells a recovering agent to keep working.
type TaskContinueFrame struct {
	Type       FrameType `json:"type"`
	TaskID     string    `json:"task_id"`
	Generation int64     `json:"generation"`
}

// NewTaskContinue builds a task_continue reply.
func NewTaskContinue(taskID string, generation int64) *TaskContinueFrame {
	return &TaskContinueFrame{Type: FrameTaskContinue, TaskID: taskID, Generation: generation}
}

// TaskCancelledFrame tells a recovering agent to drop the task.
type TaskCancelledFrame struct {
	Type   FrameType `json:"type"`
	TaskID string    `json:"task_id"`
	Reason string    `json:"reason,omitempty"`
}

// NewTaskCancelled builds a task_cancelled reply.
func NewTaskCancelled(taskID, reason string) *TaskCancelledFrame {
	return &TaskCancelledFrame{Type: FrameTaskCancelled, TaskID: taskID, Reason: reason}
}

// WakeAckFrame acknowledges a wake_result.
type WakeAckFrame struct {
	Type   FrameType `json:"type"`
	TaskID string    `json:"task_id"`
}

// NewWakeAck builds a wake_ack reply.
func NewWakeAck(taskID string) *WakeAckFrame {
	return &WakeAckFrame{Type: FrameWakeAck, TaskID: taskID}
}

// ErrorFrame reports a session-level error to the peer.
type ErrorFrame struct {
	Type        FrameType `json:"type"`
	Error       string    `json:"error"`
	RetryAfterS int64     `json:"retry_after_s,omitempty"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(code string) *ErrorFrame {
	return &ErrorFrame{Type: FrameError, Error: code}
}

// NewCooldownError builds the cooldown rejection sent to agents that
// reconnect before their violation backoff has expired.
func NewCooldownError(retryAfterS int64) *ErrorFrame {
	return &ErrorFrame{Type: FrameError, Error: ErrCooldown, RetryAfterS: retryAfterS}
}

// NewPong builds the heartbeat reply.
func NewPong() *PongFrame {
	return &PongFrame{Type: FramePong}
}

func requireID(field, v string) error {
	if v == "" {
		return &ValidationError{Field: field, Reason: "required"}
	}
	if len(v) > maxIDLen {
		return &ValidationError{Field: field, Reason: "too long"}
	}
	return nil
}

func boundedString(field, v string, max int) error {
	if len(v) > max {
		return &ValidationError{Field: field, Reason: "too long"}
	}
	return nil
}
