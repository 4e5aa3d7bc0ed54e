// Package events provides event names and payload types for the AgentCom event system.
package events

// Topics group related subjects. Subjects are "<topic>.<event_name>".
const (
	TopicTasks    = "tasks"
	TopicPresence = "presence"
	TopicRouting  = "routing"
	TopicSystem   = "system"
)

// Event subjects for task lifecycle transitions. One event is published per
// committed queue mutation.
const (
	TaskSubmitted  = "tasks.submitted"
	TaskAssigned   = "tasks.assigned"
	TaskAccepted   = "tasks.accepted"
	TaskCompleted  = "tasks.completed"
	TaskRetried    = "tasks.retried"
	TaskDeadLetter = "tasks.dead_letter"
	TaskReclaimed  = "tasks.reclaimed"
	TaskExpired    = "tasks.expired"
)

// Event subjects for agent presence.
const (
	AgentJoined       = "presence.agent_joined"
	AgentLeft         = "presence.agent_left"
	AgentIdle         = "presence.agent_idle"
	AgentStateChanged = "presence.agent_state_changed"
)

// Event subjects for routing.
const (
	EndpointChanged = "routing.endpoint_changed"
)

// Meta event subjects.
const (
	EventBusDrop   = "system.event_bus_drop"
	MailboxHigh    = "system.actor_mailbox_high"
	TableCorrupted = "system.table_corrupted"
)

// TaskEvent is the payload of every tasks.* subject.
type TaskEvent struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	Generation int64  `json:"generation,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Tier       string `json:"tier,omitempty"`
}

// AgentEvent is the payload of every presence.* subject.
type AgentEvent struct {
	AgentID      string   `json:"agent_id"`
	State        string   `json:"state,omitempty"`
	TaskID       string   `json:"task_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// EndpointEvent is the payload of routing.endpoint_changed. The scheduler
// also publishes it synthetically when a fallback timer fires.
type EndpointEvent struct {
	Endpoint string `json:"endpoint,omitempty"`
	Status   string `json:"status,omitempty"`
	Tier     string `json:"tier,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

// DropEvent is the payload of system.event_bus_drop.
type DropEvent struct {
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
	Dropped uint64 `json:"dropped"`
}

// MailboxEvent is the payload of system.actor_mailbox_high.
type MailboxEvent struct {
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
	Depth   int    `json:"depth"`
}

// CorruptionEvent is the payload of system.table_corrupted.
type CorruptionEvent struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

// BuildTasksWildcardSubject subscribes to all task lifecycle events.
func BuildTasksWildcardSubject() string {
	return TopicTasks + ".>"
}

// BuildPresenceWildcardSubject subscribes to all presence events.
func BuildPresenceWildcardSubject() string {
	return TopicPresence + ".>"
}

// BuildSystemWildcardSubject subscribes to all meta events.
func BuildSystemWildcardSubject() string {
	return TopicSystem + ".>"
}
