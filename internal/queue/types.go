// Package queue owns the canonical task state: the durable task tables, the
// in-memory priority index over queued tasks, and every lifecycle
// transition. All mutations persist before publishing and are fenced by a
// per-task generation counter.
package queue

import (
	"sort"

	"github.com/agentcom/agentcom/internal/routing"
)

// Task statuses.
const (
	StatusQueued     = "queued"
	StatusAssigned   = "assigned"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusDeadLetter = "dead_letter"
	StatusExpired    = "expired"
)

// Task priorities, projected to an integer rank where the lowest rank is
// scheduled first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// priorityRanks maps priority names to their scheduling rank.
var priorityRanks = map[string]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityNormal: 2,
	PriorityLow:    3,
}

// PriorityRank returns the integer rank for a priority name. Unknown names
// rank as normal.
func PriorityRank(priority string) int {
	if rank, ok := priorityRanks[priority]; ok {
		return rank
	}
	return priorityRanks[PriorityNormal]
}

// ValidPriority reports whether the name is one of the four priority lanes.
func ValidPriority(priority string) bool {
	_, ok := priorityRanks[priority]
	return ok
}

// MaxDescriptionLen bounds the free-text task payload.
const MaxDescriptionLen = 10000

// maxHistoryEntries caps the per-task history; the oldest entry is dropped
// on append past the cap.
const maxHistoryEntries = 50

// HistoryEntry records one lifecycle event on a task.
type HistoryEntry struct {
	Event       string `json:"event"`
	TimestampMs int64  `json:"timestamp_ms"`
	Details     string `json:"details,omitempty"`
}

// Task is the unit of durable work.
type Task struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Priority    string         `json:"priority"`
	Status      string         `json:"status"`

	// AssignedTo and AssignedAtMs are non-zero exactly while the task is
	// assigned.
	AssignedTo   string `json:"assigned_to,omitempty"`
	AssignedAtMs int64  `json:"assigned_at_ms,omitempty"`

	CreatedAtMs  int64 `json:"created_at_ms"`
	UpdatedAtMs  int64 `json:"updated_at_ms"`
	CompleteByMs int64 `json:"complete_by_ms,omitempty"`

	// Generation increases on every assign, retry, and reclaim. Completions
	// and failures must present the generation they were assigned under.
	Generation int64 `json:"generation"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	NeededCapabilities []string `json:"needed_capabilities,omitempty"`
	DependsOn          []string `json:"depends_on,omitempty"`
	Repo               string   `json:"repo,omitempty"`
	AssignTo           string   `json:"assign_to,omitempty"`

	RoutingDecision *routing.Decision `json:"routing_decision,omitempty"`

	LastError          string         `json:"last_error,omitempty"`
	Result             map[string]any `json:"result,omitempty"`
	TokensUsed         int64          `json:"tokens_used,omitempty"`
	VerificationReport map[string]any `json:"verification_report,omitempty"`

	History []HistoryEntry `json:"history,omitempty"`
}

// Clone returns a deep-enough copy for handing outside the service lock.
// Maps and slices are copied one level down; nested values are treated as
// immutable by convention.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.Result != nil {
		c.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	if t.VerificationReport != nil {
		c.VerificationReport = make(map[string]any, len(t.VerificationReport))
		for k, v := range t.VerificationReport {
			c.VerificationReport[k] = v
		}
	}
	c.NeededCapabilities = append([]string(nil), t.NeededCapabilities...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.History = append([]HistoryEntry(nil), t.History...)
	if t.RoutingDecision != nil {
		rd := *t.RoutingDecision
		c.RoutingDecision = &rd
	}
	return &c
}

// appendHistory appends an entry, dropping the oldest past the cap.
func (t *Task) appendHistory(entry HistoryEntry) {
	t.History = append(t.History, entry)
	if len(t.History) > maxHistoryEntries {
		t.History = t.History[len(t.History)-maxHistoryEntries:]
	}
}

// SubmitParams carries everything a submitter may set on a new task.
type SubmitParams struct {
	Description        string
	Metadata           map[string]any
	Priority           string
	MaxRetries         int
	CompleteByMs       int64
	NeededCapabilities []string
	DependsOn          []string
	Repo               string
	AssignTo           string
}

// AssignOpts tunes a single assignment.
type AssignOpts struct {
	// CompleteByMs overrides the task deadline for this assignment. Zero
	// leaves the submitted deadline in place.
	CompleteByMs int64
}

// CompleteParams carries the completion payload reported by the agent.
type CompleteParams struct {
	Result             map[string]any
	TokensUsed         int64
	VerificationReport map[string]any
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   string
	Priority string
	Assignee string
}

// FailOutcome reports which path a Fail took.
type FailOutcome int

const (
	// FailRetried means the task went back to queued with a bumped
	// generation.
	FailRetried FailOutcome = iota
	// FailDeadLetter means the task reached max retries and moved to the
	// dead-letter table.
	FailDeadLetter
)

// RecoverOutcome reports the reconnect reconciliation verdict.
type RecoverOutcome int

const (
	// RecoverContinue means the task is still assigned to the reconnecting
	// agent under the same generation; the agent resumes work.
	RecoverContinue RecoverOutcome = iota
	// RecoverReassign means the task moved on while the agent was away; the
	// agent must drop it.
	RecoverReassign
)

// Stats summarizes queue contents.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	QueueDepth int            `json:"queue_depth"`
	DeadLetter int            `json:"dead_letter"`
}

// sortTasks orders by (priority rank, created_at_ms, id) ascending, the
// same order the priority index uses.
func sortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		ri, rj := PriorityRank(tasks[i].Priority), PriorityRank(tasks[j].Priority)
		if ri != rj {
			return ri < rj
		}
		if tasks[i].CreatedAtMs != tasks[j].CreatedAtMs {
			return tasks[i].CreatedAtMs < tasks[j].CreatedAtMs
		}
		return tasks[i].ID < tasks[j].ID
	})
}
