package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/routing"
	"github.com/agentcom/agentcom/internal/storage"
)

// eventSource identifies queue-published events on the bus.
const eventSource = "queue"

// Options tunes a Service. Zero values take defaults.
type Options struct {
	// DefaultMaxRetries applies when SubmitParams.MaxRetries is zero.
	DefaultMaxRetries int

	// OverdueSweepInterval is the period of RunOverdueSweep.
	OverdueSweepInterval time.Duration
}

const (
	defaultMaxRetries    = 3
	defaultSweepInterval = 30 * time.Second
)

// Service owns canonical task state. Every public operation takes the
// service lock, validates the observed state, persists the mutation, then
// publishes exactly one post-commit event. Reads go through the same lock
// so per-task transitions are totally ordered.
type Service struct {
	mu         sync.Mutex
	active     storage.Table
	deadLetter storage.Table
	eventBus   bus.EventBus
	logger     *logger.Logger
	index      *priorityIndex

	maxRetries    int
	sweepInterval time.Duration
}

// NewService opens the task tables and rebuilds the priority index from the
// persisted queued set. Records that fail to decode are reported via a
// corruption event and left in place; they are never deleted automatically.
func NewService(store storage.Store, eventBus bus.EventBus, log *logger.Logger, opts Options) (*Service, error) {
	if log == nil {
		log = logger.Default()
	}
	active, err := store.Table(storage.TableTaskQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to open task table: %w", err)
	}
	deadLetter, err := store.Table(storage.TableTaskDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter table: %w", err)
	}

	s := &Service{
		active:        active,
		deadLetter:    deadLetter,
		eventBus:      eventBus,
		logger:        log,
		index:         newPriorityIndex(),
		maxRetries:    opts.DefaultMaxRetries,
		sweepInterval: opts.OverdueSweepInterval,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = defaultSweepInterval
	}

	if err := s.rebuildIndex(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// rebuildIndex folds the active table and indexes every queued task.
func (s *Service) rebuildIndex(ctx context.Context) error {
	err := s.active.Fold(ctx, func(id string, record []byte) error {
		task, err := decodeTask(record)
		if err != nil {
			s.reportCorruption(ctx, storage.TableTaskQueue, id, err)
			return nil
		}
		if task.Status == StatusQueued {
			s.index.Add(task.ID, PriorityRank(task.Priority), task.CreatedAtMs)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild priority index: %w", err)
	}
	s.logger.Info("task queue loaded", zap.Int("queued", s.index.Len()))
	return nil
}

// Submit validates the parameters, persists a new queued task, and
// publishes tasks.submitted.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Task, error) {
	if strings.TrimSpace(params.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidParams)
	}
	if len(params.Description) > MaxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidParams, MaxDescriptionLen)
	}
	priority := params.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !ValidPriority(priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidParams, params.Priority)
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}

	now := nowMs()
	task := &Task{
		ID:                 uuid.New().String(),
		Description:        params.Description,
		Metadata:           params.Metadata,
		Priority:           priority,
		Status:             StatusQueued,
		CreatedAtMs:        now,
		UpdatedAtMs:        now,
		CompleteByMs:       params.CompleteByMs,
		Generation:         0,
		MaxRetries:         maxRetries,
		NeededCapabilities: params.NeededCapabilities,
		DependsOn:          params.DependsOn,
		Repo:               params.Repo,
		AssignTo:           params.AssignTo,
	}
	task.appendHistory(HistoryEntry{Event: "submitted", TimestampMs: now})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistActive(ctx, task); err != nil {
		return nil, err
	}
	s.index.Add(task.ID, PriorityRank(priority), task.CreatedAtMs)
	s.publish(ctx, events.TaskSubmitted, events.TaskEvent{
		TaskID:   task.ID,
		Status:   task.Status,
		Priority: task.Priority,
	})
	s.logger.Debug("task submitted",
		zap.String("task_id", task.ID),
		zap.String("priority", task.Priority))
	return task.Clone(), nil
}

// Get returns the task by id, consulting the active table first and the
// dead-letter table second.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// List returns tasks matching the filter ordered by (priority, created_at).
func (s *Service) List(ctx context.Context, filter Filter) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*Task
	collect := func(table storage.Table, tableName string) error {
		return table.Fold(ctx, func(id string, record []byte) error {
			task, err := decodeTask(record)
			if err != nil {
				s.reportCorruption(ctx, tableName, id, err)
				return storage.CorruptionError(tableName, id, err)
			}
			if filter.matches(task) {
				tasks = append(tasks, task.Clone())
			}
			return nil
		})
	}
	if err := collect(s.active, storage.TableTaskQueue); err != nil {
		return nil, err
	}
	if filter.Status == "" || filter.Status == StatusDeadLetter {
		if err := collect(s.deadLetter, storage.TableTaskDeadLetter); err != nil {
			return nil, err
		}
	}

	sortTasks(tasks)
	return tasks, nil
}

func (f Filter) matches(task *Task) bool {
	if f.Status != "" && task.Status != f.Status {
		return false
	}
	if f.Priority != "" && task.Priority != f.Priority {
		return false
	}
	if f.Assignee != "" && task.AssignedTo != f.Assignee {
		return false
	}
	return true
}

// DequeueNext peeks the most urgent queued task without mutating anything.
func (s *Service) DequeueNext(ctx context.Context) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.index.Peek()
	if !ok {
		return nil, ErrEmpty
	}
	task, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// QueuedSnapshot returns clones of every queued task in scheduling order.
// The scheduler uses it as its candidate set.
func (s *Service) QueuedSnapshot(ctx context.Context) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.index.Ordered()
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.loadActive(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task.Clone())
	}
	return tasks, nil
}

// Assign moves a queued task to assigned under a bumped generation and
// publishes tasks.assigned.
func (s *Service) Assign(ctx context.Context, id, agentID string, opts AssignOpts) (*Task, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, tableName, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tableName == storage.TableTaskDeadLetter || task.Status != StatusQueued {
		return nil, &InvalidStateError{Status: task.Status}
	}

	now := nowMs()
	task.Status = StatusAssigned
	task.AssignedTo = agentID
	task.AssignedAtMs = now
	task.UpdatedAtMs = now
	task.Generation++
	if opts.CompleteByMs > 0 {
		task.CompleteByMs = opts.CompleteByMs
	}
	task.appendHistory(HistoryEntry{Event: "assigned", TimestampMs: now, Details: agentID})

	if err := s.persistActive(ctx, task); err != nil {
		return nil, err
	}
	s.index.Remove(task.ID)
	assignedEvent := events.TaskEvent{
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		AgentID:    agentID,
		Generation: task.Generation,
	}
	if task.RoutingDecision != nil {
		assignedEvent.Tier = task.RoutingDecision.EffectiveTier
	}
	s.publish(ctx, events.TaskAssigned, assignedEvent)
	s.logger.Debug("task assigned",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agentID),
		zap.Int64("generation", task.Generation))
	return task.Clone(), nil
}

// Complete finishes an assigned task. The presented generation must match
// the task's current one; a stale generation never mutates.
func (s *Service) Complete(ctx context.Context, id string, generation int64, params CompleteParams) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if generation != task.Generation {
		return nil, fmt.Errorf("%w: presented %d, current %d", ErrStaleGeneration, generation, task.Generation)
	}
	if task.Status != StatusAssigned {
		return nil, &InvalidStateError{Status: task.Status}
	}

	completedBy := task.AssignedTo
	now := nowMs()
	task.Status = StatusCompleted
	task.Result = params.Result
	task.TokensUsed = params.TokensUsed
	task.VerificationReport = params.VerificationReport
	task.AssignedTo = ""
	task.AssignedAtMs = 0
	task.UpdatedAtMs = now
	task.appendHistory(HistoryEntry{Event: "completed", TimestampMs: now, Details: completedBy})

	if err := s.persistActive(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TaskCompleted, events.TaskEvent{
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		AgentID:    completedBy,
		Generation: task.Generation,
	})
	s.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.String("agent_id", completedBy))
	return task.Clone(), nil
}

// Fail records a failure on an assigned task. Below max retries the task
// requeues under a bumped generation; at max retries it moves to the
// dead-letter table.
func (s *Service) Fail(ctx context.Context, id string, generation int64, reason string) (FailOutcome, *Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, _, err := s.load(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if generation != task.Generation {
		return 0, nil, fmt.Errorf("%w: presented %d, current %d", ErrStaleGeneration, generation, task.Generation)
	}
	if task.Status != StatusAssigned {
		return 0, nil, &InvalidStateError{Status: task.Status}
	}

	failedBy := task.AssignedTo
	now := nowMs()
	task.RetryCount++
	task.LastError = reason
	task.AssignedTo = ""
	task.AssignedAtMs = 0
	task.UpdatedAtMs = now
	task.appendHistory(HistoryEntry{Event: "failed", TimestampMs: now, Details: reason})

	if task.RetryCount >= task.MaxRetries {
		task.Status = StatusDeadLetter
		if err := s.persistDeadLetter(ctx, task); err != nil {
			return 0, nil, err
		}
		if err := s.removeActive(ctx, task.ID); err != nil {
			return 0, nil, err
		}
		s.publish(ctx, events.TaskDeadLetter, events.TaskEvent{
			TaskID:     task.ID,
			Status:     task.Status,
			Priority:   task.Priority,
			AgentID:    failedBy,
			Generation: task.Generation,
			Reason:     reason,
		})
		s.logger.Warn("task dead-lettered",
			zap.String("task_id", task.ID),
			zap.Int("retry_count", task.RetryCount),
			zap.String("reason", reason))
		return FailDeadLetter, task.Clone(), nil
	}

	task.Status = StatusQueued
	task.Generation++
	task.appendHistory(HistoryEntry{Event: "retried", TimestampMs: now})
	if err := s.persistActive(ctx, task); err != nil {
		return 0, nil, err
	}
	s.index.Add(task.ID, PriorityRank(task.Priority), task.CreatedAtMs)
	s.publish(ctx, events.TaskRetried, events.TaskEvent{
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		Generation: task.Generation,
		Reason:     reason,
	})
	s.logger.Info("task requeued after failure",
		zap.String("task_id", task.ID),
		zap.Int("retry_count", task.RetryCount),
		zap.String("reason", reason))
	return FailRetried, task.Clone(), nil
}

// UpdateProgress refreshes updated_at on an assigned task so the stuck
// sweep leaves it alone. No status change, no event.
func (s *Service) UpdateProgress(ctx context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, _, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != StatusAssigned {
		return &InvalidStateError{Status: task.Status}
	}

	now := nowMs()
	task.UpdatedAtMs = now
	task.appendHistory(HistoryEntry{Event: "progress", TimestampMs: now, Details: note})
	return s.persistActive(ctx, task)
}

// Recover reconciles a reconnecting agent's claim on a task. The task is
// not mutated either way.
func (s *Service) Recover(ctx context.Context, id, agentID string) (RecoverOutcome, *Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, _, err := s.load(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if task.Status == StatusAssigned && task.AssignedTo == agentID {
		return RecoverContinue, task.Clone(), nil
	}
	return RecoverReassign, task.Clone(), nil
}

// Reclaim forces an assigned task back to queued under a bumped generation.
// The previous assignee's generation becomes stale.
func (s *Service) Reclaim(ctx context.Context, id, reason string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, tableName, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tableName == storage.TableTaskDeadLetter || task.Status != StatusAssigned {
		return nil, fmt.Errorf("%w: status %s", ErrNotAssigned, task.Status)
	}

	now := nowMs()
	task.Status = StatusQueued
	task.AssignedTo = ""
	task.AssignedAtMs = 0
	task.UpdatedAtMs = now
	task.Generation++
	task.appendHistory(HistoryEntry{Event: "reclaimed", TimestampMs: now, Details: reason})

	if err := s.persistActive(ctx, task); err != nil {
		return nil, err
	}
	s.index.Add(task.ID, PriorityRank(task.Priority), task.CreatedAtMs)
	s.publish(ctx, events.TaskReclaimed, events.TaskEvent{
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		Generation: task.Generation,
		Reason:     reason,
	})
	s.logger.Info("task reclaimed",
		zap.String("task_id", task.ID),
		zap.String("reason", reason),
		zap.Int64("generation", task.Generation))
	return task.Clone(), nil
}

// RetryDeadLetter requeues a dead-lettered task with a reset retry budget.
// History survives the trip.
func (s *Service) RetryDeadLetter(ctx context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, tableName, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tableName != storage.TableTaskDeadLetter {
		return nil, &InvalidStateError{Status: task.Status}
	}

	now := nowMs()
	task.Status = StatusQueued
	task.RetryCount = 0
	task.LastError = ""
	task.UpdatedAtMs = now
	task.Generation++
	task.appendHistory(HistoryEntry{Event: "dead_letter_retried", TimestampMs: now})

	if err := s.persistActive(ctx, task); err != nil {
		return nil, err
	}
	if err := s.removeDeadLetter(ctx, task.ID); err != nil {
		return nil, err
	}
	s.index.Add(task.ID, PriorityRank(task.Priority), task.CreatedAtMs)
	s.publish(ctx, events.TaskRetried, events.TaskEvent{
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		Generation: task.Generation,
		Reason:     "dead_letter_retry",
	})
	s.logger.Info("dead-letter task requeued", zap.String("task_id", task.ID))
	return task.Clone(), nil
}

// Expire moves a queued task to expired. The TTL sweep calls this for
// tasks past their time-to-live.
func (s *Service) Expire(ctx context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, tableName, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tableName == storage.TableTaskDeadLetter || task.Status != StatusQueued {
		return nil, &InvalidStateError{Status: task.Status}
	}

	now := nowMs()
	task.Status = StatusExpired
	task.UpdatedAtMs = now
	task.appendHistory(HistoryEntry{Event: "expired", TimestampMs: now})

	if err := s.persistActive(ctx, task); err != nil {
		return nil, err
	}
	s.index.Remove(task.ID)
	s.publish(ctx, events.TaskExpired, events.TaskEvent{
		TaskID:   task.ID,
		Status:   task.Status,
		Priority: task.Priority,
	})
	s.logger.Info("task expired", zap.String("task_id", task.ID))
	return task.Clone(), nil
}

// StoreRoutingDecision annotates a queued task with the resolver's verdict
// ahead of assignment.
func (s *Service) StoreRoutingDecision(ctx context.Context, id string, decision *routing.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, tableName, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if tableName == storage.TableTaskDeadLetter || task.Status != StatusQueued {
		return &InvalidStateError{Status: task.Status}
	}

	task.RoutingDecision = decision
	return s.persistActive(ctx, task)
}

// Stats counts tasks grouped by status and priority.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
		QueueDepth: s.index.Len(),
	}
	err := s.active.Fold(ctx, func(id string, record []byte) error {
		task, err := decodeTask(record)
		if err != nil {
			s.reportCorruption(ctx, storage.TableTaskQueue, id, err)
			return storage.CorruptionError(storage.TableTaskQueue, id, err)
		}
		stats.Total++
		stats.ByStatus[task.Status]++
		stats.ByPriority[task.Priority]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	deadLetters, err := s.deadLetter.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.DeadLetter = deadLetters
	stats.Total += deadLetters
	stats.ByStatus[StatusDeadLetter] += deadLetters
	return stats, nil
}

// PurgeDeadLetter removes a dead-letter row permanently. This is the only
// destructive operation the queue offers; live tasks cannot be purged.
func (s *Service) PurgeDeadLetter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, tableName, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if tableName != storage.TableTaskDeadLetter {
		return &InvalidStateError{Status: task.Status}
	}

	if err := s.removeDeadLetter(ctx, id); err != nil {
		return err
	}
	s.logger.Info("dead-letter task purged", zap.String("task_id", id))
	return nil
}

// Sync flushes the task tables. Called on graceful shutdown.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.active.Sync(ctx); err != nil {
		return err
	}
	return s.deadLetter.Sync(ctx)
}

// load reads id from the active table first, then the dead-letter table.
// Returns the table name the record came from.
func (s *Service) load(ctx context.Context, id string) (*Task, string, error) {
	task, err := s.loadActive(ctx, id)
	if err == nil {
		return task, storage.TableTaskQueue, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}
	task, err = s.loadDeadLetter(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return task, storage.TableTaskDeadLetter, nil
}

func (s *Service) loadActive(ctx context.Context, id string) (*Task, error) {
	return s.loadFrom(ctx, s.active, storage.TableTaskQueue, id)
}

func (s *Service) loadDeadLetter(ctx context.Context, id string) (*Task, error) {
	return s.loadFrom(ctx, s.deadLetter, storage.TableTaskDeadLetter, id)
}

func (s *Service) loadFrom(ctx context.Context, table storage.Table, tableName, id string) (*Task, error) {
	var task Task
	if err := table.Get(ctx, id, &task); err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if errors.Is(err, storage.ErrTableCorrupted) {
			s.reportCorruption(ctx, tableName, id, err)
			return nil, err
		}
		return nil, s.storageFailure(ctx, tableName, id, err)
	}
	return &task, nil
}

func (s *Service) persistActive(ctx context.Context, task *Task) error {
	if err := s.active.Put(ctx, task.ID, task); err != nil {
		return s.storageFailure(ctx, storage.TableTaskQueue, task.ID, err)
	}
	return nil
}

func (s *Service) persistDeadLetter(ctx context.Context, task *Task) error {
	if err := s.deadLetter.Put(ctx, task.ID, task); err != nil {
		return s.storageFailure(ctx, storage.TableTaskDeadLetter, task.ID, err)
	}
	return nil
}

func (s *Service) removeActive(ctx context.Context, id string) error {
	if err := s.active.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return s.storageFailure(ctx, storage.TableTaskQueue, id, err)
	}
	return nil
}

func (s *Service) removeDeadLetter(ctx context.Context, id string) error {
	if err := s.deadLetter.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return s.storageFailure(ctx, storage.TableTaskDeadLetter, id, err)
	}
	return nil
}

// storageFailure logs a durable-store error, publishes the corruption
// event, and returns the error wrapped as table corruption. The caller's
// operation fails; nothing is deleted.
func (s *Service) storageFailure(ctx context.Context, tableName, id string, err error) error {
	s.reportCorruption(ctx, tableName, id, err)
	if errors.Is(err, storage.ErrTableCorrupted) {
		return err
	}
	return storage.CorruptionError(tableName, id, err)
}

func (s *Service) reportCorruption(ctx context.Context, tableName, id string, err error) {
	s.logger.Error("durable store failure",
		zap.String("table", tableName),
		zap.String("task_id", id),
		zap.Error(err))
	ev := bus.NewEvent(events.TableCorrupted, eventSource, events.CorruptionEvent{
		Table: tableName,
		Error: err.Error(),
	})
	if pubErr := s.eventBus.Publish(ctx, events.TableCorrupted, ev); pubErr != nil {
		s.logger.Warn("failed to publish corruption event", zap.Error(pubErr))
	}
}

func (s *Service) publish(ctx context.Context, subject string, payload events.TaskEvent) {
	ev := bus.NewEvent(subject, eventSource, payload)
	if err := s.eventBus.Publish(ctx, subject, ev); err != nil {
		s.logger.Warn("failed to publish queue event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func decodeTask(record []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(record, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
