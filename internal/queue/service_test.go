package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/routing"
	"github.com/agentcom/agentcom/internal/storage"
)

// mockEventBus records published events.
type mockEventBus struct {
	mu          sync.Mutex
	published   []*bus.Event
	publishFunc func(ctx context.Context, subject string, event *bus.Event) error
}

func (m *mockEventBus) Publish(ctx context.Context, subject string, event *bus.Event) error {
	m.mu.Lock()
	m.published = append(m.published, event)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, subject, event)
	}
	return nil
}

func (m *mockEventBus) Subscribe(subject string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (m *mockEventBus) QueueSubscribe(subject, queue string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (m *mockEventBus) Request(ctx context.Context, subject string, event *bus.Event, timeout time.Duration) (*bus.Event, error) {
	return nil, errors.New("not implemented")
}

func (m *mockEventBus) Close() {}

func (m *mockEventBus) IsConnected() bool { return true }

func (m *mockEventBus) eventsOf(subject string) []*bus.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*bus.Event
	for _, ev := range m.published {
		if ev.Type == subject {
			out = append(out, ev)
		}
	}
	return out
}

func setupService(t *testing.T) (*Service, *storage.MemoryStore, *mockEventBus) {
	t.Helper()
	store := storage.NewMemoryStore()
	eventBus := &mockEventBus{}
	svc, err := NewService(store, eventBus, nil, Options{})
	require.NoError(t, err)
	return svc, store, eventBus
}

func submitTask(t *testing.T, svc *Service, params SubmitParams) *Task {
	t.Helper()
	if params.Description == "" {
		params.Description = "test task"
	}
	task, err := svc.Submit(context.Background(), params)
	require.NoError(t, err)
	return task
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	t.Run("missing description", func(t *testing.T) {
		_, err := svc.Submit(ctx, SubmitParams{})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("whitespace description", func(t *testing.T) {
		_, err := svc.Submit(ctx, SubmitParams{Description: "   "})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("oversized description", func(t *testing.T) {
		_, err := svc.Submit(ctx, SubmitParams{Description: strings.Repeat("x", MaxDescriptionLen+1)})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("unknown priority", func(t *testing.T) {
		_, err := svc.Submit(ctx, SubmitParams{Description: "ok", Priority: "mega"})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestSubmitDefaults(t *testing.T) {
	svc, _, eventBus := setupService(t)

	task := submitTask(t, svc, SubmitParams{Description: "do the thing"})

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, PriorityNormal, task.Priority)
	assert.Equal(t, int64(0), task.Generation)
	assert.Equal(t, defaultMaxRetries, task.MaxRetries)
	assert.NotZero(t, task.CreatedAtMs)
	require.Len(t, task.History, 1)
	assert.Equal(t, "submitted", task.History[0].Event)

	require.Len(t, eventBus.eventsOf(events.TaskSubmitted), 1)
}

func TestSubmitGetRoundTrip(t *testing.T) {
	svc, _, _ := setupService(t)

	submitted := submitTask(t, svc, SubmitParams{
		Description:        "round trip",
		Priority:           PriorityHigh,
		NeededCapabilities: []string{"code"},
		DependsOn:          []string{"other-id"},
		Repo:               "core",
		Metadata:           map[string]any{"k": "v"},
	})

	got, err := svc.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, submitted.ID, got.ID)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, []string{"code"}, got.NeededCapabilities)
	assert.Equal(t, "core", got.Repo)
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestGetNotFound(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDequeueNextOrdering(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	submitTask(t, svc, SubmitParams{Description: "low", Priority: PriorityLow})
	urgent := submitTask(t, svc, SubmitParams{Description: "urgent", Priority: PriorityUrgent})

	head, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, head.ID)

	// Peek does not mutate.
	again, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, again.ID)
}

func TestDequeueNextEmpty(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.DequeueNext(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAssign(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	assert.Equal(t, StatusAssigned, assigned.Status)
	assert.Equal(t, "agent-1", assigned.AssignedTo)
	assert.NotZero(t, assigned.AssignedAtMs)
	assert.Equal(t, int64(1), assigned.Generation)

	_, err = svc.DequeueNext(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	require.Len(t, eventBus.eventsOf(events.TaskAssigned), 1)
}

func TestAssignRequiresQueued(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	_, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	_, err = svc.Assign(ctx, task.ID, "agent-2", AssignOpts{})
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StatusAssigned, stateErr.Status)
}

func TestAssignNotFound(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.Assign(context.Background(), "nope", "agent-1", AssignOpts{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteWithValidGeneration(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, task.ID, assigned.Generation, CompleteParams{
		Result:     map[string]any{"ok": true},
		TokensUsed: 1200,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Empty(t, completed.AssignedTo)
	assert.Zero(t, completed.AssignedAtMs)
	assert.Equal(t, int64(1200), completed.TokensUsed)

	require.Len(t, eventBus.eventsOf(events.TaskCompleted), 1)
}

func TestCompleteStaleGenerationDoesNotMutate(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, task.ID, assigned.Generation-1, CompleteParams{})
	assert.ErrorIs(t, err, ErrStaleGeneration)

	got, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)
	assert.Equal(t, "agent-1", got.AssignedTo)
}

func TestCompleteTwiceRejected(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, task.ID, assigned.Generation, CompleteParams{})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, task.ID, assigned.Generation, CompleteParams{})
	var stateErr *InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestFailRequeuesBelowMaxRetries(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{MaxRetries: 3})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	outcome, failed, err := svc.Fail(ctx, task.ID, assigned.Generation, "worker crashed")
	require.NoError(t, err)
	assert.Equal(t, FailRetried, outcome)
	assert.Equal(t, StatusQueued, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, assigned.Generation+1, failed.Generation)
	assert.Empty(t, failed.AssignedTo)
	assert.Equal(t, "worker crashed", failed.LastError)

	head, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, head.ID)

	require.Len(t, eventBus.eventsOf(events.TaskRetried), 1)
}

func TestFailDeadLettersAtMaxRetries(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{MaxRetries: 2})

	for i := 0; i < 2; i++ {
		assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
		require.NoError(t, err)
		outcome, _, err := svc.Fail(ctx, task.ID, assigned.Generation, "boom")
		require.NoError(t, err)
		if i < 1 {
			assert.Equal(t, FailRetried, outcome)
		} else {
			assert.Equal(t, FailDeadLetter, outcome)
		}
	}

	got, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeadLetter, got.Status)
	assert.Equal(t, 2, got.RetryCount)

	_, err = svc.DequeueNext(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	require.Len(t, eventBus.eventsOf(events.TaskDeadLetter), 1)
}

func TestRetryDeadLetter(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{MaxRetries: 1})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)
	outcome, _, err := svc.Fail(ctx, task.ID, assigned.Generation, "boom")
	require.NoError(t, err)
	require.Equal(t, FailDeadLetter, outcome)

	retried, err := svc.RetryDeadLetter(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, retried.Status)
	assert.Zero(t, retried.RetryCount)
	assert.Empty(t, retried.LastError)
	assert.Greater(t, retried.Generation, assigned.Generation)
	// History survives the dead-letter round trip.
	assert.GreaterOrEqual(t, len(retried.History), 3)

	head, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, head.ID)
}

func TestRetryDeadLetterNotFound(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.RetryDeadLetter(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReclaim(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	reclaimed, err := svc.Reclaim(ctx, task.ID, "stuck")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, reclaimed.Status)
	assert.Empty(t, reclaimed.AssignedTo)
	assert.Equal(t, assigned.Generation+1, reclaimed.Generation)

	evs := eventBus.eventsOf(events.TaskReclaimed)
	require.Len(t, evs, 1)

	// The old assignee's generation is now stale.
	_, err = svc.Complete(ctx, task.ID, assigned.Generation, CompleteParams{})
	assert.ErrorIs(t, err, ErrStaleGeneration)
}

func TestReclaimRequiresAssigned(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	_, err := svc.Reclaim(ctx, task.ID, "manual")
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestReclaimThenReassignFencesZombie(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	first, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	_, err = svc.Reclaim(ctx, task.ID, "disconnect")
	require.NoError(t, err)

	second, err := svc.Assign(ctx, task.ID, "agent-2", AssignOpts{})
	require.NoError(t, err)
	assert.Equal(t, first.Generation+2, second.Generation)

	// Zombie completion under the first generation bounces.
	_, err = svc.Complete(ctx, task.ID, first.Generation, CompleteParams{})
	assert.ErrorIs(t, err, ErrStaleGeneration)

	// The live assignee's completion lands.
	completed, err := svc.Complete(ctx, task.ID, second.Generation, CompleteParams{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
}

func TestRecoverOutcomes(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	t.Run("continue when still assigned to agent", func(t *testing.T) {
		task := submitTask(t, svc, SubmitParams{})
		_, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
		require.NoError(t, err)

		outcome, got, err := svc.Recover(ctx, task.ID, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, RecoverContinue, outcome)
		assert.Equal(t, task.ID, got.ID)
	})

	t.Run("reassign when moved to another agent", func(t *testing.T) {
		task := submitTask(t, svc, SubmitParams{})
		_, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
		require.NoError(t, err)
		_, err = svc.Reclaim(ctx, task.ID, "disconnect")
		require.NoError(t, err)
		_, err = svc.Assign(ctx, task.ID, "agent-2", AssignOpts{})
		require.NoError(t, err)

		outcome, _, err := svc.Recover(ctx, task.ID, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, RecoverReassign, outcome)
	})

	t.Run("reassign when completed", func(t *testing.T) {
		task := submitTask(t, svc, SubmitParams{})
		assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
		require.NoError(t, err)
		_, err = svc.Complete(ctx, task.ID, assigned.Generation, CompleteParams{})
		require.NoError(t, err)

		outcome, _, err := svc.Recover(ctx, task.ID, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, RecoverReassign, outcome)
	})

	t.Run("not found", func(t *testing.T) {
		_, _, err := svc.Recover(ctx, "nope", "agent-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestExpire(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	expired, err := svc.Expire(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	_, err = svc.DequeueNext(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
	require.Len(t, eventBus.eventsOf(events.TaskExpired), 1)

	// Expire is only valid from queued.
	_, err = svc.Expire(ctx, task.ID)
	var stateErr *InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestUpdateProgress(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})

	err := svc.UpdateProgress(ctx, task.ID, "halfway")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	_, err = svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateProgress(ctx, task.ID, "halfway"))

	got, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	last := got.History[len(got.History)-1]
	assert.Equal(t, "progress", last.Event)
	assert.Equal(t, "halfway", last.Details)
}

func TestStoreRoutingDecision(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	decision := &routing.Decision{
		EffectiveTier: routing.TierStandard,
		TargetType:    routing.TargetLocalModel,
	}
	require.NoError(t, svc.StoreRoutingDecision(ctx, task.ID, decision))

	got, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RoutingDecision)
	assert.Equal(t, routing.TierStandard, got.RoutingDecision.EffectiveTier)

	_, err = svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)
	err = svc.StoreRoutingDecision(ctx, task.ID, decision)
	var stateErr *InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestListFilters(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	a := submitTask(t, svc, SubmitParams{Description: "a", Priority: PriorityUrgent})
	b := submitTask(t, svc, SubmitParams{Description: "b", Priority: PriorityLow})
	_, err := svc.Assign(ctx, a.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	all, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Ordered by priority rank.
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	queued, err := svc.List(ctx, Filter{Status: StatusQueued})
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, b.ID, queued[0].ID)

	mine, err := svc.List(ctx, Filter{Assignee: "agent-1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
}

func TestStats(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	submitTask(t, svc, SubmitParams{Priority: PriorityUrgent})
	task := submitTask(t, svc, SubmitParams{MaxRetries: 1})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)
	_, _, err = svc.Fail(ctx, task.ID, assigned.Generation, "boom")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[StatusQueued])
	assert.Equal(t, 1, stats.ByStatus[StatusDeadLetter])
	assert.Equal(t, 1, stats.QueueDepth)
	assert.Equal(t, 1, stats.DeadLetter)
}

func TestPurgeDeadLetter(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{MaxRetries: 1})
	assigned, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)
	_, _, err = svc.Fail(ctx, task.ID, assigned.Generation, "boom")
	require.NoError(t, err)

	require.NoError(t, svc.PurgeDeadLetter(ctx, task.ID))
	_, err = svc.Get(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.PurgeDeadLetter(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndexRebuildOnRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	eventBus := &mockEventBus{}
	ctx := context.Background()

	first, err := NewService(store, eventBus, nil, Options{})
	require.NoError(t, err)
	queuedTask := submitTask(t, first, SubmitParams{Description: "queued", Priority: PriorityUrgent})
	assignedTask := submitTask(t, first, SubmitParams{Description: "assigned"})
	_, err = first.Assign(ctx, assignedTask.ID, "agent-1", AssignOpts{})
	require.NoError(t, err)

	// A fresh service over the same store rebuilds the index from the
	// persisted queued set only.
	second, err := NewService(store, eventBus, nil, Options{})
	require.NoError(t, err)

	head, err := second.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, queuedTask.ID, head.ID)

	stats, err := second.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.QueueDepth)
}

func TestRebuildSkipsCorruptRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	eventBus := &mockEventBus{}

	table, err := store.Table(storage.TableTaskQueue)
	require.NoError(t, err)
	table.(*storage.MemoryTable).PutRaw("bad", []byte("{not json"))

	svc, err := NewService(store, eventBus, nil, Options{})
	require.NoError(t, err)

	// The corrupt record is reported, not indexed and not deleted.
	require.Len(t, eventBus.eventsOf(events.TableCorrupted), 1)
	_, err = svc.DequeueNext(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = svc.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, storage.ErrTableCorrupted)
}

func TestOverdueSweepReclaims(t *testing.T) {
	svc, _, eventBus := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	_, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{
		CompleteByMs: time.Now().Add(-time.Minute).UnixMilli(),
	})
	require.NoError(t, err)

	svc.sweepOverdueOnce(ctx)

	got, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)

	evs := eventBus.eventsOf(events.TaskReclaimed)
	require.Len(t, evs, 1)
	last := got.History[len(got.History)-1]
	assert.Equal(t, "reclaimed", last.Event)
	assert.Equal(t, "overdue", last.Details)
}

func TestOverdueSweepLeavesFreshTasks(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	task := submitTask(t, svc, SubmitParams{})
	_, err := svc.Assign(ctx, task.ID, "agent-1", AssignOpts{
		CompleteByMs: time.Now().Add(time.Hour).UnixMilli(),
	})
	require.NoError(t, err)

	svc.sweepOverdueOnce(ctx)

	got, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)
}
