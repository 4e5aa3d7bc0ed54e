package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/storage"
)

type watcherEnv struct {
	bus      *bus.MemoryEventBus
	queue    *queue.Service
	registry *agent.Registry
	watcher  *Watcher
}

func setupWatcher(t *testing.T) *watcherEnv {
	t.Helper()
	log := logger.Default()
	memBus := bus.NewMemoryEventBus(log, 256)
	store := storage.NewMemoryStore()
	q, err := queue.NewService(store, memBus, log, queue.Options{})
	require.NoError(t, err)
	reg := agent.NewRegistry(q, memBus, log, agent.Options{
		AcceptanceTimeout: time.Hour,
		StaleThreshold:    time.Hour,
		ReaperInterval:    time.Hour,
	})
	w := NewWatcher(memBus, q, reg, log)
	require.NoError(t, w.Start())
	t.Cleanup(func() {
		w.Stop()
		memBus.Close()
	})
	return &watcherEnv{bus: memBus, queue: q, registry: reg, watcher: w}
}

// The collectors are package globals shared across tests, so every
// assertion compares against a before value instead of zero.
func eventuallyDelta(t *testing.T, read func() float64, before, delta float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return read() == before+delta
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTaskLifecycleCounters(t *testing.T) {
	env := setupWatcher(t)
	ctx := context.Background()

	submitted := testutil.ToFloat64(TasksSubmitted.WithLabelValues(queue.PriorityUrgent))
	assigned := testutil.ToFloat64(TasksAssigned.WithLabelValues("unknown"))
	retried := testutil.ToFloat64(TasksRetried)
	deadLettered := testutil.ToFloat64(TasksDeadLettered)

	task, err := env.queue.Submit(ctx, queue.SubmitParams{
		Description: "reindex the search cluster",
		Priority:    queue.PriorityUrgent,
		MaxRetries:  2,
	})
	require.NoError(t, err)
	eventuallyDelta(t, func() float64 {
		return testutil.ToFloat64(TasksSubmitted.WithLabelValues(queue.PriorityUrgent))
	}, submitted, 1)

	_, err = env.queue.Assign(ctx, task.ID, "agent-1", queue.AssignOpts{})
	require.NoError(t, err)
	eventuallyDelta(t, func() float64 {
		return testutil.ToFloat64(TasksAssigned.WithLabelValues("unknown"))
	}, assigned, 1)

	_, _, err = env.queue.Fail(ctx, task.ID, 1, "node crashed")
	require.NoError(t, err)
	eventuallyDelta(t, func() float64 { return testutil.ToFloat64(TasksRetried) }, retried, 1)

	_, err = env.queue.Assign(ctx, task.ID, "agent-1", queue.AssignOpts{})
	require.NoError(t, err)
	_, _, err = env.queue.Fail(ctx, task.ID, 3, "node crashed again")
	require.NoError(t, err)
	eventuallyDelta(t, func() float64 { return testutil.ToFloat64(TasksDeadLettered) }, deadLettered, 1)
}

func TestReclaimCounterCarriesReason(t *testing.T) {
	env := setupWatcher(t)
	ctx := context.Background()

	before := testutil.ToFloat64(TasksReclaimed.WithLabelValues("overdue"))
	task, err := env.queue.Submit(ctx, queue.SubmitParams{Description: "slow batch job"})
	require.NoError(t, err)
	_, err = env.queue.Assign(ctx, task.ID, "agent-1", queue.AssignOpts{})
	require.NoError(t, err)
	_, err = env.queue.Reclaim(ctx, task.ID, "overdue")
	require.NoError(t, err)

	eventuallyDelta(t, func() float64 {
		return testutil.ToFloat64(TasksReclaimed.WithLabelValues("overdue"))
	}, before, 1)
}

func TestQueueDepthGaugeTracksSubmissions(t *testing.T) {
	env := setupWatcher(t)
	ctx := context.Background()

	_, err := env.queue.Submit(ctx, queue.SubmitParams{Description: "first"})
	require.NoError(t, err)
	_, err = env.queue.Submit(ctx, queue.SubmitParams{Description: "second"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(QueueDepth) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectedAgentsGauge(t *testing.T) {
	env := setupWatcher(t)
	ctx := context.Background()

	_, err := env.registry.Connect(ctx, "agent-1", nil, agent.ConnectOpts{})
	require.NoError(t, err)
	_, err = env.registry.Connect(ctx, "agent-2", nil, agent.ConnectOpts{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ConnectedAgents) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.registry.Disconnect(ctx, "agent-2", "gone"))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ConnectedAgents) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDropEventsCounted(t *testing.T) {
	env := setupWatcher(t)

	before := testutil.ToFloat64(EventBusDrops.WithLabelValues(events.TaskAssigned))
	err := env.bus.Publish(context.Background(), events.EventBusDrop,
		bus.NewEvent(events.EventBusDrop, "event-bus",
			events.DropEvent{Subject: events.TaskAssigned, Dropped: 4}))
	require.NoError(t, err)

	eventuallyDelta(t, func() float64 {
		return testutil.ToFloat64(EventBusDrops.WithLabelValues(events.TaskAssigned))
	}, before, 1)
}

func TestResourceSink(t *testing.T) {
	env := setupWatcher(t)

	env.watcher.ObserveAgentResources("agent-9", map[string]float64{"cpu_pct": 41.5})
	assert.Equal(t, 41.5,
		testutil.ToFloat64(AgentResourceUsage.WithLabelValues("agent-9", "cpu_pct")))
}
