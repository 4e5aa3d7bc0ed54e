package metrics

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/queue"
)

// Watcher folds bus traffic into the Prometheus collectors. It observes
// the same events every other consumer sees, so the counters stay correct
// no matter which component performed a transition.
type Watcher struct {
	eventBus      bus.EventBus
	queue         *queue.Service
	registry      *agent.Registry
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

func NewWatcher(eventBus bus.EventBus, q *queue.Service, registry *agent.Registry, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Default()
	}
	return &Watcher{
		eventBus: eventBus,
		queue:    q,
		registry: registry,
		logger:   log.WithFields(zap.String("component", "metrics")),
	}
}

// Start subscribes to the task, presence, and system topics.
func (w *Watcher) Start() error {
	subjects := []struct {
		subject string
		handler bus.EventHandler
	}{
		{events.BuildTasksWildcardSubject(), w.handleTaskEvent},
		{events.BuildPresenceWildcardSubject(), w.handlePresenceEvent},
		{events.EventBusDrop, w.handleDropEvent},
	}
	for _, sub := range subjects {
		s, err := w.eventBus.Subscribe(sub.subject, sub.handler)
		if err != nil {
			w.Stop()
			return err
		}
		w.subscriptions = append(w.subscriptions, s)
	}
	return nil
}

func (w *Watcher) Stop() {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	w.subscriptions = nil
}

// ObserveAgentResources records the latest resource report from an agent.
// Wired as the session layer's resource sink.
func (w *Watcher) ObserveAgentResources(agentID string, metrics map[string]float64) {
	for resource, value := range metrics {
		AgentResourceUsage.WithLabelValues(agentID, resource).Set(value)
	}
}

func (w *Watcher) handleTaskEvent(ctx context.Context, event *bus.Event) error {
	var data events.TaskEvent
	if err := parseEventData(event.Data, &data); err != nil {
		w.logger.Warn("Failed to parse task event",
			zap.String("event_type", event.Type),
			zap.Error(err))
		return nil
	}
	switch event.Type {
	case events.TaskSubmitted:
		TasksSubmitted.WithLabelValues(orUnknown(data.Priority)).Inc()
	case events.TaskAssigned:
		TasksAssigned.WithLabelValues(orUnknown(data.Tier)).Inc()
	case events.TaskCompleted:
		TasksCompleted.Inc()
	case events.TaskRetried:
		TasksRetried.Inc()
	case events.TaskDeadLetter:
		TasksDeadLettered.Inc()
	case events.TaskReclaimed:
		TasksReclaimed.WithLabelValues(orUnknown(data.Reason)).Inc()
	case events.TaskExpired:
		TasksExpired.Inc()
	}
	w.refreshQueueGauges(ctx)
	return nil
}

func (w *Watcher) handlePresenceEvent(ctx context.Context, event *bus.Event) error {
	connected := 0
	for _, a := range w.registry.ListAll(ctx) {
		if a.State != agent.StateOffline {
			connected++
		}
	}
	ConnectedAgents.Set(float64(connected))
	return nil
}

func (w *Watcher) handleDropEvent(ctx context.Context, event *bus.Event) error {
	var data events.DropEvent
	if err := parseEventData(event.Data, &data); err != nil {
		return nil
	}
	EventBusDrops.WithLabelValues(orUnknown(data.Subject)).Inc()
	return nil
}

func (w *Watcher) refreshQueueGauges(ctx context.Context) {
	stats, err := w.queue.Stats(ctx)
	if err != nil {
		w.logger.Warn("Failed to read queue stats", zap.Error(err))
		return
	}
	QueueDepth.Set(float64(stats.QueueDepth))
	DeadLetterDepth.Set(float64(stats.DeadLetter))
}

// orUnknown keeps label cardinality defined when an event field is empty.
func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func parseEventData(data any, target any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
