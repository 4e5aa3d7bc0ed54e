package scheduler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/routing"
)

// Trigger subjects. tasks.assigned is deliberately absent (assignments
// are produced by the scheduler itself) and so is tasks.dead_letter
// (a dead-lettered task is not a scheduling opportunity).
func (s *Scheduler) subscribeLocked() error {
	triggers := []struct {
		subject string
		handler bus.EventHandler
	}{
		{events.TaskSubmitted, s.handleTaskTrigger},
		{events.TaskRetried, s.handleTaskTrigger},
		{events.TaskReclaimed, s.handleTaskSettled},
		{events.TaskCompleted, s.handleTaskSettled},
		{events.AgentJoined, s.handleAgentTrigger},
		{events.AgentIdle, s.handleAgentTrigger},
		{events.EndpointChanged, s.handleEndpointChanged},
	}
	for _, tr := range triggers {
		sub, err := s.eventBus.QueueSubscribe(tr.subject, queueName, tr.handler)
		if err != nil {
			s.logger.Error("Failed to subscribe to trigger",
				zap.String("subject", tr.subject),
				zap.Error(err))
			s.unsubscribeAllLocked()
			return err
		}
		s.subscriptions = append(s.subscriptions, sub)
	}
	return nil
}

func (s *Scheduler) unsubscribeAllLocked() {
	for _, sub := range s.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	s.subscriptions = nil
}

func (s *Scheduler) handleTaskTrigger(ctx context.Context, event *bus.Event) error {
	s.wake()
	return nil
}

// handleTaskSettled fires when a task leaves the queued or assigned
// state in a way that may free dependents or invalidate a pending
// fallback timer.
func (s *Scheduler) handleTaskSettled(ctx context.Context, event *bus.Event) error {
	var data events.TaskEvent
	if err := parseEventData(event.Data, &data); err != nil {
		s.logger.Error("Failed to parse task event",
			zap.String("event_type", event.Type),
			zap.Error(err))
		return nil
	}
	if data.TaskID != "" {
		s.cancelFallback(data.TaskID)
	}
	s.wake()
	return nil
}

func (s *Scheduler) handleAgentTrigger(ctx context.Context, event *bus.Event) error {
	s.wake()
	return nil
}

// handleEndpointChanged refreshes the endpoint view before waking the
// matcher. Synthetic fallback events carry no endpoint host and only
// serve as a trigger.
func (s *Scheduler) handleEndpointChanged(ctx context.Context, event *bus.Event) error {
	var data events.EndpointEvent
	if err := parseEventData(event.Data, &data); err != nil {
		s.logger.Error("Failed to parse endpoint event", zap.Error(err))
		return nil
	}
	if data.Endpoint != "" {
		if !s.endpoints.SetStatus(data.Endpoint, data.Status) && data.Tier != "" {
			s.endpoints.Upsert(routingEndpoint(data))
		}
	}
	s.wake()
	return nil
}

func routingEndpoint(data events.EndpointEvent) routing.Endpoint {
	return routing.Endpoint{
		Host:   data.Endpoint,
		Tier:   data.Tier,
		Status: data.Status,
	}
}

// parseEventData converts event payloads that may arrive either as the
// original struct (in-process bus) or as a decoded map (NATS).
func parseEventData(data any, target any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
