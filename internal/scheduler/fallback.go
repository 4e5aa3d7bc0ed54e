package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
)

// armFallback starts the escalation timer for a task that could not be
// routed at its preferred tier. At most one timer is pending per task.
func (s *Scheduler) armFallback(taskID, nextTier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if _, pending := s.fallbackTimers[taskID]; pending {
		return
	}
	s.fallbackTimers[taskID] = time.AfterFunc(s.fallbackWait, func() {
		s.fireFallback(taskID, nextTier)
	})
	s.logger.Debug("Fallback timer armed",
		zap.String("task_id", taskID),
		zap.String("next_tier", nextTier))
}

// fireFallback records the tier escalation and republishes a routing
// opportunity so the matcher rechecks the task at the next tier.
func (s *Scheduler) fireFallback(taskID, tier string) {
	s.mu.Lock()
	if _, pending := s.fallbackTimers[taskID]; !pending {
		s.mu.Unlock()
		return
	}
	delete(s.fallbackTimers, taskID)
	s.tierOverrides[taskID] = tier
	s.mu.Unlock()

	event := bus.NewEvent(events.EndpointChanged, eventSource, events.EndpointEvent{
		Tier:   tier,
		TaskID: taskID,
	})
	if err := s.eventBus.Publish(context.Background(), events.EndpointChanged, event); err != nil {
		s.logger.Warn("Failed to publish fallback trigger",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// cancelFallback drops the pending timer and any recorded escalation for
// a task that left the queued state.
func (s *Scheduler) cancelFallback(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.fallbackTimers[taskID]; ok {
		t.Stop()
		delete(s.fallbackTimers, taskID)
	}
	delete(s.tierOverrides, taskID)
}

// overrideFor returns the escalated tier for a task, if one is recorded.
func (s *Scheduler) overrideFor(taskID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tierOverrides[taskID]
	return tier, ok
}
