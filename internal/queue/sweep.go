package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunOverdueSweep periodically reclaims assigned tasks whose complete_by
// deadline has passed. Blocks until ctx is cancelled; run it under the
// process supervisor.
func (s *Service) RunOverdueSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOverdueOnce(ctx)
		}
	}
}

// sweepOverdueOnce collects the overdue assigned ids under the lock, then
// reclaims each through the normal path so every reclaim re-validates
// state and publishes its event.
func (s *Service) sweepOverdueOnce(ctx context.Context) {
	now := nowMs()

	s.mu.Lock()
	var overdue []string
	err := s.active.Fold(ctx, func(id string, record []byte) error {
		task, decodeErr := decodeTask(record)
		if decodeErr != nil {
			// Reported during loads and rebuilds; the sweep just moves on.
			return nil
		}
		if task.Status == StatusAssigned && task.CompleteByMs > 0 && now > task.CompleteByMs {
			overdue = append(overdue, task.ID)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("overdue sweep scan failed", zap.Error(err))
		return
	}

	for _, id := range overdue {
		if _, err := s.Reclaim(ctx, id, "overdue"); err != nil {
			s.logger.Debug("overdue reclaim skipped",
				zap.String("task_id", id),
				zap.Error(err))
		}
	}
}
