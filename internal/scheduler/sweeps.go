package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/routing"
)

// sweepStuck reclaims assigned tasks that stopped reporting progress.
// The holding agent's eventual completion is fenced off by the
// generation bump.
func (s *Scheduler) sweepStuck(ctx context.Context) {
	assigned, err := s.queue.List(ctx, queue.Filter{Status: queue.StatusAssigned})
	if err != nil {
		s.logger.Error("Stuck sweep listing failed", zap.Error(err))
		return
	}
	cutoff := time.Now().UnixMilli() - s.stuckThreshold.Milliseconds()
	for _, task := range assigned {
		if task.UpdatedAtMs >= cutoff {
			continue
		}
		if _, err := s.queue.Reclaim(ctx, task.ID, "stuck"); err != nil {
			s.logger.Debug("Stuck reclaim skipped",
				zap.String("task_id", task.ID),
				zap.Error(err))
			continue
		}
		s.logger.Warn("Reclaimed stuck task",
			zap.String("task_id", task.ID),
			zap.String("agent_id", task.AssignedTo))
	}
}

// sweepTTL expires queued tasks past their time to live. Trivial-tier
// tasks are exempt: they are cheap enough to keep waiting.
func (s *Scheduler) sweepTTL(ctx context.Context) {
	queued, err := s.queue.List(ctx, queue.Filter{Status: queue.StatusQueued})
	if err != nil {
		s.logger.Error("TTL sweep listing failed", zap.Error(err))
		return
	}
	cutoff := time.Now().UnixMilli() - s.taskTTL.Milliseconds()
	for _, task := range queued {
		if task.CreatedAtMs >= cutoff {
			continue
		}
		tier, _ := routing.ClassifyTier(routing.ResolveRequest{
			TaskID:      task.ID,
			Description: task.Description,
			Metadata:    task.Metadata,
		})
		if tier == routing.TierTrivial {
			continue
		}
		if _, err := s.queue.Expire(ctx, task.ID); err != nil {
			s.logger.Debug("TTL expire skipped",
				zap.String("task_id", task.ID),
				zap.Error(err))
			continue
		}
		s.cancelFallback(task.ID)
		s.logger.Info("Expired stale task",
			zap.String("task_id", task.ID),
			zap.String("tier", tier))
	}
}
