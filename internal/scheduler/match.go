package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/metrics"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/routing"
)

// runMatchingPass greedily assigns queued tasks to idle agents, highest
// priority first. One shot per trigger, no backtracking: a task that
// cannot be placed stays queued until the next trigger.
func (s *Scheduler) runMatchingPass(ctx context.Context) {
	defer func(start time.Time) {
		metrics.SchedulerPassDuration.Observe(time.Since(start).Seconds())
	}(time.Now())

	idle := s.idleAgents(ctx)
	if len(idle) == 0 {
		return
	}
	tasks, err := s.queue.QueuedSnapshot(ctx)
	if err != nil {
		s.logger.Error("Failed to snapshot queued tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		if len(idle) == 0 {
			return
		}
		if !s.eligible(ctx, task) {
			continue
		}
		decision, ok := s.resolveTask(ctx, task)
		if !ok {
			continue
		}
		picked := pickAgent(task, idle, decision)
		if picked < 0 {
			continue
		}
		chosen := idle[picked]
		if !s.limiter.Allow(chosen.ID) {
			// Tokens ran out between the snapshot and now. The agent sits
			// this pass out.
			idle = append(idle[:picked], idle[picked+1:]...)
			continue
		}
		if s.assign(ctx, task, chosen, decision) {
			idle = append(idle[:picked], idle[picked+1:]...)
		}
	}
}

// idleAgents snapshots agents available for work, excluding any that are
// currently rate-limited.
func (s *Scheduler) idleAgents(ctx context.Context) []*agent.Agent {
	all := s.registry.ListAll(ctx)
	idle := make([]*agent.Agent, 0, len(all))
	for _, a := range all {
		if a.State != agent.StateIdle {
			continue
		}
		if s.limiter.RateLimited(a.ID) {
			continue
		}
		idle = append(idle, a)
	}
	return idle
}

// eligible filters out tasks whose repo is deactivated or whose
// dependencies have not all completed.
func (s *Scheduler) eligible(ctx context.Context, task *queue.Task) bool {
	if task.Repo != "" && !s.repos.IsActive(task.Repo) {
		return false
	}
	for _, dep := range task.DependsOn {
		depTask, err := s.queue.Get(ctx, dep)
		if err != nil || depTask.Status != queue.StatusCompleted {
			return false
		}
	}
	return true
}

// resolveTask asks the routing resolver for a decision. A fallback
// signal arms the per-task escalation timer and degrades to a sidecar
// decision so capability matching can still place the task.
func (s *Scheduler) resolveTask(ctx context.Context, task *queue.Task) (*routing.Decision, bool) {
	req := routing.ResolveRequest{
		TaskID:      task.ID,
		Description: task.Description,
		Metadata:    task.Metadata,
	}
	if tier, ok := s.overrideFor(task.ID); ok {
		md := make(map[string]any, len(task.Metadata)+1)
		for k, v := range task.Metadata {
			md[k] = v
		}
		md["tier"] = tier
		req.Metadata = md
	}

	decision, fallback, err := s.resolver.Resolve(ctx, req, s.endpoints.Snapshot())
	if err != nil {
		s.logger.Warn("Routing resolution failed",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return nil, false
	}
	if fallback != nil {
		s.armFallback(task.ID, fallback.Tier)
		tier, reason := routing.ClassifyTier(req)
		return &routing.Decision{
			EffectiveTier:        tier,
			TargetType:           routing.TargetSidecar,
			FallbackUsed:         true,
			ClassificationReason: reason,
			EstimatedCostTier:    routing.CostTier(tier),
		}, true
	}
	return decision, true
}

// pickAgent returns the index of the agent to assign, or -1. An
// AssignTo pin names exactly one acceptable agent. Otherwise the first
// capable in-scope agent wins, except that local model targets prefer
// the agent colocated with the selected endpoint.
func pickAgent(task *queue.Task, idle []*agent.Agent, decision *routing.Decision) int {
	if task.AssignTo != "" {
		for i, a := range idle {
			if a.ID == task.AssignTo {
				return i
			}
		}
		return -1
	}

	first := -1
	for i, a := range idle {
		if !a.HasCapabilities(task.NeededCapabilities) || !a.InRepoScope(task.Repo) {
			continue
		}
		if decision != nil && decision.TargetType == routing.TargetLocalModel &&
			decision.SelectedEndpoint != "" && a.LocalEndpointHost == decision.SelectedEndpoint {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

// assign runs the store-decision, queue, registry chain. Races with
// concurrent state changes are absorbed; the pass moves on.
func (s *Scheduler) assign(ctx context.Context, task *queue.Task, chosen *agent.Agent, decision *routing.Decision) bool {
	if decision != nil {
		if err := s.queue.StoreRoutingDecision(ctx, task.ID, decision); err != nil {
			s.absorbRace(task.ID, chosen.ID, "store routing decision", err)
			return false
		}
	}
	if _, err := s.queue.Assign(ctx, task.ID, chosen.ID, queue.AssignOpts{}); err != nil {
		s.absorbRace(task.ID, chosen.ID, "queue assign", err)
		return false
	}
	if err := s.registry.Assign(ctx, chosen.ID, task.ID); err != nil {
		// The agent slipped away after the queue committed. Put the task
		// back so another pass can place it.
		s.absorbRace(task.ID, chosen.ID, "registry assign", err)
		if _, rerr := s.queue.Reclaim(ctx, task.ID, "assignment_rollback"); rerr != nil {
			s.logger.Warn("Failed to roll back assignment",
				zap.String("task_id", task.ID),
				zap.Error(rerr))
		}
		return false
	}

	s.cancelFallback(task.ID)
	s.logger.Info("Task assigned",
		zap.String("task_id", task.ID),
		zap.String("agent_id", chosen.ID),
		zap.String("priority", task.Priority))
	return true
}

// absorbRace logs benign assignment races at debug and anything else at
// warn.
func (s *Scheduler) absorbRace(taskID, agentID, step string, err error) {
	var invalidState *queue.InvalidStateError
	var transition *agent.TransitionError
	if errors.As(err, &invalidState) || errors.As(err, &transition) || errors.Is(err, agent.ErrAgentNotFound) {
		s.logger.Debug("Assignment race absorbed",
			zap.String("task_id", taskID),
			zap.String("agent_id", agentID),
			zap.String("step", step),
			zap.Error(err))
		return
	}
	s.logger.Warn("Assignment step failed",
		zap.String("task_id", taskID),
		zap.String("agent_id", agentID),
		zap.String("step", step),
		zap.Error(err))
}
