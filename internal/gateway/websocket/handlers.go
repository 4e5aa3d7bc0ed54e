package websocket

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/events"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/pkg/protocol"
)

// registerHandlers wires the dispatcher for every post-identify frame.
func (s *Session) registerHandlers() {
	d := protocol.NewDispatcher()
	d.RegisterFunc(protocol.FrameTaskAccepted, s.onTaskAccepted)
	d.RegisterFunc(protocol.FrameTaskRejected, s.onTaskRejected)
	d.RegisterFunc(protocol.FrameTaskProgress, s.onTaskProgress)
	d.RegisterFunc(protocol.FrameTaskComplete, s.onTaskComplete)
	d.RegisterFunc(protocol.FrameTaskFailed, s.onTaskFailed)
	d.RegisterFunc(protocol.FrameTaskRecovering, s.onTaskRecovering)
	d.RegisterFunc(protocol.FrameWakeResult, s.onWakeResult)
	d.RegisterFunc(protocol.FrameResourceReport, s.onResourceReport)
	d.RegisterFunc(protocol.FramePing, s.onPing)
	d.RegisterFunc(protocol.FramePong, s.onPong)
	s.dispatcher = d
}

func (s *Session) onTaskAccepted(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.TaskAcceptedFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	if err := s.deps.Registry.Accept(ctx, s.AgentID, frame.TaskID); err != nil {
		// The acceptance raced a reclaim or reassignment; the queue side
		// already moved on.
		s.logger.WithTaskID(frame.TaskID).WithError(err).Debug("Accept dropped")
		return nil
	}
	s.publishTaskEvent(ctx, events.TaskAccepted, events.TaskEvent{
		TaskID:  frame.TaskID,
		AgentID: s.AgentID,
		Status:  queue.StatusAssigned,
	})
	return nil
}

func (s *Session) onTaskRejected(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.TaskRejectedFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	if err := s.deps.Registry.Reject(ctx, s.AgentID, frame.TaskID, frame.Reason); err != nil {
		s.logger.WithTaskID(frame.TaskID).WithError(err).Debug("Reject dropped")
	}
	return nil
}

func (s *Session) onTaskProgress(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.TaskProgressFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	if err := s.deps.Queue.UpdateProgress(ctx, frame.TaskID, frame.Note); err != nil {
		// Progress for a task that was reclaimed or finished meanwhile.
		s.logger.WithTaskID(frame.TaskID).WithError(err).Debug("Progress dropped")
	}
	return nil
}

func (s *Session) onTaskComplete(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.TaskCompleteFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	_, err := s.deps.Queue.Complete(ctx, frame.TaskID, frame.Generation, queue.CompleteParams{
		Result:             frame.Result,
		TokensUsed:         frame.TokensUsed,
		VerificationReport: frame.VerificationReport,
	})
	s.absorbSettleError(err, frame.TaskID, frame.Generation, "Completion")

	// Whatever the queue said, this agent is done with the task; free its
	// registry record so it can take new work.
	if err := s.deps.Registry.Complete(ctx, s.AgentID, frame.TaskID); err != nil {
		s.logger.WithTaskID(frame.TaskID).WithError(err).Debug("Registry release dropped")
	}
	s.clearGeneration(frame.TaskID)
	return nil
}

func (s *Session) onTaskFailed(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.TaskFailedFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	_, _, err := s.deps.Queue.Fail(ctx, frame.TaskID, frame.Generation, frame.Reason)
	s.absorbSettleError(err, frame.TaskID, frame.Generation, "Failure")

	if err := s.deps.Registry.Fail(ctx, s.AgentID, frame.TaskID); err != nil {
		s.logger.WithTaskID(frame.TaskID).WithError(err).Debug("Registry release dropped")
	}
	s.clearGeneration(frame.TaskID)
	return nil
}

// absorbSettleError logs a completion or failure the queue refused. A
// stale generation is the fence doing its job: the result belongs to a
// superseded assignment and is dropped without a reply.
func (s *Session) absorbSettleError(err error, taskID string, generation int64, op string) {
	if err == nil {
		return
	}
	var stateErr *queue.InvalidStateError
	switch {
	case errors.Is(err, queue.ErrStaleGeneration):
		s.logger.WithTaskID(taskID).Debug("Stale result dropped",
			zap.Int64("generation", generation))
	case errors.As(err, &stateErr), errors.Is(err, queue.ErrNotFound):
		s.logger.WithTaskID(taskID).WithError(err).Debug(op + " dropped")
	default:
		s.logger.WithTaskID(taskID).WithError(err).Warn(op + " failed")
	}
}

func (s *Session) onTaskRecovering(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.TaskRecoveringFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}
	s.recoverTask(ctx, frame.TaskID, frame.LastStatus)
	return nil
}

// recoverTask reconciles one task id claimed by a reconnecting agent. The
// task continues only when the queue still holds it against this agent
// and the agent still considers it live; a claim the queue holds but the
// agent has given up on is reclaimed so the scheduler can move it on.
func (s *Session) recoverTask(ctx context.Context, taskID, lastStatus string) {
	outcome, task, err := s.deps.Queue.Recover(ctx, taskID, s.AgentID)
	if err != nil {
		s.logger.WithTaskID(taskID).WithError(err).Debug("Recovery for unknown task")
		s.push(protocol.NewTaskCancelled(taskID, "not_found"))
		return
	}
	if outcome != queue.RecoverContinue {
		s.logger.WithTaskID(taskID).Info("Task recovery cancelled",
			zap.String("status", task.Status))
		s.push(protocol.NewTaskCancelled(taskID, "reassigned"))
		return
	}
	if !continuableStatus(lastStatus) {
		if _, err := s.deps.Queue.Reclaim(ctx, taskID, "recovery_mismatch"); err != nil {
			s.logger.WithTaskID(taskID).WithError(err).Warn("Reclaim on recovery mismatch failed")
		}
		s.logger.WithTaskID(taskID).Info("Task recovery mismatch",
			zap.String("last_status", lastStatus))
		s.push(protocol.NewTaskCancelled(taskID, "state_mismatch"))
		return
	}

	if err := s.deps.Registry.Resume(ctx, s.AgentID, taskID); err != nil {
		s.logger.WithTaskID(taskID).WithError(err).Debug("Resume dropped")
	}
	s.recordGeneration(taskID, task.Generation)
	s.push(protocol.NewTaskContinue(taskID, task.Generation))
	s.logger.WithTaskID(taskID).Info("Task recovery continued",
		zap.Int64("generation", task.Generation))
}

// continuableStatus reports whether the agent's claimed last status is
// compatible with resuming. The empty status comes from the identify
// reconnect payload, which only lists tasks the agent considers live.
func continuableStatus(status string) bool {
	switch status {
	case "", "assigned", "accepted", "working":
		return true
	}
	return false
}

func (s *Session) onWakeResult(ctx context.Context, env *protocol.Envelope) error {
	var frame protocol.WakeResultFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	s.push(protocol.NewWakeAck(frame.TaskID))
	if frame.Status != protocol.WakeStatusFailed {
		s.logger.WithTaskID(frame.TaskID).Debug("Wake succeeded",
			zap.Int("attempt", frame.Attempt))
		return nil
	}

	s.logger.WithTaskID(frame.TaskID).Warn("Wake attempt failed",
		zap.Int("attempt", frame.Attempt),
		zap.String("error", frame.Error))
	if frame.Attempt >= s.opts.WakeMaxAttempts {
		// The runner never came up; hand the assignment back.
		if err := s.deps.Registry.Reject(ctx, s.AgentID, frame.TaskID, "wake_failed"); err != nil {
			s.logger.WithTaskID(frame.TaskID).WithError(err).Debug("Wake-failure release dropped")
		}
	}
	return nil
}

func (s *Session) onResourceReport(_ context.Context, env *protocol.Envelope) error {
	var frame protocol.ResourceReportFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}

	if s.deps.Resources == nil {
		s.logger.Debug("Resource report dropped, no sink configured")
		return nil
	}
	s.deps.Resources.ObserveAgentResources(s.AgentID, frame.Metrics)
	return nil
}

func (s *Session) onPing(_ context.Context, env *protocol.Envelope) error {
	var frame protocol.PingFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}
	_ = s.deps.Registry.Heartbeat(s.AgentID)
	s.push(protocol.NewPong())
	return nil
}

func (s *Session) onPong(_ context.Context, env *protocol.Envelope) error {
	var frame protocol.PongFrame
	if err := env.Decode(&frame); err != nil {
		return err
	}
	_ = s.deps.Registry.Heartbeat(s.AgentID)
	return nil
}

// publishTaskEvent publishes on the bus, logging delivery failures.
func (s *Session) publishTaskEvent(ctx context.Context, subject string, payload events.TaskEvent) {
	if err := s.deps.EventBus.Publish(ctx, subject, bus.NewEvent(subject, eventSource, payload)); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
