// Package scheduler matches queued tasks to idle agents. It is purely
// event-reactive: bus events wake a single matching loop, and periodic
// sweeps recover tasks that stopped making progress.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/agent"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events/bus"
	"github.com/agentcom/agentcom/internal/queue"
	"github.com/agentcom/agentcom/internal/routing"
)

const eventSource = "scheduler"

// queueName is the queue group shared by scheduler instances so each
// trigger is handled once.
const queueName = "scheduler"

// Options configures scheduler timing.
type Options struct {
	// StuckSweepInterval is how often assigned tasks are checked for
	// progress.
	StuckSweepInterval time.Duration
	// StuckThreshold is how long an assigned task may go without an
	// update before it is reclaimed.
	StuckThreshold time.Duration
	// TTLSweepInterval is how often queued tasks are checked for old age.
	TTLSweepInterval time.Duration
	// TaskTTL is how long a non-trivial task may wait in the queue before
	// it expires.
	TaskTTL time.Duration
	// FallbackWait is the delay before a task is rechecked at the next
	// routing tier.
	FallbackWait time.Duration
}

// Scheduler wires the queue, the agent registry, and the routing layer
// together. One goroutine runs all matching passes and sweeps; triggers
// coalesce into a single pending wake-up.
type Scheduler struct {
	queue     *queue.Service
	registry  *agent.Registry
	resolver  routing.Resolver
	limiter   *routing.Limiter
	repos     *routing.RepoRegistry
	endpoints *routing.EndpointTable
	eventBus  bus.EventBus
	logger    *logger.Logger

	trigger chan struct{}

	mu             sync.Mutex
	subscriptions  []bus.Subscription
	fallbackTimers map[string]*time.Timer
	tierOverrides  map[string]string
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}

	stuckSweepInterval time.Duration
	stuckThreshold     time.Duration
	ttlSweepInterval   time.Duration
	taskTTL            time.Duration
	fallbackWait       time.Duration
}

// New creates a scheduler. Call Start to begin matching.
func New(
	queueSvc *queue.Service,
	registry *agent.Registry,
	resolver routing.Resolver,
	limiter *routing.Limiter,
	repos *routing.RepoRegistry,
	endpoints *routing.EndpointTable,
	eventBus bus.EventBus,
	log *logger.Logger,
	opts Options,
) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	if opts.StuckSweepInterval <= 0 {
		opts.StuckSweepInterval = 30 * time.Second
	}
	if opts.StuckThreshold <= 0 {
		opts.StuckThreshold = 5 * time.Minute
	}
	if opts.TTLSweepInterval <= 0 {
		opts.TTLSweepInterval = 60 * time.Second
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = 10 * time.Minute
	}
	if opts.FallbackWait <= 0 {
		opts.FallbackWait = 5 * time.Second
	}
	return &Scheduler{
		queue:              queueSvc,
		registry:           registry,
		resolver:           resolver,
		limiter:            limiter,
		repos:              repos,
		endpoints:          endpoints,
		eventBus:           eventBus,
		logger:             log.WithFields(zap.String("component", "scheduler")),
		trigger:            make(chan struct{}, 1),
		fallbackTimers:     make(map[string]*time.Timer),
		tierOverrides:      make(map[string]string),
		stuckSweepInterval: opts.StuckSweepInterval,
		stuckThreshold:     opts.StuckThreshold,
		ttlSweepInterval:   opts.TTLSweepInterval,
		taskTTL:            opts.TaskTTL,
		fallbackWait:       opts.FallbackWait,
	}
}

// Start subscribes to trigger events and launches the matching loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.subscribeLocked(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx)
	s.running = true

	s.logger.Info("Scheduler started", zap.Int("subscriptions", len(s.subscriptions)))

	// One pass on startup picks up tasks restored from disk.
	s.wake()
	return nil
}

// Stop unsubscribes, cancels pending fallback timers, and waits for the
// matching loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.unsubscribeAllLocked()
	for id, t := range s.fallbackTimers {
		t.Stop()
		delete(s.fallbackTimers, id)
	}
	s.tierOverrides = make(map[string]string)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("Scheduler stopped")
	return nil
}

// wake queues at most one pending matching pass.
func (s *Scheduler) wake() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// loop serializes matching passes and sweeps on one goroutine.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	stuckTicker := time.NewTicker(s.stuckSweepInterval)
	defer stuckTicker.Stop()
	ttlTicker := time.NewTicker(s.ttlSweepInterval)
	defer ttlTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
			s.runMatchingPass(ctx)
		case <-stuckTicker.C:
			s.sweepStuck(ctx)
		case <-ttlTicker.C:
			s.sweepTTL(ctx)
		}
	}
}
