// Package metrics exposes the hub's Prometheus instrumentation. Counters
// are fed by the event-bus watcher; gauges are refreshed from queue and
// registry snapshots on the events that move them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksSubmitted counts accepted submissions by priority lane.
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcom_tasks_submitted_total",
		Help: "Tasks accepted into the queue",
	}, []string{"priority"})

	// TasksAssigned counts scheduler assignments by routing tier.
	TasksAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcom_tasks_assigned_total",
		Help: "Tasks assigned to agents",
	}, []string{"tier"})

	// TasksCompleted counts successful completions.
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcom_tasks_completed_total",
		Help: "Tasks completed successfully",
	})

	// TasksRetried counts failures that went back to the queue.
	TasksRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcom_tasks_retried_total",
		Help: "Task failures requeued for another attempt",
	})

	// TasksDeadLettered counts tasks that exhausted their retries.
	TasksDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcom_tasks_dead_letter_total",
		Help: "Tasks moved to the dead-letter table",
	})

	// TasksReclaimed counts reclaims by reason.
	TasksReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcom_tasks_reclaimed_total",
		Help: "Assigned tasks taken back from their agent",
	}, []string{"reason"})

	// TasksExpired counts deadline expirations.
	TasksExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcom_tasks_expired_total",
		Help: "Tasks expired past their completion deadline",
	})

	// QueueDepth tracks the number of queued tasks.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcom_queue_depth",
		Help: "Current number of queued tasks",
	})

	// DeadLetterDepth tracks the dead-letter table size.
	DeadLetterDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcom_dead_letter_depth",
		Help: "Current number of dead-lettered tasks",
	})

	// ConnectedAgents tracks agents in any non-offline state.
	ConnectedAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcom_connected_agents",
		Help: "Current number of connected agents",
	})

	// SessionViolations counts malformed frames across all sessions.
	SessionViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcom_session_violations_total",
		Help: "Protocol violations recorded on agent sessions",
	})

	// SessionCooldowns counts sessions closed for crossing the violation
	// threshold.
	SessionCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcom_session_cooldowns_total",
		Help: "Agent sessions closed into a reconnect cooldown",
	})

	// EventBusDrops counts events dropped by a saturated subscriber queue.
	EventBusDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcom_event_bus_drops_total",
		Help: "Events dropped because a subscriber queue was full",
	}, []string{"subject"})

	// AgentResourceUsage holds the last reported resource sample per agent.
	AgentResourceUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentcom_agent_resource_usage",
		Help: "Most recent resource report from each agent",
	}, []string{"agent_id", "resource"})

	// SchedulerPassDuration tracks how long one matching pass takes.
	SchedulerPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentcom_scheduler_pass_duration_seconds",
		Help:    "Duration of one scheduler matching pass",
		Buckets: prometheus.DefBuckets,
	})
)
