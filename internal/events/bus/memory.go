package bus

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
)

// DefaultQueueSize bounds each subscriber's delivery queue when no explicit
// size is configured.
const DefaultQueueSize = 256

// highWaterFraction of queue capacity at which a mailbox-high meta event
// fires; it re-arms once the queue drains below half of the watermark.
const highWaterFraction = 0.8

// MemoryEventBus implements EventBus in-process. Each subscription owns a
// bounded delivery queue drained by a single goroutine, so slow subscribers
// never block producers and delivery stays ordered per
// (producer, subject, subscriber). On overflow the oldest queued event is
// dropped and an event_bus_drop meta event is published.
type MemoryEventBus struct {
	subscriptions map[string][]*memorySubscription
	queues        map[string]*queueGroup // For queue subscriptions
	mu            sync.RWMutex
	logger        *logger.Logger
	queueSize     int
	closed        bool
}

// delivery carries the publish-time context alongside the event.
type delivery struct {
	ctx   context.Context
	event *Event
}

// memorySubscription represents an in-memory subscription
type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	pattern *regexp.Regexp // For wildcard matching
	handler EventHandler
	queue   string // Empty for regular subscriptions
	ch      chan delivery
	drops   atomic.Uint64
	high    atomic.Bool
	active  bool
	mu      sync.Mutex
}

// queueGroup manages load balancing for queue subscriptions
type queueGroup struct {
	subscribers []*memorySubscription
	nextIndex   int
	mu          sync.Mutex
}

// Unsubscribe removes the subscription
func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	// Remove from bus subscriptions
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscriptions[s.subject]; ok {
		for i, sub := range subs {
			if sub == s {
				s.bus.subscriptions[s.subject] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	// Remove from queue group if applicable
	if s.queue != "" {
		queueKey := s.queue + ":" + s.subject
		if qg, ok := s.bus.queues[queueKey]; ok {
			qg.mu.Lock()
			for i, sub := range qg.subscribers {
				if sub == s {
					qg.subscribers = append(qg.subscribers[:i], qg.subscribers[i+1:]...)
					break
				}
			}
			qg.mu.Unlock()
		}
	}

	// No publisher can hold a reference anymore: sends happen under the
	// bus read lock, which we hold exclusively here.
	close(s.ch)
	return nil
}

// IsValid returns whether the subscription is still active
func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// drain delivers queued events in order until the channel closes.
func (s *memorySubscription) drain() {
	for d := range s.ch {
		if s.high.Load() && len(s.ch) < cap(s.ch)/2 {
			s.high.Store(false)
		}
		if err := s.handler(d.ctx, d.event); err != nil {
			s.bus.logger.Error("Event handler error",
				zap.String("subject", s.subject),
				zap.String("event_type", d.event.Type),
				zap.Error(err))
		}
	}
}

// NewMemoryEventBus creates a new in-memory event bus. queueSize bounds each
// subscriber's delivery queue; zero or negative selects DefaultQueueSize.
func NewMemoryEventBus(log *logger.Logger, queueSize int) *MemoryEventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		queues:        make(map[string]*queueGroup),
		logger:        log,
		queueSize:     queueSize,
	}
}

// Publish sends an event to all matching subscribers
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	// Track which queue groups we've already delivered to
	deliveredQueues := make(map[string]bool)

	// Find all matching subscriptions
	for pattern, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.mu.Lock()
			active := sub.active
			sub.mu.Unlock()

			if !active {
				continue
			}

			if !b.matches(subject, pattern, sub.pattern) {
				continue
			}

			// If it's a queue subscription, use the queue group (only once per group)
			if sub.queue != "" {
				queueKey := sub.queue + ":" + pattern
				if !deliveredQueues[queueKey] {
					deliveredQueues[queueKey] = true
					b.publishToQueue(ctx, queueKey, subject, event)
				}
				continue
			}

			b.enqueue(ctx, sub, subject, event)
		}
	}

	b.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	return nil
}

// enqueue appends the event to the subscriber's bounded queue, dropping the
// oldest queued entry on overflow.
func (b *MemoryEventBus) enqueue(ctx context.Context, sub *memorySubscription, subject string, event *Event) {
	d := delivery{ctx: ctx, event: event}

	select {
	case sub.ch <- d:
	default:
		// Queue full: evict the oldest entry, then retry once. A racing
		// producer may still win the freed slot; the new event is then
		// counted dropped instead.
		dropped := false
		select {
		case <-sub.ch:
			dropped = true
		default:
		}
		select {
		case sub.ch <- d:
		default:
			dropped = true
		}
		if dropped {
			b.noteDrop(sub, subject)
		}
	}

	if depth := len(sub.ch); depth >= int(float64(cap(sub.ch))*highWaterFraction) {
		if sub.high.CompareAndSwap(false, true) {
			b.publishMeta(events.MailboxHigh, events.MailboxEvent{
				Subject: sub.subject,
				Queue:   sub.queue,
				Depth:   depth,
			})
		}
	}
}

// noteDrop records an overflow drop and surfaces it as a meta event so
// operators can see backpressure.
func (b *MemoryEventBus) noteDrop(sub *memorySubscription, subject string) {
	dropped := sub.drops.Add(1)

	b.logger.Warn("Event bus queue overflow, dropped oldest",
		zap.String("subject", subject),
		zap.String("subscription", sub.subject),
		zap.String("queue", sub.queue),
		zap.Uint64("dropped_total", dropped))

	// Meta events themselves are only counted, never re-reported, so a
	// slow system.* subscriber cannot feed back into itself.
	if strings.HasPrefix(subject, events.TopicSystem+".") {
		return
	}
	b.publishMeta(events.EventBusDrop, events.DropEvent{
		Subject: sub.subject,
		Queue:   sub.queue,
		Dropped: dropped,
	})
}

// publishMeta publishes a meta event outside the caller's lock scope.
func (b *MemoryEventBus) publishMeta(subject string, payload any) {
	event := NewEvent(subject, "event_bus", payload)
	go func() {
		_ = b.Publish(context.Background(), subject, event)
	}()
}

// Drops reports the total number of events dropped across all current
// subscriptions of the subject.
func (b *MemoryEventBus) Drops(subject string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total uint64
	for _, sub := range b.subscriptions[subject] {
		total += sub.drops.Load()
	}
	return total
}

// Subscribe creates a subscription to a subject pattern
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:     b,
		subject: subject,
		pattern: compilePattern(subject),
		handler: handler,
		ch:      make(chan delivery, b.queueSize),
		active:  true,
	}
	go sub.drain()

	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	b.logger.Debug("Subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// QueueSubscribe creates a queue subscription for load balancing
// Only one subscriber in the queue group receives each message
func (b *MemoryEventBus) QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:     b,
		subject: subject,
		pattern: compilePattern(subject),
		handler: handler,
		queue:   queue,
		ch:      make(chan delivery, b.queueSize),
		active:  true,
	}
	go sub.drain()

	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	// Add to queue group
	queueKey := queue + ":" + subject
	if _, ok := b.queues[queueKey]; !ok {
		b.queues[queueKey] = &queueGroup{
			subscribers: make([]*memorySubscription, 0),
		}
	}
	b.queues[queueKey].subscribers = append(b.queues[queueKey].subscribers, sub)

	b.logger.Debug("Queue subscribed to subject",
		zap.String("subject", subject),
		zap.String("queue", queue))
	return sub, nil
}

// Request sends a request and waits for a response
func (b *MemoryEventBus) Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error) {
	// Create a unique reply subject
	replySubject := fmt.Sprintf("_INBOX.%s", event.ID)

	responseChan := make(chan *Event, 1)

	sub, err := b.Subscribe(replySubject, func(ctx context.Context, e *Event) error {
		select {
		case responseChan <- e:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reply subscription: %w", err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	// Attach the reply subject to the event data
	switch data := event.Data.(type) {
	case map[string]any:
		if data == nil {
			data = make(map[string]any)
		}
		data["_reply"] = replySubject
		event.Data = data
	case nil:
		event.Data = map[string]any{"_reply": replySubject}
	default:
		event.Data = map[string]any{
			"data":   data,
			"_reply": replySubject,
		}
	}

	if err := b.Publish(ctx, subject, event); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case response := <-responseChan:
		return response, nil
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("request timeout after %v", timeout)
	}
}

// Close closes the event bus
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	// Deactivate and release all subscriptions
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()
			close(sub.ch)
		}
	}

	b.subscriptions = make(map[string][]*memorySubscription)
	b.queues = make(map[string]*queueGroup)

	b.logger.Info("Memory event bus closed")
}

// IsConnected returns true (always connected for in-memory)
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// matches checks if a subject matches a pattern
// Supports NATS-style wildcards: * (single token) and > (multiple tokens)
func (b *MemoryEventBus) matches(subject, pattern string, regex *regexp.Regexp) bool {
	// If no wildcards, do exact match
	if !strings.Contains(pattern, "*") && !strings.Contains(pattern, ">") {
		return subject == pattern
	}

	// Use the compiled regex
	if regex != nil {
		return regex.MatchString(subject)
	}

	return false
}

// compilePattern converts NATS-style pattern to regex
func compilePattern(pattern string) *regexp.Regexp {
	// If no wildcards, no need for regex
	if !strings.Contains(pattern, "*") && !strings.Contains(pattern, ">") {
		return nil
	}

	// Escape special regex characters except * and >. QuoteMeta escapes *
	// but leaves > alone, so the two wildcards need different rewrites.
	escaped := regexp.QuoteMeta(pattern)

	// Replace escaped \* with regex for single token (anything except .)
	escaped = strings.ReplaceAll(escaped, `\*`, `[^.]+`)

	// Replace > with regex for remaining tokens (anything)
	escaped = strings.ReplaceAll(escaped, `>`, `.+`)

	// Anchor the pattern
	escaped = "^" + escaped + "$"

	regex, err := regexp.Compile(escaped)
	if err != nil {
		return nil
	}

	return regex
}

// publishToQueue delivers to one subscriber in the queue group (round-robin)
func (b *MemoryEventBus) publishToQueue(ctx context.Context, queueKey, subject string, event *Event) {
	qg, ok := b.queues[queueKey]
	if !ok {
		return
	}

	qg.mu.Lock()
	defer qg.mu.Unlock()

	if len(qg.subscribers) == 0 {
		return
	}

	// Find next active subscriber (round-robin)
	startIndex := qg.nextIndex
	for i := 0; i < len(qg.subscribers); i++ {
		idx := (startIndex + i) % len(qg.subscribers)
		sub := qg.subscribers[idx]

		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()

		if active {
			qg.nextIndex = (idx + 1) % len(qg.subscribers)
			b.enqueue(ctx, sub, subject, event)
			return
		}
	}
}
