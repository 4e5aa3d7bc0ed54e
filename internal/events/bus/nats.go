package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/config"
	"github.com/agentcom/agentcom/internal/common/logger"
	"github.com/agentcom/agentcom/internal/events"
)

// natsPendingBytes caps per-subscription buffering alongside the
// message-count limit.
const natsPendingBytes = 64 << 20

// NATSEventBus implements EventBus over a NATS connection, for
// deployments where hub collaborators run in separate processes. Slow
// subscribers surface through the same system.event_bus_drop meta
// events as the in-memory bus, so backpressure dashboards work
// unchanged.
type NATSEventBus struct {
	conn      *nats.Conn
	logger    *logger.Logger
	queueSize int
}

// NewNATSEventBus connects to cfg.URL with reconnection enabled.
// queueSize bounds each subscription's pending messages; zero or
// negative selects DefaultQueueSize.
func NewNATSEventBus(cfg config.NATSConfig, queueSize int, log *logger.Logger) (*NATSEventBus, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	bus := &NATSEventBus{logger: log, queueSize: queueSize}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(5 << 20),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
				return
			}
			log.Info("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error("NATS connection closed", zap.Error(err))
				return
			}
			log.Info("NATS connection closed")
		}),
		nats.ErrorHandler(bus.onAsyncError),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	bus.conn = conn

	log.Info("Connected to NATS", zap.String("url", cfg.URL))
	return bus, nil
}

// onAsyncError folds slow-consumer overflows into event_bus_drop meta
// events; every other async error is logged.
func (b *NATSEventBus) onAsyncError(nc *nats.Conn, sub *nats.Subscription, err error) {
	if sub == nil || !errors.Is(err, nats.ErrSlowConsumer) {
		fields := []zap.Field{zap.Error(err)}
		if sub != nil {
			fields = append(fields, zap.String("subject", sub.Subject))
		}
		b.logger.Error("NATS error", fields...)
		return
	}

	dropped, derr := sub.Dropped()
	if derr != nil || dropped < 0 {
		dropped = 0
	}
	b.logger.Warn("NATS subscription overflow, messages dropped",
		zap.String("subject", sub.Subject),
		zap.String("queue", sub.Queue),
		zap.Int("dropped_total", dropped))

	// Meta subjects are only counted, never re-reported, so a slow
	// system.* subscriber cannot feed back into itself.
	if strings.HasPrefix(sub.Subject, events.TopicSystem+".") {
		return
	}
	event := NewEvent(events.EventBusDrop, "event_bus", events.DropEvent{
		Subject: sub.Subject,
		Queue:   sub.Queue,
		Dropped: uint64(dropped),
	})
	if perr := b.Publish(context.Background(), events.EventBusDrop, event); perr != nil {
		b.logger.Error("Failed to publish drop event", zap.Error(perr))
	}
}

// Publish sends an event to a subject.
func (b *NATSEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	b.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

// Subscribe creates a subscription to a subject pattern.
func (b *NATSEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, b.deliver(handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	b.boundPending(sub)

	b.logger.Debug("Subscribed to subject", zap.String("subject", subject))
	return &natsSubscription{sub: sub}, nil
}

// QueueSubscribe creates a queue subscription for load balancing.
func (b *NATSEventBus) QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	sub, err := b.conn.QueueSubscribe(subject, queue, b.deliver(handler))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to %s: %w", subject, err)
	}
	b.boundPending(sub)

	b.logger.Debug("Queue subscribed to subject",
		zap.String("subject", subject),
		zap.String("queue", queue))
	return &natsSubscription{sub: sub}, nil
}

// boundPending aligns the subscription's client-side buffer with the
// in-memory bus's per-subscriber bound.
func (b *NATSEventBus) boundPending(sub *nats.Subscription) {
	if err := sub.SetPendingLimits(b.queueSize, natsPendingBytes); err != nil {
		b.logger.Warn("Failed to set pending limits",
			zap.String("subject", sub.Subject),
			zap.Error(err))
	}
}

// deliver adapts an EventHandler to the NATS message callback.
func (b *NATSEventBus) deliver(handler EventHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("Failed to unmarshal event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		if err := handler(context.Background(), &event); err != nil {
			b.logger.Error("Event handler failed",
				zap.String("subject", msg.Subject),
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err))
		}
	}
}

// Request sends a request and waits for a response.
func (b *NATSEventBus) Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request event: %w", err)
	}

	msg, err := b.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", subject, err)
	}

	var response Event
	if err := json.Unmarshal(msg.Data, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &response, nil
}

// Close drains the connection so pending messages are processed before
// the socket goes away.
func (b *NATSEventBus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("Error draining NATS connection", zap.Error(err))
		b.conn.Close()
	}
	b.logger.Info("NATS connection closed")
}

// IsConnected reports whether the NATS connection is active.
func (b *NATSEventBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// natsSubscription adapts a NATS subscription to the Subscription
// interface.
type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) IsValid() bool {
	return s.sub != nil && s.sub.IsValid()
}
