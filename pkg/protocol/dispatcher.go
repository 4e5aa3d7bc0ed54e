package protocol

import (
	"context"
	"errors"
)

// ErrUnknownType is returned by Dispatch when no handler is registered for
// the frame type. Unknown types are logged by the session but only count as
// violations when the frame itself is malformed.
var ErrUnknownType = errors.New("unknown frame type")

// Handler processes one inbound frame.
type Handler interface {
	Handle(ctx context.Context, env *Envelope) error
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, env *Envelope) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, env *Envelope) error {
	return f(ctx, env)
}

// Dispatcher routes inbound frames to handlers by frame type.
type Dispatcher struct {
	handlers map[FrameType]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[FrameType]Handler)}
}

// Register registers a handler for a frame type.
func (d *Dispatcher) Register(t FrameType, handler Handler) {
	d.handlers[t] = handler
}

// RegisterFunc registers a handler function for a frame type.
func (d *Dispatcher) RegisterFunc(t FrameType, handler HandlerFunc) {
	d.handlers[t] = handler
}

// Dispatch routes a frame to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) error {
	handler, ok := d.handlers[env.Type]
	if !ok {
		return ErrUnknownType
	}
	return handler.Handle(ctx, env)
}

// HasHandler returns true if a handler is registered for the frame type.
func (d *Dispatcher) HasHandler(t FrameType) bool {
	_, ok := d.handlers[t]
	return ok
}
