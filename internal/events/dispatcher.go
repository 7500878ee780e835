package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes committed events.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

type namedHandler struct {
	name    string
	handler Handler
}

// Dispatcher delivers events to every registered handler in registration
// order. Handler failures and panics are logged and never returned.
type Dispatcher struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers []namedHandler
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Register adds h under name, which is used only in logs.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler{name: name, handler: h})
}

// Dispatch hands every event to every handler.
func (d *Dispatcher) Dispatch(ctx context.Context, evts ...Event) {
	d.mu.RLock()
	handlers := append([]namedHandler(nil), d.handlers...)
	d.mu.RUnlock()

	for _, evt := range evts {
		for _, h := range handlers {
			if err := d.deliver(ctx, h, evt); err != nil {
				d.logger.Warn("event handler failed",
					zap.String("handler", h.name),
					zap.String("event_type", string(evt.Type)),
					zap.String("event_id", evt.ID),
					zap.String("order_id", evt.OrderID),
					zap.Error(err),
				)
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, h namedHandler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.handler.Handle(ctx, evt)
}
