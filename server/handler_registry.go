package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dotside-studios/rfid-agent/protocol"
	"github.com/dotside-studios/rfid-agent/rfid"
)

// HandlerFunc handles one WebSocket request. Handlers send their own
// responses; the returned error is only logged.
type HandlerFunc func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error

// Middleware wraps every registered HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// ErrHandlerPanic marks a handler that panicked instead of answering.
var ErrHandlerPanic = errors.New("handler panicked")

// HandlerServer is what a ServerHandler registers against.
type HandlerServer interface {
	Handle(messageType string, handler HandlerFunc) error

	// StartLifecycle registers start to run once the server is listening.
	StartLifecycle(start func(ctx context.Context))

	BroadcastTagReport(report rfid.TagReport)
	BroadcastReaderStatus(info protocol.ReaderInfo)
}

// ServerHandler groups the routes and background work of one feature.
type ServerHandler interface {
	Register(server HandlerServer)
}

// HandlerRegistry routes requests by message type.
type HandlerRegistry struct {
	mu                sync.RWMutex
	handlers          map[string]HandlerFunc
	middleware        []Middleware
	lifecycleStarters []func(ctx context.Context)
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Handle registers handler for messageType. Each type has at most one handler.
func (r *HandlerRegistry) Handle(messageType string, handler HandlerFunc) error {
	switch {
	case handler == nil:
		return fmt.Errorf("nil handler for %q", messageType)
	case messageType == "":
		return errors.New("empty message type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[messageType]; exists {
		return fmt.Errorf("handler for %q already registered", messageType)
	}
	r.handlers[messageType] = handler
	return nil
}

// Use appends middleware. The first one added is the outermost.
func (r *HandlerRegistry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

func (r *HandlerRegistry) RegisterLifecycle(start func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycleStarters = append(r.lifecycleStarters, start)
}

// Get returns the handler for messageType wrapped in the current middleware.
func (r *HandlerRegistry) Get(messageType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[messageType]
	if !ok {
		return nil, false
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h, true
}

func (r *HandlerRegistry) Has(messageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[messageType]
	return ok
}

// MessageTypes returns the registered message types in sorted order.
func (r *HandlerRegistry) MessageTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// StartLifecycleHandlers runs every registered starter with ctx.
// Starters must not block.
func (r *HandlerRegistry) StartLifecycleHandlers(ctx context.Context) {
	r.mu.RLock()
	starters := append([]func(context.Context){}, r.lifecycleStarters...)
	r.mu.RUnlock()

	for _, start := range starters {
		start(ctx)
	}
}

// recoverHandler turns a handler panic into an error wrapping ErrHandlerPanic.
func recoverHandler() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, req protocol.WebSocketRequest) (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, req.Type, p)
				}
			}()
			return next(ctx, client, req)
		}
	}
}

// logRequests logs each request at debug level with its duration.
func logRequests(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
			start := time.Now()
			err := next(ctx, client, req)
			logger.Debug("websocket request",
				"type", req.Type,
				"id", req.ID,
				"duration", time.Since(start),
				"ok", err == nil)
			return err
		}
	}
}
