package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/rfid-agent/protocol"
)

func mockHandlerFunc(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return nil
}

func TestHandlerRegistry_Handle(t *testing.T) {
	registry := NewHandlerRegistry()

	t.Run("register handler", func(t *testing.T) {
		require.NoError(t, registry.Handle("test", mockHandlerFunc))
		assert.True(t, registry.Has("test"))
	})

	t.Run("nil handler", func(t *testing.T) {
		assert.Error(t, registry.Handle("nil", nil))
		assert.False(t, registry.Has("nil"))
	})

	t.Run("empty message type", func(t *testing.T) {
		assert.Error(t, registry.Handle("", mockHandlerFunc))
	})

	t.Run("duplicate handler", func(t *testing.T) {
		require.NoError(t, registry.Handle("duplicate", mockHandlerFunc))
		err := registry.Handle("duplicate", mockHandlerFunc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})
}

func TestHandlerRegistry_Get(t *testing.T) {
	registry := NewHandlerRegistry()
	require.NoError(t, registry.Handle("test", mockHandlerFunc))

	h, ok := registry.Get("test")
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = registry.Get("nonexistent")
	assert.False(t, ok)
	assert.False(t, registry.Has("nonexistent"))
}

func TestHandlerRegistry_MessageTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	assert.Empty(t, registry.MessageTypes())

	for _, typ := range []string{"stop", "start", "getTxPower"} {
		require.NoError(t, registry.Handle(typ, mockHandlerFunc))
	}
	assert.Equal(t, []string{"getTxPower", "start", "stop"}, registry.MessageTypes())
}

func TestHandlerRegistry_ReaderHandlerTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	srv := &Server{handlerRegistry: registry}

	srv.Register(NewReaderHandler(nil, nil, 0, testLogger()))

	expected := []string{
		protocol.WSTypeGetAntennaConfig,
		protocol.WSTypeGetReaderInfo,
		protocol.WSTypeGetTxPower,
		protocol.WSTypeReadMemory,
		protocol.WSTypeSetAntennaConfig,
		protocol.WSTypeSetMode,
		protocol.WSTypeSetReportFlags,
		protocol.WSTypeSetTxPower,
		protocol.WSTypeStart,
		protocol.WSTypeStop,
	}
	assert.ElementsMatch(t, expected, registry.MessageTypes())
	// no reports channel, no broadcast loop
	assert.Empty(t, registry.lifecycleStarters)
}

func TestHandlerRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewHandlerRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.Handle(fmt.Sprintf("type-%d", i), mockHandlerFunc)
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Get(fmt.Sprintf("type-%d", i))
			registry.MessageTypes()
		}(i)
	}
	wg.Wait()

	assert.Len(t, registry.MessageTypes(), 50)
}

func TestHandlerRegistry_HandleExecution(t *testing.T) {
	registry := NewHandlerRegistry()
	expectedErr := errors.New("test error")

	var called bool
	require.NoError(t, registry.Handle("ok", func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		called = true
		return nil
	}))
	require.NoError(t, registry.Handle("fail", func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		return expectedErr
	}))

	h, _ := registry.Get("ok")
	require.NoError(t, h(context.Background(), nil, protocol.WebSocketRequest{}))
	assert.True(t, called)

	h, _ = registry.Get("fail")
	assert.ErrorIs(t, h(context.Background(), nil, protocol.WebSocketRequest{}), expectedErr)
}

func TestHandlerRegistry_StartLifecycleHandlers(t *testing.T) {
	t.Run("runs every starter with the context", func(t *testing.T) {
		registry := NewHandlerRegistry()
		type ctxKey struct{}
		ctx := context.WithValue(context.Background(), ctxKey{}, "agent")

		var mu sync.Mutex
		var seen []string
		for i := 0; i < 3; i++ {
			registry.RegisterLifecycle(func(ctx context.Context) {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, ctx.Value(ctxKey{}).(string))
			})
		}

		registry.StartLifecycleHandlers(ctx)
		assert.Equal(t, []string{"agent", "agent", "agent"}, seen)
	})

	t.Run("empty registry", func(t *testing.T) {
		registry := NewHandlerRegistry()
		assert.NotPanics(t, func() { registry.StartLifecycleHandlers(context.Background()) })
	})
}

func TestHandlerRegistry_Middleware(t *testing.T) {
	registry := NewHandlerRegistry()
	var order []string
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
				order = append(order, name)
				return next(ctx, client, req)
			}
		}
	}

	require.NoError(t, registry.Handle("start", func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		order = append(order, "handler")
		return nil
	}))
	registry.Use(trace("outer"), trace("inner"))

	h, ok := registry.Get("start")
	require.True(t, ok)
	require.NoError(t, h(context.Background(), nil, protocol.WebSocketRequest{Type: "start"}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestHandlerRegistry_RecoverHandler(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Use(logRequests(testLogger()), recoverHandler())
	require.NoError(t, registry.Handle("boom", func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		panic("bad payload")
	}))

	h, _ := registry.Get("boom")
	var err error
	assert.NotPanics(t, func() { err = h(context.Background(), nil, protocol.WebSocketRequest{Type: "boom"}) })
	require.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "bad payload")
}
