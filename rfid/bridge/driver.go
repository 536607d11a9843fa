// Package bridge implements rfid.Driver by calling a reader bridge process
// over a websocket. The bridge wraps the vendor SDK next to the reader and
// exposes its primitives as JSON calls.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/rfid-agent/buildinfo"
	"github.com/dotside-studios/rfid-agent/rfid"
)

// DefaultCallTimeout bounds calls made without a context deadline.
const DefaultCallTimeout = 10 * time.Second

// ErrClosed is returned for calls pending when the bridge connection drops.
var ErrClosed = errors.New("bridge: connection closed")

// Options configures a Driver.
type Options struct {
	// URL of the bridge websocket endpoint, e.g. ws://localhost:18100/rfid.
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	// CallTimeout applies when the caller's context has no deadline.
	CallTimeout time.Duration

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Driver is a websocket client of the reader bridge.
type Driver struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Message
	done    chan struct{}
	handler rfid.TagsReportedHandler

	writeMu sync.Mutex
}

// New creates a bridge driver. No connection is made until Connect.
func New(opts Options) *Driver {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Header = opts.Header.Clone()
	if opts.Header == nil {
		opts.Header = http.Header{}
	}
	if opts.Header.Get("User-Agent") == "" {
		opts.Header.Set("User-Agent", buildinfo.UserAgent())
	}
	return &Driver{
		opts:    opts,
		logger:  opts.Logger.With("component", "bridge"),
		pending: make(map[string]chan Message),
	}
}

// Connect dials the bridge and asks it to connect to the reader at address.
func (d *Driver) Connect(ctx context.Context, address string) error {
	d.mu.Lock()
	if d.conn != nil {
		d.mu.Unlock()
		return errors.New("bridge: already connected")
	}
	d.mu.Unlock()

	conn, _, err := d.opts.Dialer.DialContext(ctx, d.opts.URL, d.opts.Header)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", d.opts.URL, err)
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.conn = conn
	d.done = done
	d.mu.Unlock()
	go d.readLoop(conn, done)

	if err := d.call(ctx, MethodConnect, ConnectParams{Address: address}, nil); err != nil {
		d.closeConn()
		return err
	}
	d.logger.Info("bridge connected to reader", "url", d.opts.URL, "address", address)
	return nil
}

// Disconnect asks the bridge to release the reader, then closes the socket.
func (d *Driver) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.CallTimeout)
	defer cancel()

	err := d.call(ctx, MethodDisconnect, nil, nil)
	d.closeConn()
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

func (d *Driver) QueryFeatureSet(ctx context.Context) (rfid.FeatureSet, error) {
	var features rfid.FeatureSet
	err := d.call(ctx, MethodQueryFeatureSet, nil, &features)
	return features, err
}

func (d *Driver) QueryDefaultSettings(ctx context.Context) (*rfid.Settings, error) {
	var settings rfid.Settings
	if err := d.call(ctx, MethodQueryDefaultSettings, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (d *Driver) QuerySettings(ctx context.Context) (*rfid.Settings, error) {
	var settings rfid.Settings
	if err := d.call(ctx, MethodQuerySettings, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (d *Driver) ApplySettings(ctx context.Context, settings *rfid.Settings) error {
	return d.call(ctx, MethodApplySettings, settings, nil)
}

func (d *Driver) Start(ctx context.Context) error {
	return d.call(ctx, MethodStart, nil, nil)
}

func (d *Driver) Stop(ctx context.Context) error {
	return d.call(ctx, MethodStop, nil, nil)
}

// OnTagsReported registers the handler called, on the read goroutine, for
// every tagsReported notification.
func (d *Driver) OnTagsReported(handler rfid.TagsReportedHandler) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
}

func (d *Driver) ReadMemory(ctx context.Context, req rfid.ReadRequest) ([]byte, error) {
	var result ReadMemoryResult
	if err := d.call(ctx, MethodReadMemory, req, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// call sends one request and waits for its response.
func (d *Driver) call(ctx context.Context, method string, params any, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	d.mu.Lock()
	conn, done := d.conn, d.done
	if conn == nil {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
	id := uuid.NewString()
	respCh := make(chan Message, 1)
	d.pending[id] = respCh
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	d.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	err := conn.WriteJSON(Request{ID: id, Method: method, Params: params})
	d.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: write request: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	case <-done:
		return fmt.Errorf("%s: %w", method, ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (d *Driver) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				d.logger.Warn("bridge read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			d.logger.Warn("invalid bridge message", "error", err)
			continue
		}

		if msg.ID == "" {
			d.handleNotification(msg)
			continue
		}

		d.mu.Lock()
		respCh, ok := d.pending[msg.ID]
		d.mu.Unlock()
		if !ok {
			d.logger.Debug("response for unknown request", "id", msg.ID)
			continue
		}
		select {
		case respCh <- msg:
		default:
			d.logger.Warn("duplicate response dropped", "id", msg.ID)
		}
	}
}

func (d *Driver) handleNotification(msg Message) {
	if msg.Method != NotificationTagsReported {
		d.logger.Debug("ignoring bridge notification", "method", msg.Method)
		return
	}

	var params TagsReportedParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		d.logger.Warn("invalid tagsReported params", "error", err)
		return
	}

	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()
	if handler != nil {
		handler(params.Tags)
	}
}

func (d *Driver) closeConn() {
	d.mu.Lock()
	conn, done := d.conn, d.done
	d.conn = nil
	d.mu.Unlock()

	if conn == nil {
		return
	}
	d.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	d.writeMu.Unlock()
	conn.Close()
	<-done
}
