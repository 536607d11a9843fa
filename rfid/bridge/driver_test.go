package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// fakeBridge answers driver calls from an in-memory settings store.
type fakeBridge struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	settings rfid.Settings
	methods  []string
	address  string
	// silent makes the bridge drop every request without answering.
	silent bool
	// repeat sends each response this many extra times.
	repeat int
}

func newFakeBridge(t *testing.T) (*fakeBridge, *httptest.Server) {
	fb := &fakeBridge{
		t: t,
		settings: rfid.Settings{
			ReaderMode: rfid.ReaderModeHybrid,
			SearchMode: rfid.SearchModeDualTarget,
			Session:    2,
			Antennas: []rfid.AntennaConfig{
				{PortNumber: 1, PortName: rfid.PortName(1), IsEnabled: true, TxPowerInDbm: 25},
				{PortNumber: 2, PortName: rfid.PortName(2), IsEnabled: false, TxPowerInDbm: 25},
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := fb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		fb.mu.Lock()
		fb.methods = append(fb.methods, req.Method)
		silent, repeat := fb.silent, fb.repeat
		fb.mu.Unlock()
		if silent {
			continue
		}

		resp := map[string]any{"id": req.ID}
		switch req.Method {
		case MethodConnect:
			var p ConnectParams
			json.Unmarshal(req.Params, &p)
			fb.mu.Lock()
			fb.address = p.Address
			fb.mu.Unlock()
			resp["result"] = map[string]any{}
		case MethodQueryFeatureSet:
			resp["result"] = rfid.FeatureSet{ModelName: "Bridge Reader", AntennaCount: 2, MinTxPowerDbm: 10, MaxTxPowerDbm: 30}
		case MethodQuerySettings, MethodQueryDefaultSettings:
			fb.mu.Lock()
			resp["result"] = fb.settings
			fb.mu.Unlock()
		case MethodApplySettings:
			var s rfid.Settings
			if err := json.Unmarshal(req.Params, &s); err != nil {
				resp["error"] = RPCError{Code: 400, Message: err.Error()}
				break
			}
			if s.Antennas[0].TxPowerInDbm > 30 {
				resp["error"] = RPCError{Code: 422, Message: "tx power out of range"}
				break
			}
			fb.mu.Lock()
			fb.settings = s
			fb.mu.Unlock()
		case MethodStart:
			conn.WriteJSON(resp)
			conn.WriteJSON(map[string]any{
				"method": NotificationTagsReported,
				"params": TagsReportedParams{Tags: []rfid.RawTag{
					{Epc: []uint16{0x3000, 0x0001}, AntennaPortNumber: 1, IsAntennaPortNumberPresent: true},
					{Epc: []uint16{0x3000, 0x0002}},
				}},
			})
			continue
		case MethodReadMemory:
			var rr rfid.ReadRequest
			json.Unmarshal(req.Params, &rr)
			resp["result"] = ReadMemoryResult{Data: append([]byte{byte(rr.Bank)}, rr.TargetEpc...)}
		case MethodStop, MethodDisconnect:
		default:
			resp["error"] = RPCError{Code: 404, Message: "unknown method"}
		}
		for i := 0; i <= repeat; i++ {
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}

func (fb *fakeBridge) calls() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.methods...)
}

func newTestDriver(srv *httptest.Server) *Driver {
	return New(Options{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		CallTimeout: 2 * time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestDriver_ConnectAndQuery(t *testing.T) {
	fb, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	ctx := context.Background()

	require.NoError(t, d.Connect(ctx, "192.168.1.50"))
	defer d.Disconnect()

	features, err := d.QueryFeatureSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bridge Reader", features.ModelName)
	assert.Equal(t, 2, features.AntennaCount)

	settings, err := d.QuerySettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, rfid.ReaderModeHybrid, settings.ReaderMode)
	assert.Equal(t, []uint16{1}, settings.EnabledPorts())

	fb.mu.Lock()
	assert.Equal(t, "192.168.1.50", fb.address)
	fb.mu.Unlock()
}

func TestDriver_ApplyRoundTrip(t *testing.T) {
	_, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	ctx := context.Background()
	require.NoError(t, d.Connect(ctx, "reader"))
	defer d.Disconnect()

	settings, err := d.QuerySettings(ctx)
	require.NoError(t, err)
	settings.SearchMode = rfid.SearchModeTagFocus
	settings.Report.IncludePeakRssi = true
	require.NoError(t, d.ApplySettings(ctx, settings))

	got, err := d.QuerySettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, got)

	settings.Antennas[0].TxPowerInDbm = 33
	err = d.ApplySettings(ctx, settings)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 422, rpcErr.Code)
}

func TestDriver_TagsReported(t *testing.T) {
	_, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	ctx := context.Background()

	batches := make(chan []rfid.RawTag, 1)
	d.OnTagsReported(func(batch []rfid.RawTag) { batches <- batch })

	require.NoError(t, d.Connect(ctx, "reader"))
	defer d.Disconnect()
	require.NoError(t, d.Start(ctx))

	select {
	case batch := <-batches:
		require.Len(t, batch, 2)
		assert.Equal(t, []uint16{0x3000, 0x0001}, batch[0].Epc)
		assert.True(t, batch[0].IsAntennaPortNumberPresent)
		assert.False(t, batch[1].IsAntennaPortNumberPresent)
	case <-time.After(2 * time.Second):
		t.Fatal("no tagsReported notification")
	}
}

func TestDriver_ReadMemory(t *testing.T) {
	_, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	ctx := context.Background()
	require.NoError(t, d.Connect(ctx, "reader"))
	defer d.Disconnect()

	data, err := d.ReadMemory(ctx, rfid.ReadRequest{TargetEpc: []byte{0xAA, 0xBB}, Bank: rfid.MemoryBankTid})
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(rfid.MemoryBankTid), 0xAA, 0xBB}, data)
}

func TestDriver_CallTimeout(t *testing.T) {
	fb, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	require.NoError(t, d.Connect(context.Background(), "reader"))
	defer d.Disconnect()

	fb.mu.Lock()
	fb.silent = true
	fb.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := d.QuerySettings(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDriver_DuplicateResponses(t *testing.T) {
	fb, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	ctx := context.Background()

	batches := make(chan []rfid.RawTag, 1)
	d.OnTagsReported(func(batch []rfid.RawTag) { batches <- batch })

	require.NoError(t, d.Connect(ctx, "reader"))
	defer d.Disconnect()

	fb.mu.Lock()
	fb.repeat = 3
	fb.mu.Unlock()

	for i := 0; i < 3; i++ {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := d.QuerySettings(callCtx)
		cancel()
		require.NoError(t, err, "call %d", i)
	}

	require.NoError(t, d.Start(ctx))
	select {
	case batch := <-batches:
		assert.Len(t, batch, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop stalled on duplicate responses")
	}
}

func TestDriver_NotConnected(t *testing.T) {
	d := New(Options{URL: "ws://127.0.0.1:1/none"})
	_, err := d.QuerySettings(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDriver_WithSession(t *testing.T) {
	fb, srv := newFakeBridge(t)
	d := newTestDriver(srv)
	session := rfid.NewSession(d, rfid.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx := context.Background()

	require.NoError(t, session.Connect(ctx, "reader"))
	require.NoError(t, session.SetAntennaConfig(ctx, rfid.AntennaMask{true, true}))

	mask, err := session.GetAntennaConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, rfid.AntennaMask{true, true}, mask)

	require.NoError(t, session.Disconnect(ctx))
	assert.Contains(t, fb.calls(), MethodDisconnect)
}
