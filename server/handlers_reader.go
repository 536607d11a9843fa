package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/dotside-studios/rfid-agent/protocol"
	"github.com/dotside-studios/rfid-agent/rfid"
)

// ReaderHandler handles all reader-related operations.
// It groups the reader request handlers together with the report broadcast loop.
type ReaderHandler struct {
	reader  Reader
	reports <-chan rfid.TagReport
	timeout time.Duration
	logger  *slog.Logger
	server  HandlerServer
}

// NewReaderHandler creates a new reader handler.
func NewReaderHandler(reader Reader, reports <-chan rfid.TagReport, timeout time.Duration, logger *slog.Logger) *ReaderHandler {
	return &ReaderHandler{
		reader:  reader,
		reports: reports,
		timeout: timeout,
		logger:  logger,
	}
}

// Register implements ServerHandler interface.
// It sets up message handlers and lifecycle in one place.
func (h *ReaderHandler) Register(server HandlerServer) {
	h.server = server

	server.Handle(protocol.WSTypeGetReaderInfo, h.handleGetReaderInfo)
	server.Handle(protocol.WSTypeGetTxPower, h.handleGetTxPower)
	server.Handle(protocol.WSTypeSetTxPower, h.handleSetTxPower)
	server.Handle(protocol.WSTypeGetAntennaConfig, h.handleGetAntennaConfig)
	server.Handle(protocol.WSTypeSetAntennaConfig, h.handleSetAntennaConfig)
	server.Handle(protocol.WSTypeSetMode, h.handleSetMode)
	server.Handle(protocol.WSTypeSetReportFlags, h.handleSetReportFlags)
	server.Handle(protocol.WSTypeStart, h.handleStart)
	server.Handle(protocol.WSTypeStop, h.handleStop)
	server.Handle(protocol.WSTypeReadMemory, h.handleReadMemory)

	if h.reports == nil {
		return
	}
	server.StartLifecycle(func(ctx context.Context) {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case report, ok := <-h.reports:
					if !ok {
						return
					}
					server.BroadcastTagReport(report)
				}
			}
		}()
	})
}

// info builds the current reader summary.
func (h *ReaderHandler) info(message string) protocol.ReaderInfo {
	info := protocol.ReaderInfo{
		Status:   h.reader.Status(),
		Dispatch: h.reader.DispatchStats(),
		Message:  message,
	}
	if features, ok := h.reader.FeatureSet(); ok {
		info.Features = &features
	}
	return info
}

func (h *ReaderHandler) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.timeout)
}

func (h *ReaderHandler) handleGetReaderInfo(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return h.sendSuccess(client, req, h.info(""))
}

func (h *ReaderHandler) handleGetTxPower(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	ctx, cancel := h.opContext(ctx)
	defer cancel()

	powers, err := h.reader.GetTxPower(ctx)
	if err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	return h.sendSuccess(client, req, protocol.TxPowerResult{PowersDbm: powers})
}

func (h *ReaderHandler) handleSetTxPower(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.TxPowerPayload
	if err := req.Decode(&payload); err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	if err := h.reader.SetTxPower(ctx, payload.Dbm); err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	h.logger.Info("tx power set", "dbm", payload.Dbm, "client_id", client.ID)
	return h.sendSuccess(client, req, payload)
}

func (h *ReaderHandler) handleGetAntennaConfig(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	ctx, cancel := h.opContext(ctx)
	defer cancel()

	mask, err := h.reader.GetAntennaConfig(ctx)
	if err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	return h.sendSuccess(client, req, protocol.AntennaConfigPayload{Mask: mask})
}

func (h *ReaderHandler) handleSetAntennaConfig(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.AntennaConfigPayload
	if err := req.Decode(&payload); err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	mask := rfid.AntennaMask(payload.Mask)
	if err := h.reader.SetAntennaConfig(ctx, mask); err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	h.logger.Info("antenna config set", "mask", mask.String(), "client_id", client.ID)
	return h.sendSuccess(client, req, payload)
}

func (h *ReaderHandler) handleSetMode(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.ModePayload
	if err := req.Decode(&payload); err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	if err := h.reader.SetMode(ctx, payload.ReaderMode, payload.SearchMode, payload.Session); err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	return h.sendSuccess(client, req, payload)
}

func (h *ReaderHandler) handleSetReportFlags(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.ReportFlagsPayload
	if err := req.Decode(&payload); err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	if err := h.reader.SetReportFlags(ctx, payload.IncludeAntenna, payload.IncludeChannel, payload.IncludeRssi); err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	return h.sendSuccess(client, req, payload)
}

func (h *ReaderHandler) handleStart(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	ctx, cancel := h.opContext(ctx)
	defer cancel()

	if err := h.reader.Start(ctx); err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	info := h.info("inventory started")
	h.server.BroadcastReaderStatus(info)
	return h.sendSuccess(client, req, info)
}

func (h *ReaderHandler) handleStop(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	ctx, cancel := h.opContext(ctx)
	defer cancel()

	if err := h.reader.Stop(ctx); err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	info := h.info("inventory stopped")
	h.server.BroadcastReaderStatus(info)
	return h.sendSuccess(client, req, info)
}

func (h *ReaderHandler) handleReadMemory(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.ReadMemoryPayload
	if err := req.Decode(&payload); err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}
	epc, err := protocol.ParseEPC(payload.Epc)
	if err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}
	bank, err := rfid.ParseMemoryBank(payload.Bank)
	if err != nil {
		return h.sendError(client, req, protocol.ErrCodeInvalidPayload, err)
	}

	ctx, cancel := h.opContext(ctx)
	defer cancel()

	data, err := h.reader.Read(ctx, epc, bank, payload.WordPointer, payload.WordCount)
	if err != nil {
		return h.sendError(client, req, protocol.ErrorCodeFor(err), err)
	}
	return h.sendSuccess(client, req, protocol.ReadMemoryResult{
		Epc:  rfid.FormatEpc(epc),
		Bank: bank.String(),
		Data: rfid.FormatEpc(data),
	})
}

// sendSuccess sends a success response to a WebSocket client.
func (h *ReaderHandler) sendSuccess(client *Client, req protocol.WebSocketRequest, payload any) error {
	return client.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.ResponseType(req.Type),
		Success: true,
		Payload: payload,
	})
}

// sendError sends an error response and returns cause so the caller logs it.
func (h *ReaderHandler) sendError(client *Client, req protocol.WebSocketRequest, code string, cause error) error {
	response := protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.ResponseType(req.Type),
		Success: false,
		Error:   cause.Error(),
		Payload: protocol.ErrorPayload{Code: code},
	}
	if err := client.Send(response); err != nil {
		h.logger.Warn("failed to send error response", "client_id", client.ID, "error", err)
	}
	return cause
}
