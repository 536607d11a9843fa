// Package server provides HTTP and WebSocket server infrastructure for the RFID agent.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/rfid-agent/buildinfo"
	"github.com/dotside-studios/rfid-agent/protocol"
	"github.com/dotside-studios/rfid-agent/rfid"
)

// Reader is the session surface the server exposes to clients.
// Implementations must be safe for concurrent use.
type Reader interface {
	Status() rfid.Status
	FeatureSet() (rfid.FeatureSet, bool)
	DispatchStats() rfid.DispatchStats
	GetTxPower(ctx context.Context) ([]float64, error)
	SetTxPower(ctx context.Context, dbm float64) error
	GetAntennaConfig(ctx context.Context) (rfid.AntennaMask, error)
	SetAntennaConfig(ctx context.Context, mask rfid.AntennaMask) error
	SetMode(ctx context.Context, readerMode rfid.ReaderMode, searchMode rfid.SearchMode, session uint16) error
	SetReportFlags(ctx context.Context, includeAntenna, includeChannel, includeRssi bool) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Read(ctx context.Context, epcTarget []byte, bank rfid.MemoryBank, wordPointer, wordCount uint16) ([]byte, error)
}

// Config holds the server configuration
type Config struct {
	Reader Reader

	// Reports feeds tag reports to broadcast. Optional.
	Reports <-chan rfid.TagReport

	Addr       string // listen address, e.g. ":18080"
	APISecret  string // Optional API secret for WebSocket connection
	EnableMDNS bool

	// RequestTimeout bounds each reader operation started by a client.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex

	clients  *ClientManager
	upgrader websocket.Upgrader

	handlerRegistry *HandlerRegistry
	readerHandler   *ReaderHandler

	// mDNS service for auto-discovery
	mdnsServer *zeroconf.Server
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	logger := config.Logger.With("component", "server")

	s := &Server{
		config:  config,
		logger:  logger,
		clients: NewClientManager(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlerRegistry: NewHandlerRegistry(),
	}
	s.handlerRegistry.Use(logRequests(logger), recoverHandler())

	if config.Reader != nil {
		s.readerHandler = NewReaderHandler(config.Reader, config.Reports, config.RequestTimeout, logger)
		s.Register(s.readerHandler)
	}

	return s
}

// Register lets each handler add its routes and lifecycle work.
func (s *Server) Register(handlers ...ServerHandler) {
	for _, h := range handlers {
		h.Register(s)
	}
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// BroadcastTagReport sends a tag report to all connected WebSocket clients.
func (s *Server) BroadcastTagReport(report rfid.TagReport) {
	s.clients.Broadcast(&protocol.WebSocketMessage{
		Type:    protocol.WSTypeTagReport,
		Payload: protocol.NewTagReportPayload(report, time.Now()),
	})
}

// BroadcastReaderStatus sends the reader status to all connected WebSocket clients.
func (s *Server) BroadcastReaderStatus(info protocol.ReaderInfo) {
	s.clients.Broadcast(&protocol.WebSocketMessage{
		Type:    protocol.WSTypeReaderStatus,
		Payload: info,
	})
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.clients.Count()
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(RouteHealth, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHealthCheck(w, r)
	}))

	mux.HandleFunc(RouteReader, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleReaderInfo(w, r)
	}))

	mux.HandleFunc(RouteWebSocket, s.handleWebSocket)

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " Server Running"))
	}))

	return mux
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Start listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = ln
	s.httpServer = httpServer
	s.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String(), "urls", WebSocketURLs(ln.Addr()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if s.config.EnableMDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.Warn("mDNS registration failed, auto-discovery unavailable", "error", err)
		}
	}

	s.handlerRegistry.StartLifecycleHandlers(ctx)

	select {
	case <-ctx.Done():
		s.logger.Info("server context cancelled, shutting down")
	case err := <-serveErr:
		if err != nil {
			s.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}
	s.Stop()
	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	s.mu.Lock()
	mdnsServer, httpServer := s.mdnsServer, s.httpServer
	s.mdnsServer, s.httpServer = nil, nil
	s.mu.Unlock()

	if mdnsServer != nil {
		mdnsServer.Shutdown()
		s.logger.Info("mDNS service stopped")
	}

	s.clients.CloseAll()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
	}
}

// startMDNS registers the agent as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	port := 0
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=" + RouteWebSocket,
		"secret=" + fmt.Sprint(s.config.APISecret != ""),
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	s.logger.Info("mDNS service registered", "name", MDNSServiceName, "type", MDNSServiceType, "port", port)
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" {
		secret := r.URL.Query().Get("secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.APISecret)) != 1 {
			s.logger.Warn("websocket connection rejected: invalid API secret", "remote", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade error", "error", err)
		return
	}

	client := newClient(conn, r.RemoteAddr)
	logger := s.logger.With("client_id", client.ID)
	logger.Info("websocket connected", "remote", r.RemoteAddr)

	s.clients.Register(client)
	defer func() {
		s.clients.Unregister(client)
		conn.Close()
		logger.Info("websocket disconnected")
	}()

	// Send initial reader status
	if s.readerHandler != nil {
		client.Send(&protocol.WebSocketMessage{
			Type:    protocol.WSTypeReaderStatus,
			Payload: s.readerHandler.info(""),
		})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			logger.Warn("failed to parse websocket message", "error", err)
			s.sendErrorResponse(client, "", protocol.ErrCodeParse, "Invalid message format")
			continue
		}

		handler, ok := s.handlerRegistry.Get(req.Type)
		if !ok {
			logger.Warn("unknown message type", "type", req.Type)
			s.sendErrorResponse(client, req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}

		if err := handler(r.Context(), client, req); err != nil {
			if errors.Is(err, ErrHandlerPanic) {
				logger.Error("handler panicked", "type", req.Type, "error", err)
				s.sendErrorResponse(client, req.ID, protocol.ErrCodeInternalError, "Internal error")
				continue
			}
			// the handler already answered
			logger.Warn("handler error", "type", req.Type, "error", err)
		}
	}
}

// sendErrorResponse sends a structured error response to a WebSocket client
func (s *Server) sendErrorResponse(client *Client, requestID string, errorCode string, message string) {
	response := protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: errorCode},
	}

	if err := client.Send(response); err != nil {
		s.logger.Warn("failed to send error response", "client_id", client.ID, "error", err)
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.HealthResponse{
		Status:    "ok",
		Version:   buildinfo.FullVersion(),
		Timestamp: protocol.Timestamp(time.Now()),
	})
}

// handleReaderInfo reports the session status and reader capabilities (GET /api/v1/reader)
func (s *Server) handleReaderInfo(w http.ResponseWriter, r *http.Request) {
	if s.readerHandler == nil {
		http.Error(w, "No reader configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.readerHandler.info(""))
}
