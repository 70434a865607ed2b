package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/orchestrator"
	"github.com/HuxJiang/ai-agent-platform/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const (
	handshakeTimeout = 10 * time.Second
	// writeSlack is added to the orchestrator timeout so a timed out call
	// can still write its error envelope.
	writeSlack = 30 * time.Second
)

// Caller runs agent calls. *orchestrator.Service implements it.
type Caller interface {
	Call(ctx context.Context, req orchestrator.CallRequest) (*orchestrator.CallResponse, error)
}

// Server is the agenthub HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	calls Caller
	hooks *hooks.Manager

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithConfigRaw sets the raw config map for RPC access.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) {
		s.configRaw = raw
	}
}

// WithHooks sets the hook manager for lifecycle and call events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithCaller sets the service that runs agent calls.
func WithCaller(c Caller) ServerOption {
	return func(s *Server) {
		s.calls = c
	}
}

// New creates a new server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log.Sub("gateway"),
		clients:   NewClientRegistry(log.Sub("clients")),
		handlers:  make(map[string]RequestHandler),
		version:   version.Version,
		configRaw: make(map[string]any),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin accepts requests without an Origin header and those
// whose Origin is in allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the sorted list of registered RPC method names.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	timeout := s.cfg.Orchestrator.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	s.httpServer = &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: timeout + writeSlack,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Int("methods", len(s.handlers)).
		Msg("server starting")

	s.hooks.Emit(ctx, hooks.EventServerStart, "", map[string]any{
		"addr": ln.Addr().String(),
	})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		s.hooks.Emit(context.Background(), hooks.EventServerStop, "", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(client)
}

// handshake runs the connect exchange: the server sends a challenge, the
// client answers with a connect request and the server replies hello-ok.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}

	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}

	if !supportsProtocol(params) {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "unsupported protocol version")
		return nil, fmt.Errorf("unsupported protocol range %d-%d", params.MinProtocol, params.MaxProtocol)
	}

	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, s.log.Sub("ws"))

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventConnectChallenge, EventAgentRound, EventAgentTool},
		},
		Policy: ServerPolicy{MaxPayload: maxPayload},
	}

	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Msg("client connected")

	return client, nil
}

// supportsProtocol reports whether the client's range includes
// ProtocolVersion. A zero range means the client did not say.
func supportsProtocol(p ConnectParams) bool {
	if p.MinProtocol == 0 && p.MaxProtocol == 0 {
		return true
	}
	if p.MinProtocol > ProtocolVersion {
		return false
	}
	return p.MaxProtocol == 0 || p.MaxProtocol >= ProtocolVersion
}

// readLoop processes incoming frames from a connected client.
func (s *Server) readLoop(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		// agent.call can run for minutes; keep reading so a client may
		// issue several calls over one connection.
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, client, frame)
		}()
	}
}

// dispatch routes a request frame to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	handler(&RequestContext{
		Ctx:    ctx,
		Client: client,
		Frame:  frame,
		Server: s,
	})
}

// sendErrorAndClose sends an error response and closes the connection.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{
		Code:    code,
		Message: message,
	}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
