package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/version"
)

// maxToolPages bounds tools/list pagination against servers that never
// stop returning a cursor.
const maxToolPages = 32

// MCPDialer dials MCP servers over streamable HTTP or SSE using mcp-go.
type MCPDialer struct {
	log         *logging.Logger
	callTimeout time.Duration
	headers     map[string]string
	httpClient  *http.Client
}

// Option configures an MCPDialer.
type Option func(*MCPDialer)

// WithCallTimeout bounds each request made on a session, including the
// initialize handshake. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(m *MCPDialer) { m.callTimeout = d }
}

// WithHeaders adds HTTP headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(m *MCPDialer) {
		for k, v := range headers {
			m.headers[k] = v
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the transports.
func WithHTTPClient(c *http.Client) Option {
	return func(m *MCPDialer) { m.httpClient = c }
}

// NewDialer creates a dialer that logs through log.
func NewDialer(log *logging.Logger, opts ...Option) *MCPDialer {
	d := &MCPDialer{
		log:     log.Sub("mcp"),
		headers: map[string]string{"User-Agent": version.UserAgent()},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial starts the transport and performs the initialize handshake. ctx
// bounds the lifetime of streaming transports, so it should outlive the
// session.
func (d *MCPDialer) Dial(ctx context.Context, ep domain.Endpoint) (Session, error) {
	trans, err := d.newTransport(ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, ep.URL, err)
	}

	c := client.NewClient(trans)
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, ep.URL, err)
	}

	initCtx, cancel := withTimeout(ctx, d.callTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: version.Name, Version: version.Version}
	info, err := c.Initialize(initCtx, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, ep.URL, err)
	}

	d.log.Debug().
		Str("url", ep.URL).
		Str("transport", transportName(ep)).
		Str("server", info.ServerInfo.Name).
		Msg("session established")

	return &session{
		c:           c,
		ep:          ep,
		log:         d.log,
		callTimeout: d.callTimeout,
	}, nil
}

func (d *MCPDialer) newTransport(ep domain.Endpoint) (transport.Interface, error) {
	logger := mcpLogger{log: d.log}
	switch ep.Transport {
	case domain.TransportSSE:
		opts := []transport.ClientOption{
			transport.WithHeaders(d.headers),
			transport.WithSSELogger(logger),
		}
		if d.httpClient != nil {
			opts = append(opts, transport.WithHTTPClient(d.httpClient))
		}
		t, err := transport.NewSSE(ep.URL, opts...)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "", domain.TransportStreamHTTP:
		opts := []transport.StreamableHTTPCOption{
			transport.WithHTTPHeaders(d.headers),
			transport.WithHTTPLogger(logger),
		}
		if d.httpClient != nil {
			opts = append(opts, transport.WithHTTPBasicClient(d.httpClient))
		}
		t, err := transport.NewStreamableHTTP(ep.URL, opts...)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", ep.Transport)
	}
}

type session struct {
	c           *client.Client
	ep          domain.Endpoint
	log         *logging.Logger
	callTimeout time.Duration
	seq         atomic.Int64
	closeOnce   sync.Once
}

func (s *session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var all []ToolDescriptor
	cursor := ""
	for page := 0; page < maxToolPages; page++ {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		raw, err := s.send(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}
		tools, next, err := ParseTools(raw)
		if err != nil {
			return nil, fmt.Errorf("mcp tools/list: %w", err)
		}
		all = append(all, tools...)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return all, nil
}

func (s *session) CallTool(ctx context.Context, name string, args any) (*CallResult, error) {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	raw, err := s.send(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	res, err := ParseCallResult(raw)
	if err != nil {
		return nil, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}
	return res, nil
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		if err := s.c.Close(); err != nil {
			s.log.Warn().Err(err).Str("url", s.ep.URL).Msg("error closing session")
			return
		}
		s.log.Trace().Str("url", s.ep.URL).Msg("session closed")
	})
}

// send issues a raw JSON-RPC request so the result body reaches the parser
// untouched.
func (s *session) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := withTimeout(ctx, s.callTimeout)
	defer cancel()

	id := s.seq.Add(1)
	resp, err := s.c.GetTransport().SendRequest(ctx, transport.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(fmt.Sprintf("%s-%d", version.Name, id)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp %s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, &RPCError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.Result, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func transportName(ep domain.Endpoint) string {
	if ep.Transport == "" {
		return domain.TransportStreamHTTP
	}
	return ep.Transport
}

// mcpLogger routes mcp-go transport logs into zerolog.
type mcpLogger struct {
	log *logging.Logger
}

func (l mcpLogger) Infof(format string, v ...any)  { l.log.Debug().Msgf(format, v...) }
func (l mcpLogger) Errorf(format string, v ...any) { l.log.Warn().Msgf(format, v...) }
