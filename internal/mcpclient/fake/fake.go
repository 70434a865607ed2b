// Package fake provides an in-memory mcpclient.Dialer for tests.
package fake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
)

// ErrUnknownEndpoint is returned when dialing a URL with no registered server.
var ErrUnknownEndpoint = errors.New("fake: unknown endpoint")

// HandlerFunc answers a tools/call request. args is the JSON encoding of the
// arguments the caller passed.
type HandlerFunc func(name string, args json.RawMessage) (*mcpclient.CallResult, error)

// Call records one tools/call request.
type Call struct {
	Name string
	Args json.RawMessage
}

// Server is an in-memory MCP endpoint.
type Server struct {
	Tools   []mcpclient.ToolDescriptor
	ListErr error
	Handler HandlerFunc

	mu     sync.Mutex
	calls  []Call
	opened int
	closed int
}

// Calls returns the recorded tools/call requests in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Sessions returns how many sessions were opened and how many were closed.
func (s *Server) Sessions() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

// Dialer routes Dial calls to registered servers by URL.
type Dialer struct {
	mu      sync.Mutex
	servers map[string]*Server
	failing map[string]error
	dials   []string
}

// NewDialer returns an empty Dialer.
func NewDialer() *Dialer {
	return &Dialer{
		servers: make(map[string]*Server),
		failing: make(map[string]error),
	}
}

// Register serves s at url.
func (d *Dialer) Register(url string, s *Server) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.servers[url] = s
	return d
}

// Fail makes every Dial to url return err.
func (d *Dialer) Fail(url string, err error) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[url] = err
	return d
}

// Dials returns the URLs dialed so far, in order.
func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

// Dial implements mcpclient.Dialer.
func (d *Dialer) Dial(ctx context.Context, ep domain.Endpoint) (mcpclient.Session, error) {
	d.mu.Lock()
	d.dials = append(d.dials, ep.URL)
	failErr := d.failing[ep.URL]
	srv := d.servers[ep.URL]
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", mcpclient.ErrConnect, ep.URL, err)
	}
	if failErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", mcpclient.ErrConnect, ep.URL, failErr)
	}
	if srv == nil {
		return nil, fmt.Errorf("%w: %s: %w", mcpclient.ErrConnect, ep.URL, ErrUnknownEndpoint)
	}

	srv.mu.Lock()
	srv.opened++
	srv.mu.Unlock()
	return &session{srv: srv}, nil
}

type session struct {
	srv  *Server
	once sync.Once
}

func (s *session) ListTools(ctx context.Context) ([]mcpclient.ToolDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.srv.ListErr != nil {
		return nil, s.srv.ListErr
	}
	return append([]mcpclient.ToolDescriptor(nil), s.srv.Tools...), nil
}

func (s *session) CallTool(ctx context.Context, name string, args any) (*mcpclient.CallResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	s.srv.mu.Lock()
	s.srv.calls = append(s.srv.calls, Call{Name: name, Args: raw})
	s.srv.mu.Unlock()

	if s.srv.Handler == nil {
		return nil, &mcpclient.RPCError{Method: "tools/call", Code: -32601, Message: "tool not found: " + name}
	}
	return s.srv.Handler(name, raw)
}

func (s *session) Close() {
	s.once.Do(func() {
		s.srv.mu.Lock()
		s.srv.closed++
		s.srv.mu.Unlock()
	})
}

// Script returns a handler that answers successive calls with results in
// order and repeats the last one once the script is exhausted.
func Script(results ...*mcpclient.CallResult) HandlerFunc {
	var mu sync.Mutex
	next := 0
	return func(string, json.RawMessage) (*mcpclient.CallResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(results) == 0 {
			return Text(""), nil
		}
		r := results[next]
		if next < len(results)-1 {
			next++
		}
		return r, nil
	}
}

// Text builds a result carrying a single text part.
func Text(text string) *mcpclient.CallResult {
	return &mcpclient.CallResult{
		Content: []mcpclient.ContentPart{{Type: "text", Text: text}},
	}
}

// Reply builds a primary agent reply with the given tool-call directives in
// its metadata. Each directive is JSON encoded as given.
func Reply(text string, directives ...any) *mcpclient.CallResult {
	r := Text(text)
	for _, d := range directives {
		raw, err := json.Marshal(d)
		if err != nil {
			panic(fmt.Sprintf("fake: encoding directive: %v", err))
		}
		r.ToolCalls = append(r.ToolCalls, raw)
	}
	return r
}

// Directive is a flat tool-call directive as the primary agent emits it.
type Directive struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
