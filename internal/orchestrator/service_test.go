package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuxJiang/ai-agent-platform/internal/catalog"
	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient/fake"
)

const (
	primaryURL = "http://primary.test/mcp"
	subURL     = "http://sub.test/mcp"
)

type memStore struct {
	mu        sync.Mutex
	agents    map[int64]*domain.Agent
	relations map[[2]int64]bool
	err       error
	lookups   int
}

func newMemStore() *memStore {
	return &memStore{
		agents:    make(map[int64]*domain.Agent),
		relations: make(map[[2]int64]bool),
	}
}

func (m *memStore) add(a domain.Agent, users ...int64) *memStore {
	m.agents[a.ID] = &a
	for _, u := range users {
		m.relations[[2]int64{u, a.ID}] = true
	}
	return m
}

func (m *memStore) HasRelation(_ context.Context, userID, agentID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return false, m.err
	}
	return m.relations[[2]int64{userID, agentID}], nil
}

func (m *memStore) GetAgent(_ context.Context, id int64) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type harness struct {
	store   *memStore
	dialer  *fake.Dialer
	primary *fake.Server
	sub     *fake.Server
	svc     *Service
}

func newHarness(t *testing.T, primary fake.HandlerFunc, sub fake.HandlerFunc, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		dialer:  fake.NewDialer(),
		primary: &fake.Server{Handler: primary},
		sub: &fake.Server{
			Tools:   []mcpclient.ToolDescriptor{{Name: "search", Description: "Search things"}},
			Handler: sub,
		},
	}
	h.store.add(domain.Agent{ID: 1, Name: "searcher", URL: subURL}, 7)
	h.store.add(domain.Agent{ID: 2, Name: "bare"}, 7)
	h.dialer.Register(primaryURL, h.primary).Register(subURL, h.sub)
	h.svc = NewService(
		config.PrimaryAgentConfig{URL: primaryURL},
		config.OrchestratorConfig{},
		h.store, h.dialer, silentLog(), opts...,
	)
	return h
}

func userHi() CallRequest {
	return CallRequest{
		AgentID:  1,
		UserID:   7,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}
}

func primaryArgs(t *testing.T, c fake.Call) chatArguments {
	t.Helper()
	var args chatArguments
	require.NoError(t, json.Unmarshal(c.Args, &args))
	return args
}

func TestCallNoToolCalls(t *testing.T) {
	h := newHarness(t, fake.Script(fake.Reply("hello")), nil)

	resp, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "hello"}, resp.Messages[0])

	calls := h.primary.Calls()
	require.Len(t, calls, 1, "exactly one round")
	assert.Equal(t, config.DefaultPrimaryToolName, calls[0].Name)

	args := primaryArgs(t, calls[0])
	assert.Equal(t, []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, args.Messages)
	require.Len(t, args.Tools, 1)
	assert.Equal(t, "search", args.Tools[0].Function.Name)
	assert.Equal(t, "auto", args.ToolChoice)
}

func TestCallSingleToolRound(t *testing.T) {
	h := newHarness(t,
		fake.Script(
			fake.Reply("", fake.Directive{ID: "call_a", Name: "search", Arguments: `{"q":"x"}`}),
			fake.Reply("done"),
		),
		func(name string, args json.RawMessage) (*mcpclient.CallResult, error) {
			return fake.Text("result"), nil
		},
	)

	resp, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "done"}, resp.Messages[0])

	calls := h.primary.Calls()
	require.Len(t, calls, 2)
	second := primaryArgs(t, calls[1]).Messages
	require.Len(t, second, 3)

	assert.Equal(t, domain.RoleAssistant, second[1].Role)
	assert.Equal(t, domain.EmptyContent, second[1].Content)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, "call_a", second[1].ToolCalls[0].ID)
	assert.Equal(t, domain.ToolTypeFunction, second[1].ToolCalls[0].Type)

	assert.Equal(t, domain.Message{
		Role:       domain.RoleTool,
		Content:    "result",
		ToolCallID: "call_a",
		Name:       "search",
		To:         "assistant",
	}, second[2])

	subCalls := h.sub.Calls()
	require.Len(t, subCalls, 1)
	assert.Equal(t, "search", subCalls[0].Name)
	assert.JSONEq(t, `{"q":"x"}`, string(subCalls[0].Args))
}

func TestCallRoundCapReturnsLastMessage(t *testing.T) {
	h := newHarness(t,
		fake.Script(fake.Reply("again", fake.Directive{Name: "search", Arguments: `{}`})),
		func(string, json.RawMessage) (*mcpclient.CallResult, error) {
			return fake.Text("partial"), nil
		},
	)

	resp, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)

	final := resp.Messages[0]
	assert.Equal(t, domain.RoleTool, final.Role, "cap may end on a tool reply")
	assert.Equal(t, "partial", final.Content)
	assert.True(t, strings.HasPrefix(final.ToolCallID, "call_"))

	assert.Len(t, h.primary.Calls(), DefaultMaxRounds)
	assert.Len(t, h.sub.Calls(), DefaultMaxRounds)
}

func TestCallConfiguredRoundCap(t *testing.T) {
	h := newHarness(t,
		fake.Script(fake.Reply("again", fake.Directive{Name: "search", Arguments: `{}`})),
		func(string, json.RawMessage) (*mcpclient.CallResult, error) { return fake.Text("x"), nil },
	)
	h.svc = NewService(
		config.PrimaryAgentConfig{URL: primaryURL},
		config.OrchestratorConfig{MaxRounds: 2},
		h.store, h.dialer, silentLog(),
	)

	_, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	assert.Len(t, h.primary.Calls(), 2)
}

func TestCallValidationBeforeAnyIO(t *testing.T) {
	h := newHarness(t, fake.Script(fake.Reply("hello")), nil)

	req := userHi()
	req.Messages = []domain.Message{}
	_, err := h.svc.Call(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Empty(t, h.dialer.Dials(), "no network activity")
	assert.Zero(t, h.store.lookups, "no store activity")
}

func TestCallErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		req     func() CallRequest
		status  int
		message string
	}{
		{
			name:    "no relation",
			req:     func() CallRequest { r := userHi(); r.UserID = 99; return r },
			status:  http.StatusForbidden,
			message: "User does not own or favorite the agent",
		},
		{
			name: "agent missing",
			setup: func(h *harness) {
				h.store.relations[[2]int64{7, 42}] = true
			},
			req:     func() CallRequest { r := userHi(); r.AgentID = 42; return r },
			status:  http.StatusNotFound,
			message: "Agent not found",
		},
		{
			name:    "store down",
			setup:   func(h *harness) { h.store.err = errors.New("connection refused") },
			req:     userHi,
			status:  http.StatusServiceUnavailable,
			message: "Service unavailable",
		},
		{
			name:    "primary unreachable",
			setup:   func(h *harness) { h.dialer.Fail(primaryURL, errors.New("dial tcp: refused")) },
			req:     userHi,
			status:  http.StatusBadGateway,
			message: "Failed to connect to main agent",
		},
		{
			name: "primary call fails",
			setup: func(h *harness) {
				h.primary.Handler = func(string, json.RawMessage) (*mcpclient.CallResult, error) {
					return nil, errors.New("stream reset")
				}
			},
			req:     userHi,
			status:  http.StatusBadGateway,
			message: "Failed to call agent",
		},
		{
			name: "primary error result",
			setup: func(h *harness) {
				res := fake.Text("model overloaded")
				res.IsError = true
				h.primary.Handler = fake.Script(res)
			},
			req:     userHi,
			status:  http.StatusBadGateway,
			message: "Failed to call agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fake.Script(fake.Reply("hello")), nil)
			if tt.setup != nil {
				tt.setup(h)
			}
			resp, err := h.svc.Call(context.Background(), tt.req())
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.message, PublicMessage(err))
		})
	}
}

func TestCallForbiddenDoesNotDial(t *testing.T) {
	h := newHarness(t, fake.Script(fake.Reply("hello")), nil)
	req := userHi()
	req.UserID = 99

	_, err := h.svc.Call(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, h.dialer.Dials())
}

func TestCallSubAgentUnreachable(t *testing.T) {
	h := newHarness(t, fake.Script(fake.Reply("no tools today")), nil)
	h.dialer.Fail(subURL, errors.New("refused"))

	resp, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	assert.Equal(t, "no tools today", resp.Messages[0].Content)

	calls := h.primary.Calls()
	require.Len(t, calls, 1)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(calls[0].Args, &raw))
	assert.NotContains(t, raw, "tools")
	assert.NotContains(t, raw, "toolChoice")
}

func TestCallAgentWithoutURL(t *testing.T) {
	h := newHarness(t,
		fake.Script(
			fake.Reply("", fake.Directive{ID: "c1", Name: "search", Arguments: `{}`}),
			fake.Reply("fine"),
		),
		nil,
	)
	req := userHi()
	req.AgentID = 2

	resp, err := h.svc.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Messages[0].Content)

	second := primaryArgs(t, h.primary.Calls()[1]).Messages
	assert.Equal(t, domain.ToolCallFailed, second[len(second)-1].Content)
	assert.Equal(t, []string{primaryURL}, h.dialer.Dials())
}

func TestCallToolFailureContinues(t *testing.T) {
	h := newHarness(t,
		fake.Script(
			fake.Reply("", fake.Directive{ID: "c1", Name: "search", Arguments: `{}`}),
			fake.Reply("recovered"),
		),
		func(string, json.RawMessage) (*mcpclient.CallResult, error) {
			return nil, errors.New("sub-agent crashed")
		},
	)

	resp, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Messages[0].Content)

	second := primaryArgs(t, h.primary.Calls()[1]).Messages
	assert.Equal(t, domain.ToolCallErrored, second[len(second)-1].Content)
}

func TestCallDropsIncompleteDirectives(t *testing.T) {
	h := newHarness(t,
		fake.Script(fake.Reply("only text", map[string]any{"name": "search"}, map[string]any{"arguments": "{}"})),
		nil,
	)

	resp, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "only text"}, resp.Messages[0])
	assert.Len(t, h.primary.Calls(), 1)
	assert.Empty(t, h.sub.Calls())
}

func TestCallLocalTool(t *testing.T) {
	var got string
	localSearch := catalog.Definition{
		Name:        "search",
		Description: "local search",
		Execution: catalog.Local(func(_ context.Context, args string) (string, error) {
			got = args
			return "local result", nil
		}),
	}
	h := newHarness(t,
		fake.Script(
			fake.Reply("", fake.Directive{ID: "c1", Name: "search", Arguments: `{"q":"y"}`}),
			fake.Reply("ok"),
		),
		nil,
		WithLocalTools(localSearch),
	)

	_, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)
	assert.Equal(t, `{"q":"y"}`, got)
	assert.Empty(t, h.sub.Calls(), "local tools never reach the sub-agent")

	second := primaryArgs(t, h.primary.Calls()[1]).Messages
	assert.Equal(t, "local result", second[len(second)-1].Content)
}

func TestCallClosesSessions(t *testing.T) {
	h := newHarness(t,
		fake.Script(
			fake.Reply("", fake.Directive{ID: "c1", Name: "search", Arguments: `{}`}, fake.Directive{ID: "c2", Name: "search", Arguments: `{}`}),
			fake.Reply("done"),
		),
		func(string, json.RawMessage) (*mcpclient.CallResult, error) { return fake.Text("r"), nil },
	)

	_, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)

	opened, closed := h.primary.Sessions()
	assert.Equal(t, 1, opened, "one primary session per call")
	assert.Equal(t, 1, closed)

	opened, closed = h.sub.Sessions()
	assert.Equal(t, 3, opened, "one for discovery and one per dispatch")
	assert.Equal(t, opened, closed)
}

func TestCallClosesPrimaryOnFailure(t *testing.T) {
	h := newHarness(t, func(string, json.RawMessage) (*mcpclient.CallResult, error) {
		return nil, errors.New("broken pipe")
	}, nil)

	_, err := h.svc.Call(context.Background(), userHi())
	require.Error(t, err)
	opened, closed := h.primary.Sessions()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestCallTimeout(t *testing.T) {
	h := newHarness(t, func(string, json.RawMessage) (*mcpclient.CallResult, error) {
		time.Sleep(50 * time.Millisecond)
		return fake.Reply("late", fake.Directive{Name: "search", Arguments: `{}`}), nil
	}, func(string, json.RawMessage) (*mcpclient.CallResult, error) {
		return fake.Text("r"), nil
	})
	h.svc = NewService(
		config.PrimaryAgentConfig{URL: primaryURL},
		config.OrchestratorConfig{Timeout: 20 * time.Millisecond},
		h.store, h.dialer, silentLog(),
	)

	_, err := h.svc.Call(context.Background(), userHi())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallEmitsHooks(t *testing.T) {
	mgr := hooks.NewManager(silentLog())
	var (
		mu     sync.Mutex
		events []string
		callID string
	)
	mgr.Subscribe("recorder", hooks.CallEvents, func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.Event)
		if callID == "" {
			callID = p.CallID
		}
		assert.Equal(t, callID, p.CallID)
		return nil
	})

	h := newHarness(t,
		fake.Script(
			fake.Reply("", fake.Directive{ID: "c1", Name: "search", Arguments: `{}`}),
			fake.Reply("done"),
		),
		func(string, json.RawMessage) (*mcpclient.CallResult, error) { return fake.Text("r"), nil },
		WithHooks(mgr),
	)

	_, err := h.svc.Call(context.Background(), userHi())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		hooks.EventAgentCallStart,
		hooks.EventAgentRound,
		hooks.EventToolDispatched,
		hooks.EventAgentRound,
		hooks.EventAgentCallDone,
	}, events)
	assert.NotEmpty(t, callID)
}

func TestCallConcurrentCallsAreIndependent(t *testing.T) {
	h := newHarness(t, func(_ string, args json.RawMessage) (*mcpclient.CallResult, error) {
		var a chatArguments
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		return fake.Reply("echo " + a.Messages[0].Content), nil
	}, nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := userHi()
			req.Messages[0].Content = strings.Repeat("x", i+1)
			resp, err := h.svc.Call(context.Background(), req)
			if assert.NoError(t, err) {
				results[i] = resp.Messages[0].Content
			}
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.Equal(t, "echo "+strings.Repeat("x", i+1), r)
	}
}

func TestCallUsesContextCallID(t *testing.T) {
	mgr := hooks.NewManager(silentLog())
	var seen []string
	mgr.Subscribe("ids", hooks.CallEvents, func(_ context.Context, p hooks.Payload) error {
		seen = append(seen, p.CallID)
		return nil
	})
	h := newHarness(t, fake.Script(fake.Reply("hello")), nil, WithHooks(mgr))

	ctx := ContextWithCallID(context.Background(), "req-123")
	_, err := h.svc.Call(ctx, userHi())
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for _, id := range seen {
		assert.Equal(t, "req-123", id)
	}
}
