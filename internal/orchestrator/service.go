// Package orchestrator runs agent calls: it validates the request, checks the
// caller's relation to the agent, resolves the sub-agent's tools and drives
// the bounded exchange with the primary agent.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/HuxJiang/ai-agent-platform/internal/catalog"
	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/dispatch"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
)

// AgentStore is the subset of the record store an agent call needs.
type AgentStore interface {
	HasRelation(ctx context.Context, userID, agentID int64) (bool, error)
	GetAgent(ctx context.Context, id int64) (*domain.Agent, error)
}

// Service runs agent calls. It is safe for concurrent use; nothing is shared
// between calls except its immutable configuration.
type Service struct {
	store     AgentStore
	dialer    mcpclient.Dialer
	primary   domain.Endpoint
	toolName  string
	maxRounds int
	timeout   time.Duration
	local     []catalog.Definition
	hooks     *hooks.Manager
	log       *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHooks makes the service report call progress to m.
func WithHooks(m *hooks.Manager) Option {
	return func(s *Service) { s.hooks = m }
}

// WithLocalTools adds in-process tools to every call's catalog. They take
// precedence over sub-agent tools of the same name.
func WithLocalTools(defs ...catalog.Definition) Option {
	return func(s *Service) { s.local = append(s.local, defs...) }
}

// NewService creates a Service talking to the primary agent described by
// primary. Zero values in orch fall back to the defaults.
func NewService(
	primary config.PrimaryAgentConfig,
	orch config.OrchestratorConfig,
	store AgentStore,
	dialer mcpclient.Dialer,
	log *logging.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		dialer:    dialer,
		primary:   domain.Endpoint{URL: primary.URL, Transport: primary.Transport},
		toolName:  primary.ToolName,
		maxRounds: orch.MaxRounds,
		timeout:   orch.Timeout,
		log:       log.Sub("orchestrator"),
	}
	if s.primary.URL == "" {
		s.primary.URL = config.DefaultPrimaryAgentURL
	}
	if s.toolName == "" {
		s.toolName = config.DefaultPrimaryToolName
	}
	if s.maxRounds <= 0 {
		s.maxRounds = DefaultMaxRounds
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Call runs one agent call and returns the last message of the resulting
// conversation. Errors are one of ValidationError, AuthorizationError,
// NotFoundError, UpstreamError or UnavailableError.
func (s *Service) Call(ctx context.Context, req CallRequest) (*CallResponse, error) {
	req, err := req.Validate()
	if err != nil {
		return nil, err
	}

	callID := callIDFrom(ctx)
	log := s.log.With("callId", callID)
	agentID := strconv.FormatInt(req.AgentID, 10)

	ok, err := s.store.HasRelation(ctx, req.UserID, req.AgentID)
	if err != nil {
		log.Error().Err(err).Msg("relation lookup failed")
		return nil, &UnavailableError{Dependency: "record store", Err: err}
	}
	if !ok {
		log.Info().Int64("userId", req.UserID).Str("agentId", agentID).Msg("caller has no relation to agent")
		return nil, &AuthorizationError{UserID: req.UserID, AgentID: req.AgentID}
	}

	agent, err := s.store.GetAgent(ctx, req.AgentID)
	if errors.Is(err, domain.ErrAgentNotFound) {
		return nil, &NotFoundError{AgentID: req.AgentID}
	}
	if err != nil {
		log.Error().Err(err).Msg("agent lookup failed")
		return nil, &UnavailableError{Dependency: "record store", Err: err}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.hooks.Emit(ctx, hooks.EventAgentCallStart, callID, map[string]any{
		"agentId":  req.AgentID,
		"userId":   req.UserID,
		"messages": len(req.Messages),
	})

	out, err := s.run(ctx, callID, agent, req.Messages, log.With("agentId", agentID))

	done := map[string]any{"agentId": req.AgentID, "durationMs": time.Since(start).Milliseconds()}
	if err != nil {
		done["error"] = PublicMessage(err)
	} else {
		done["rounds"] = out.rounds
		done["capped"] = out.capped
	}
	s.hooks.Emit(ctx, hooks.EventAgentCallDone, callID, done)

	if err != nil {
		return nil, err
	}
	log.Info().
		Int("rounds", out.rounds).
		Bool("capped", out.capped).
		Str("finalRole", string(out.final.Role)).
		Dur("duration", time.Since(start)).
		Msg("agent call finished")
	return &CallResponse{Messages: []domain.Message{out.final}}, nil
}

// run opens the primary agent session, resolves the sub-agent's tools and
// drives the loop. The primary session stays open for the whole call.
func (s *Service) run(ctx context.Context, callID string, agent *domain.Agent, seed []domain.Message, log *logging.Logger) (*outcome, error) {
	primary, err := s.dialer.Dial(ctx, s.primary)
	if err != nil {
		log.Error().Err(err).Str("url", s.primary.URL).Msg("primary agent unreachable")
		return nil, &UpstreamError{Message: msgConnectPrimary, Err: err}
	}
	defer primary.Close()

	var sub *domain.Endpoint
	if ep, ok := agent.Endpoint(); ok {
		sub = &ep
	}

	cat := catalog.Discover(ctx, s.dialer, sub, log)
	for _, def := range s.local {
		cat.Register(def)
	}

	l := &loop{
		callID:    callID,
		toolName:  s.toolName,
		maxRounds: s.maxRounds,
		primary:   primary,
		catalog:   cat,
		dispatch:  dispatch.New(cat, s.dialer, sub, log),
		hooks:     s.hooks,
		log:       log,
	}
	return l.run(ctx, seed)
}

type callIDKey struct{}

// ContextWithCallID makes Call use id to tag its logs and hook events, so a
// caller can correlate events with its own request.
func ContextWithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

func callIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(callIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
