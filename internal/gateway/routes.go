package gateway

import (
	"context"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/orchestrator"
)

// safeConfigPrefixes lists config path prefixes readable over RPC. Sections
// that may hold credentials are left out.
var safeConfigPrefixes = []string{
	"server",
	"primaryAgent.transport",
	"primaryAgent.toolName",
	"orchestrator",
	"logging",
	"store.driver",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /agent/call", s.handleAgentCall)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("agent.call", s.rpcAgentCall)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	var uptime int64
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
		Uptime:  uptime,
	})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

// agentCallResult is the payload of a successful agent.call response.
type agentCallResult struct {
	CallID string `json:"callId"`
	*orchestrator.CallResponse
}

// rpcAgentCall runs an agent call and streams its rounds to the caller as
// agent.round and agent.tool events before responding.
func (s *Server) rpcAgentCall(rc *RequestContext) {
	if s.calls == nil {
		rc.RespondError("unavailable", "Service unavailable")
		return
	}

	req, err := orchestrator.ParseCallRequest(rc.Frame.Params)
	if err != nil {
		rc.RespondCallError(err)
		return
	}

	callID := uuid.NewString()
	unsubscribe := s.streamCallEvents(rc.Client, callID)
	defer unsubscribe()

	ctx := orchestrator.ContextWithCallID(rc.Ctx, callID)
	resp, err := s.calls.Call(ctx, req)
	if err != nil {
		rc.RespondCallError(err)
		return
	}
	rc.Respond(agentCallResult{CallID: callID, CallResponse: resp})
}

// streamCallEvents forwards the hook events of one call to client.
func (s *Server) streamCallEvents(client *Client, callID string) func() {
	if s.hooks == nil {
		return func() {}
	}
	events := []string{hooks.EventAgentRound, hooks.EventToolDispatched}
	return s.hooks.Subscribe("ws:"+callID, events, func(_ context.Context, p hooks.Payload) error {
		if p.CallID != callID {
			return nil
		}
		name := EventAgentRound
		if p.Event == hooks.EventToolDispatched {
			name = EventAgentTool
		}
		payload := map[string]any{"callId": callID}
		maps.Copy(payload, p.Data)
		return client.SendEvent(name, payload, s.eventSeq.Add(1))
	})
}
