package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/HuxJiang/ai-agent-platform/internal/orchestrator"
)

// msgCallSucceeded is the envelope message of a successful agent call.
const msgCallSucceeded = "Agent called successfully"

// Envelope wraps every /agent response body. Code is 0 on success and the
// HTTP status otherwise.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the RPC handler populates all fields.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
	Uptime  int64  `json:"uptimeSec,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Code: status, Message: message})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found: "+r.URL.Path)
}

// handleAgentCall runs an agent call for a POST /agent/call request.
func (s *Server) handleAgentCall(w http.ResponseWriter, r *http.Request) {
	if s.calls == nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	req, err := orchestrator.ParseCallRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := orchestrator.ContextWithCallID(r.Context(), w.Header().Get(RequestIDHeader))
	resp, err := s.calls.Call(ctx, req)
	if err != nil {
		writeError(w, orchestrator.StatusCode(err), orchestrator.PublicMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Message: msgCallSucceeded, Data: resp})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs. Ctx is cancelled when
// the connection goes away.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// RespondCallError reports an agent call failure with its HTTP status.
func (rc *RequestContext) RespondCallError(err error) {
	status := orchestrator.StatusCode(err)
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    errorCode(status),
		Message: orchestrator.PublicMessage(err),
		Status:  status,
	})
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_params"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}
