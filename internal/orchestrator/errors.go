package orchestrator

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a malformed agent call request. Field names the
// offending input and is empty for a body that could not be decoded.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthorizationError reports a caller with no relation to the target agent.
type AuthorizationError struct {
	UserID  int64
	AgentID int64
}

func (e *AuthorizationError) Error() string {
	return "User does not own or favorite the agent"
}

// NotFoundError reports a missing agent record.
type NotFoundError struct {
	AgentID int64
}

func (e *NotFoundError) Error() string {
	return "Agent not found"
}

// UpstreamError reports a failure reaching or using the primary agent.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UnavailableError reports a required dependency, such as the record store,
// that could not be reached.
type UnavailableError struct {
	Dependency string
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return e.Dependency + " unavailable"
	}
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Messages surfaced by UpstreamError.
const (
	msgConnectPrimary = "Failed to connect to main agent"
	msgCallPrimary    = "Failed to call agent"
)

// StatusCode maps an error returned by Service.Call to an HTTP status.
// Unclassified errors map to 500.
func StatusCode(err error) int {
	var (
		verr *ValidationError
		aerr *AuthorizationError
		nerr *NotFoundError
		uerr *UpstreamError
		derr *UnavailableError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &aerr):
		return http.StatusForbidden
	case errors.As(err, &nerr):
		return http.StatusNotFound
	case errors.As(err, &uerr):
		return http.StatusBadGateway
	case errors.As(err, &derr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the caller-facing message for err. Upstream and
// dependency failures hide their cause.
func PublicMessage(err error) string {
	var (
		uerr *UpstreamError
		derr *UnavailableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &uerr):
		return uerr.Message
	case errors.As(err, &derr):
		return "Service unavailable"
	case StatusCode(err) == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}
