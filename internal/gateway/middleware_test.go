package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestLoggingMiddleware(t *testing.T) {
	handler := loggingMiddleware(okHandler(), testLog())

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	handler := requestIDMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestRequestIDMiddleware_PreservesExisting(t *testing.T) {
	handler := requestIDMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, "custom-id-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "custom-id-123", rr.Header().Get(RequestIDHeader))
}

func TestRequestIDMiddleware_ReplacesOversizedID(t *testing.T) {
	handler := requestIDMiddleware(okHandler())

	long := strings.Repeat("x", 129)
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, long)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	got := rr.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, got)
	assert.NotEqual(t, long, got)
}

func TestRecoverMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := recoverMiddleware(panicky, testLog())

	req := httptest.NewRequest("POST", "/agent/call", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, http.StatusInternalServerError, env.Code)
	assert.Equal(t, "Internal server error", env.Message)
}

func TestCORSMiddleware_DenyWhenUnconfigured(t *testing.T) {
	handler := corsMiddleware(okHandler(), nil)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_AllowWildcard(t *testing.T) {
	handler := corsMiddleware(okHandler(), []string{"*"})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, RequestIDHeader, rr.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSMiddleware_SpecificOrigin(t *testing.T) {
	handler := corsMiddleware(okHandler(), []string{"http://allowed.com"})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://allowed.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://allowed.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req2 := httptest.NewRequest("GET", "/test", nil)
	req2.Header.Set("Origin", "http://evil.com")
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	assert.Empty(t, rr2.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := corsMiddleware(okHandler(), nil)

	req := httptest.NewRequest("OPTIONS", "/agent/call", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestWithMiddleware(t *testing.T) {
	handler := withMiddleware(okHandler(), testLog(), []string{"http://test.com"})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://test.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "http://test.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := sw.Hijack()
	assert.Error(t, err)
	assert.NotNil(t, sw.Unwrap())
}
