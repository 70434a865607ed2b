package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

// FailoverClient tries a chain of models on one provider, moving to the next
// model on retryable errors.
type FailoverClient struct {
	client    Client
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient creates a client that tries primary first, then falls
// back through fallbacks on retryable errors (401, 403, 429, 5xx).
func NewFailoverClient(client Client, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		client:    client,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("failover"),
	}
}

func (f *FailoverClient) Name() string { return f.client.Name() }

// Complete tries each model in turn. A request that names a model skips the
// chain.
func (f *FailoverClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Model != "" {
		return f.client.Complete(ctx, req)
	}

	models := append([]string{f.primary}, f.fallbacks...)
	var lastErr error
	for _, model := range models {
		req.Model = model
		resp, err := f.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		f.log.Warn().Str("model", model).Err(err).Msg("retryable error, trying next model")
	}
	return nil, lastErr
}

// isRetryable reports whether err suggests another model may succeed.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
