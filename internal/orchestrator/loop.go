package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/HuxJiang/ai-agent-platform/internal/catalog"
	"github.com/HuxJiang/ai-agent-platform/internal/conversation"
	"github.com/HuxJiang/ai-agent-platform/internal/dispatch"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
	"github.com/HuxJiang/ai-agent-platform/internal/toolcall"
)

// DefaultMaxRounds bounds the exchange with the primary agent.
const DefaultMaxRounds = 6

// toolChoiceAuto lets the primary agent decide whether to call a tool.
const toolChoiceAuto = "auto"

var errPrimaryToolError = errors.New("primary agent returned an error result")

// chatArguments is the argument object of the primary agent's chat tool.
type chatArguments struct {
	Messages   []domain.Message `json:"messages"`
	Tools      []openai.Tool    `json:"tools,omitempty"`
	ToolChoice string           `json:"toolChoice,omitempty"`
}

// outcome is the result of one loop run.
type outcome struct {
	final      domain.Message
	transcript []domain.Message
	rounds     int
	capped     bool
}

// loop drives the rounds of a single agent call against an open primary
// agent session.
type loop struct {
	callID    string
	toolName  string
	maxRounds int
	primary   mcpclient.Session
	catalog   *catalog.Catalog
	dispatch  *dispatch.Dispatcher
	hooks     *hooks.Manager
	log       *logging.Logger
}

// run executes rounds until the primary agent stops requesting tools or the
// round cap is reached. Only failures talking to the primary agent are
// returned; tool failures stay in the conversation as sentinel text.
func (l *loop) run(ctx context.Context, seed []domain.Message) (*outcome, error) {
	maxRounds := l.maxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	conv := conversation.New(seed)
	schema := l.catalog.Schema()

	for round := 1; round <= maxRounds; round++ {
		start := time.Now()

		res, err := l.ask(ctx, conv, schema)
		if err != nil {
			l.log.Error().Err(err).Int("round", round).Msg("primary agent call failed")
			return nil, &UpstreamError{Message: msgCallPrimary, Err: err}
		}

		content := res.Text()
		if content == "" {
			content = domain.EmptyContent
		}
		calls := uniqueIDs(toolcall.Normalize(res.ToolCalls))
		conv.AppendAssistant(content, calls)

		l.log.Debug().
			Int("round", round).
			Int("directives", len(res.ToolCalls)).
			Int("toolCalls", len(calls)).
			Int("contentLen", len(content)).
			Dur("duration", time.Since(start)).
			Msg("primary agent replied")
		l.hooks.Emit(ctx, hooks.EventAgentRound, l.callID, map[string]any{
			"round":     round,
			"content":   content,
			"toolCalls": toolNames(calls),
		})

		if len(calls) == 0 {
			return l.finish(conv, round, false), nil
		}

		for _, call := range calls {
			result := l.dispatch.Dispatch(ctx, call)
			if err := conv.AppendToolReply(call, result); err != nil {
				return nil, &UpstreamError{Message: msgCallPrimary, Err: fmt.Errorf("recording tool reply: %w", err)}
			}
			l.hooks.Emit(ctx, hooks.EventToolDispatched, l.callID, map[string]any{
				"round":      round,
				"tool":       call.Name(),
				"toolCallId": call.ID,
				"result":     result,
			})
		}
	}

	l.log.Warn().Int("maxRounds", maxRounds).Msg("round cap reached with tool calls pending")
	return l.finish(conv, maxRounds, true), nil
}

// ask sends the conversation to the primary agent. The schema is omitted
// when no tools were resolved.
func (l *loop) ask(ctx context.Context, conv *conversation.Conversation, schema []openai.Tool) (*mcpclient.CallResult, error) {
	args := chatArguments{Messages: conv.Messages()}
	if len(schema) > 0 {
		args.Tools = schema
		args.ToolChoice = toolChoiceAuto
	}

	res, err := l.primary.CallTool(ctx, l.toolName, args)
	if err != nil {
		return nil, err
	}
	if res.IsError {
		return nil, fmt.Errorf("%w: %s", errPrimaryToolError, res.Text())
	}
	return res, nil
}

func (l *loop) finish(conv *conversation.Conversation, rounds int, capped bool) *outcome {
	last, _ := conv.Last()
	return &outcome{
		final:      last,
		transcript: conv.Messages(),
		rounds:     rounds,
		capped:     capped,
	}
}

// uniqueIDs replaces ids already used earlier in the same reply so every
// tool reply can be matched to exactly one call.
func uniqueIDs(calls []domain.ToolCall) []domain.ToolCall {
	seen := make(map[string]bool, len(calls))
	for i := range calls {
		if seen[calls[i].ID] {
			calls[i].ID = toolcall.NewID()
		}
		seen[calls[i].ID] = true
	}
	return calls
}

func toolNames(calls []domain.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name()
	}
	return names
}
