// Package dispatch executes canonical tool calls, locally or on the
// sub-agent, and always yields text for the conversation.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HuxJiang/ai-agent-platform/internal/catalog"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
)

var errInvalidArguments = errors.New("arguments are not valid JSON")

// Dispatcher runs tool calls for one agent call.
type Dispatcher struct {
	catalog *catalog.Catalog
	dialer  mcpclient.Dialer
	remote  *domain.Endpoint
	log     *logging.Logger
}

// New creates a dispatcher. remote is the sub-agent endpoint used for tools
// that have no resolved executor; it may be nil.
func New(cat *catalog.Catalog, dialer mcpclient.Dialer, remote *domain.Endpoint, log *logging.Logger) *Dispatcher {
	if cat == nil {
		cat = catalog.New()
	}
	return &Dispatcher{
		catalog: cat,
		dialer:  dialer,
		remote:  remote,
		log:     log,
	}
}

// Dispatch executes call and returns its text result. Failures are reported
// in-band as domain.ToolCallErrored, and calls with nowhere to run as
// domain.ToolCallFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, call domain.ToolCall) string {
	start := time.Now()
	exec := d.resolve(call.Name())

	l := d.log.Zerolog().With().
		Str("tool", call.Name()).
		Str("toolCallId", call.ID).
		Str("kind", exec.Kind.String()).
		Logger()

	var (
		out string
		err error
	)
	switch exec.Kind {
	case catalog.KindLocal:
		out, err = d.runLocal(ctx, exec.Local, call)
	case catalog.KindRemote:
		out, err = d.callRemote(ctx, exec.Remote, call)
	default:
		l.Warn().Msg("no executor for tool call")
		return domain.ToolCallFailed
	}

	if err != nil {
		l.Warn().Err(err).Dur("duration", time.Since(start)).Msg("tool call failed")
		return domain.ToolCallErrored
	}
	l.Debug().Int("resultLen", len(out)).Dur("duration", time.Since(start)).Msg("tool call completed")
	return out
}

// resolve picks the executor for name. Tools the catalog does not know about
// still go to the configured sub-agent.
func (d *Dispatcher) resolve(name string) catalog.Execution {
	if def, ok := d.catalog.Lookup(name); ok && def.Execution.Kind != catalog.KindNone {
		return def.Execution
	}
	if d.remote != nil {
		return catalog.Remote(*d.remote)
	}
	return catalog.Execution{}
}

func (d *Dispatcher) runLocal(ctx context.Context, fn catalog.LocalFunc, call domain.ToolCall) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("local tool panicked: %v", r)
		}
	}()
	return fn(ctx, call.Arguments())
}

func (d *Dispatcher) callRemote(ctx context.Context, ep domain.Endpoint, call domain.ToolCall) (string, error) {
	args := json.RawMessage(call.Arguments())
	if !json.Valid(args) {
		return "", errInvalidArguments
	}

	sess, err := d.dialer.Dial(ctx, ep)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	res, err := sess.CallTool(ctx, call.Name(), args)
	if err != nil {
		return "", err
	}
	if res.IsError {
		d.log.Debug().Str("tool", call.Name()).Msg("sub-agent reported a tool error")
	}
	return Flatten(res), nil
}

// Flatten renders a tool result as a single string: joined text when every
// content part is text, the content list as JSON otherwise, then structured
// content, then the raw result.
func Flatten(res *mcpclient.CallResult) string {
	if res == nil {
		return ""
	}
	if len(res.Content) > 0 {
		allText := true
		for _, p := range res.Content {
			if !p.IsText() {
				allText = false
				break
			}
		}
		if allText {
			return res.Text()
		}
		parts := make([]json.RawMessage, len(res.Content))
		for i, p := range res.Content {
			parts[i] = p.Raw
		}
		if data, err := json.Marshal(parts); err == nil {
			return string(data)
		}
	}
	if len(res.Structured) > 0 {
		var s string
		if err := json.Unmarshal(res.Structured, &s); err == nil {
			return s
		}
		return string(res.Structured)
	}
	return strings.TrimSpace(string(res.Raw))
}
