// Package catalog turns the tools a sub-agent declares into the
// function-calling schema handed to the primary agent, and resolves tool
// names back to how each tool executes.
package catalog

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
)

// DefaultParameters is the schema used for tools that declare none.
var DefaultParameters = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":true}`)

// Kind tags how a tool definition executes.
type Kind int

const (
	// KindNone means no executor was resolved; dispatch reports failure.
	KindNone Kind = iota
	// KindLocal runs an in-process function.
	KindLocal
	// KindRemote calls the tool on a sub-agent endpoint.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "none"
	}
}

// LocalFunc executes a tool in process. arguments is the serialized argument
// payload exactly as the primary agent produced it.
type LocalFunc func(ctx context.Context, arguments string) (string, error)

// Execution is resolved once per definition.
type Execution struct {
	Kind   Kind
	Local  LocalFunc
	Remote domain.Endpoint
}

// Local returns an in-process execution.
func Local(fn LocalFunc) Execution {
	return Execution{Kind: KindLocal, Local: fn}
}

// Remote returns an execution that calls the tool on ep.
func Remote(ep domain.Endpoint) Execution {
	return Execution{Kind: KindRemote, Remote: ep}
}

// Definition is a tool offered to the primary agent.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Execution   Execution
}

// Catalog holds the tools for one agent call. It is built per call and is not
// safe for concurrent mutation.
type Catalog struct {
	defs   []Definition
	byName map[string]Definition
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{byName: make(map[string]Definition)}
}

// Resolve builds a catalog from declared tools. When remote is non-nil every
// tool executes on that endpoint. Blank names are skipped.
func Resolve(descs []mcpclient.ToolDescriptor, remote *domain.Endpoint) *Catalog {
	c := New()
	for _, d := range descs {
		def := Definition{
			Name:        strings.TrimSpace(d.Name),
			Description: d.Description,
			Parameters:  d.InputSchema,
		}
		if remote != nil {
			def.Execution = Remote(*remote)
		}
		c.Register(def)
	}
	return c
}

// Register adds a definition. A later definition with the same name replaces
// the earlier one in Lookup; the schema keeps both in order.
func (c *Catalog) Register(def Definition) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return
	}
	if len(def.Parameters) == 0 {
		def.Parameters = DefaultParameters
	}
	c.defs = append(c.defs, def)
	c.byName[def.Name] = def
}

// Lookup returns the definition registered last under name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// Len returns the number of schema entries.
func (c *Catalog) Len() int { return len(c.defs) }

// Definitions returns the schema entries in registration order.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Names returns the tool names in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// Schema returns the function-calling schema for the primary agent.
func (c *Catalog) Schema() []openai.Tool {
	tools := make([]openai.Tool, 0, len(c.defs))
	for _, d := range c.defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

// Discover opens a session to the sub-agent, lists its tools and closes the
// session. Any failure yields an empty catalog.
func Discover(ctx context.Context, dialer mcpclient.Dialer, ep *domain.Endpoint, log *logging.Logger) *Catalog {
	if ep == nil {
		return New()
	}

	sess, err := dialer.Dial(ctx, *ep)
	if err != nil {
		log.Warn().Err(err).Str("url", ep.URL).Msg("sub-agent unreachable, continuing without tools")
		return New()
	}
	defer sess.Close()

	descs, err := sess.ListTools(ctx)
	if err != nil {
		log.Warn().Err(err).Str("url", ep.URL).Msg("listing sub-agent tools failed, continuing without tools")
		return New()
	}

	c := Resolve(descs, ep)
	log.Debug().Str("url", ep.URL).Strs("tools", c.Names()).Msg("sub-agent tools resolved")
	return c
}
