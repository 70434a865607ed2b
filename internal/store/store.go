// Package store persists agent records and user-agent relations.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

// ErrInvalidAgent is returned when an agent record fails validation.
var ErrInvalidAgent = errors.New("invalid agent")

// ListFilter narrows ListAgents. A zero UserID lists every agent.
type ListFilter struct {
	UserID     int64
	PublicOnly bool
}

// Store is the agent record store.
type Store interface {
	// HasRelation reports whether the user owns or has favorited the agent.
	HasRelation(ctx context.Context, userID, agentID int64) (bool, error)
	// GetAgent returns the agent or domain.ErrAgentNotFound.
	GetAgent(ctx context.Context, id int64) (*domain.Agent, error)
	// CreateAgent inserts the agent and records ownerID as its owner.
	CreateAgent(ctx context.Context, a domain.Agent, ownerID int64) (*domain.Agent, error)
	ListAgents(ctx context.Context, f ListFilter) ([]domain.Agent, error)
	// Link records a relation. Linking an owner upgrades an existing favorite.
	Link(ctx context.Context, r domain.Relation) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open opens the store selected by cfg. An empty sqlite path falls back to
// defaultPath.
func Open(ctx context.Context, cfg config.StoreConfig, defaultPath string, log *logging.Logger) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultPath
		}
		st, err := OpenSQLite(path, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := OpenPostgres(ctx, cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// normalizeAgent trims and checks a record before insertion.
func normalizeAgent(a domain.Agent) (domain.Agent, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Description = strings.TrimSpace(a.Description)
	a.Category = strings.TrimSpace(a.Category)
	a.URL = strings.TrimSpace(a.URL)
	a.ConnectType = strings.TrimSpace(a.ConnectType)

	if a.Name == "" {
		return a, fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}
	if a.ConnectType == "" {
		a.ConnectType = domain.TransportStreamHTTP
	}
	if !domain.ValidTransport(a.ConnectType) {
		return a, fmt.Errorf("%w: connectType must be one of %s", ErrInvalidAgent, strings.Join(domain.ValidTransports, ", "))
	}
	return a, nil
}

func checkRelation(r domain.Relation) error {
	if r.UserID <= 0 || r.AgentID <= 0 {
		return fmt.Errorf("%w: userId and agentId must be positive", ErrInvalidAgent)
	}
	if r.Kind != domain.RelationOwner && r.Kind != domain.RelationFavorite {
		return fmt.Errorf("%w: unknown relation %q", ErrInvalidAgent, r.Kind)
	}
	return nil
}
