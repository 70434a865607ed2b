package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

// PostgresStore is a Store backed by Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// OpenPostgres connects to Postgres and runs migrations.
func OpenPostgres(ctx context.Context, dsn string, log *logging.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	db := &PostgresStore{pool: pool, log: log.Sub("store")}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("host", pool.Config().ConnConfig.Host).Msg("database opened")
	return db, nil
}

// Close closes the connection pool.
func (db *PostgresStore) Close() error {
	db.log.Info().Msg("closing database")
	db.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (db *PostgresStore) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// HasRelation reports whether any relation row links the user to the agent.
func (db *PostgresStore) HasRelation(ctx context.Context, userID, agentID int64) (bool, error) {
	var one int
	err := db.pool.QueryRow(ctx,
		"SELECT 1 FROM user_agent WHERE user_id = $1 AND agent_id = $2 LIMIT 1",
		userID, agentID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying relation: %w", err)
	}
	return true, nil
}

const pgAgentColumns = `a.id, a.name, a.description, a.category, a.url, a.connect_type, a.is_public, a.favorite_count, a.created_at, a.updated_at`

// GetAgent loads an agent by id.
func (db *PostgresStore) GetAgent(ctx context.Context, id int64) (*domain.Agent, error) {
	row := db.pool.QueryRow(ctx, "SELECT "+pgAgentColumns+" FROM agent a WHERE a.id = $1", id)
	a, err := scanPgAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %d: %w", id, domain.ErrAgentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent %d: %w", id, err)
	}
	return a, nil
}

// CreateAgent inserts the agent and its owner relation in one transaction.
func (db *PostgresStore) CreateAgent(ctx context.Context, a domain.Agent, ownerID int64) (*domain.Agent, error) {
	a, err := normalizeAgent(a)
	if err != nil {
		return nil, err
	}
	if ownerID <= 0 {
		return nil, fmt.Errorf("%w: owner must be a positive user id", ErrInvalidAgent)
	}

	var id int64
	err = pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO agent (name, description, category, url, connect_type, is_public)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			a.Name, a.Description, a.Category, a.URL, a.ConnectType, a.IsPublic,
		).Scan(&id); err != nil {
			return fmt.Errorf("inserting agent: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_agent (user_id, agent_id, is_owner) VALUES ($1, $2, TRUE)
			 ON CONFLICT (user_id, agent_id) DO UPDATE SET is_owner = TRUE`,
			ownerID, id,
		); err != nil {
			return fmt.Errorf("recording owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	db.log.Info().Int64("agentId", id).Int64("ownerId", ownerID).Str("name", a.Name).Msg("agent created")
	return db.GetAgent(ctx, id)
}

// ListAgents returns agents ordered by id. With a UserID only agents related
// to that user are returned, owned ones first.
func (db *PostgresStore) ListAgents(ctx context.Context, f ListFilter) ([]domain.Agent, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if f.UserID > 0 {
		rows, err = db.pool.Query(ctx,
			`SELECT `+pgAgentColumns+`
			 FROM user_agent ua INNER JOIN agent a ON a.id = ua.agent_id
			 WHERE ua.user_id = $1 AND (NOT $2 OR a.is_public)
			 ORDER BY ua.is_owner DESC, a.id`,
			f.UserID, f.PublicOnly,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			"SELECT "+pgAgentColumns+" FROM agent a WHERE (NOT $1 OR a.is_public) ORDER BY a.id",
			f.PublicOnly,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanPgAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// Link records a relation. A new favorite bumps the agent's favorite count.
func (db *PostgresStore) Link(ctx context.Context, r domain.Relation) error {
	if err := checkRelation(r); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM agent WHERE id = $1)", r.AgentID).Scan(&exists); err != nil {
			return fmt.Errorf("checking agent: %w", err)
		}
		if !exists {
			return fmt.Errorf("agent %d: %w", r.AgentID, domain.ErrAgentNotFound)
		}

		if r.Kind == domain.RelationOwner {
			_, err := tx.Exec(ctx,
				`INSERT INTO user_agent (user_id, agent_id, is_owner) VALUES ($1, $2, TRUE)
				 ON CONFLICT (user_id, agent_id) DO UPDATE SET is_owner = TRUE`,
				r.UserID, r.AgentID,
			)
			return err
		}

		tag, err := tx.Exec(ctx,
			"INSERT INTO user_agent (user_id, agent_id, is_owner) VALUES ($1, $2, FALSE) ON CONFLICT DO NOTHING",
			r.UserID, r.AgentID,
		)
		if err != nil {
			return fmt.Errorf("linking user %d to agent %d: %w", r.UserID, r.AgentID, err)
		}
		if tag.RowsAffected() > 0 {
			_, err = tx.Exec(ctx, "UPDATE agent SET favorite_count = favorite_count + 1 WHERE id = $1", r.AgentID)
		}
		return err
	})
}

func scanPgAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	if err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.Category, &a.URL, &a.ConnectType,
		&a.IsPublic, &a.FavoriteCount, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// migrate runs all pending migrations.
func (db *PostgresStore) migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range postgresMigrations {
		var applied bool
		if err := db.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
