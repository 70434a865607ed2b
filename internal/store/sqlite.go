package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

// SQLiteStore is a Store backed by SQLite.
type SQLiteStore struct {
	sql *sql.DB
	log *logging.Logger
}

// OpenSQLite opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func OpenSQLite(path string, log *logging.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	db := &SQLiteStore{sql: sqlDB, log: log.Sub("store")}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Close closes the database connection.
func (db *SQLiteStore) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// SQL returns the underlying *sql.DB for direct queries.
func (db *SQLiteStore) SQL() *sql.DB {
	return db.sql
}

// Ping checks that the database is reachable.
func (db *SQLiteStore) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// HasRelation reports whether any relation row links the user to the agent.
func (db *SQLiteStore) HasRelation(ctx context.Context, userID, agentID int64) (bool, error) {
	var one int
	err := db.sql.QueryRowContext(ctx,
		"SELECT 1 FROM user_agent WHERE user_id = ? AND agent_id = ? LIMIT 1",
		userID, agentID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying relation: %w", err)
	}
	return true, nil
}

const sqliteAgentColumns = `id, name, description, category, url, connect_type, is_public, favorite_count, created_at, updated_at`

// GetAgent loads an agent by id.
func (db *SQLiteStore) GetAgent(ctx context.Context, id int64) (*domain.Agent, error) {
	row := db.sql.QueryRowContext(ctx,
		"SELECT "+sqliteAgentColumns+" FROM agent WHERE id = ?", id,
	)
	a, err := scanSQLiteAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %d: %w", id, domain.ErrAgentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent %d: %w", id, err)
	}
	return a, nil
}

// CreateAgent inserts the agent and its owner relation in one transaction.
func (db *SQLiteStore) CreateAgent(ctx context.Context, a domain.Agent, ownerID int64) (*domain.Agent, error) {
	a, err := normalizeAgent(a)
	if err != nil {
		return nil, err
	}
	if ownerID <= 0 {
		return nil, fmt.Errorf("%w: owner must be a positive user id", ErrInvalidAgent)
	}

	now := time.Now().UTC().Format(time.DateTime)
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO agent (name, description, category, url, connect_type, is_public, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Description, a.Category, a.URL, a.ConnectType, a.IsPublic, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading agent id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_agent (user_id, agent_id, is_owner) VALUES (?, ?, 1)
		 ON CONFLICT (user_id, agent_id) DO UPDATE SET is_owner = 1`,
		ownerID, id,
	); err != nil {
		return nil, fmt.Errorf("recording owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	db.log.Info().Int64("agentId", id).Int64("ownerId", ownerID).Str("name", a.Name).Msg("agent created")
	return db.GetAgent(ctx, id)
}

// ListAgents returns agents ordered by id. With a UserID only agents related
// to that user are returned, owned ones first.
func (db *SQLiteStore) ListAgents(ctx context.Context, f ListFilter) ([]domain.Agent, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if f.UserID > 0 {
		rows, err = db.sql.QueryContext(ctx,
			`SELECT a.id, a.name, a.description, a.category, a.url, a.connect_type, a.is_public, a.favorite_count, a.created_at, a.updated_at
			 FROM user_agent ua INNER JOIN agent a ON a.id = ua.agent_id
			 WHERE ua.user_id = ? AND (? = 0 OR a.is_public = 1)
			 ORDER BY ua.is_owner DESC, a.id`,
			f.UserID, f.PublicOnly,
		)
	} else {
		rows, err = db.sql.QueryContext(ctx,
			"SELECT "+sqliteAgentColumns+" FROM agent WHERE (? = 0 OR is_public = 1) ORDER BY id",
			f.PublicOnly,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanSQLiteAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// Link records a relation. A new favorite bumps the agent's favorite count.
func (db *SQLiteStore) Link(ctx context.Context, r domain.Relation) error {
	if err := checkRelation(r); err != nil {
		return err
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM agent WHERE id = ?", r.AgentID).Scan(&exists); err != nil {
		return fmt.Errorf("checking agent: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("agent %d: %w", r.AgentID, domain.ErrAgentNotFound)
	}

	if r.Kind == domain.RelationOwner {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_agent (user_id, agent_id, is_owner) VALUES (?, ?, 1)
			 ON CONFLICT (user_id, agent_id) DO UPDATE SET is_owner = 1`,
			r.UserID, r.AgentID,
		)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			"INSERT INTO user_agent (user_id, agent_id, is_owner) VALUES (?, ?, 0) ON CONFLICT DO NOTHING",
			r.UserID, r.AgentID,
		)
		if err == nil {
			if n, _ := res.RowsAffected(); n > 0 {
				_, err = tx.ExecContext(ctx,
					"UPDATE agent SET favorite_count = favorite_count + 1 WHERE id = ?", r.AgentID,
				)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("linking user %d to agent %d: %w", r.UserID, r.AgentID, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAgent(row rowScanner) (*domain.Agent, error) {
	var (
		a                    domain.Agent
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.Category, &a.URL, &a.ConnectType,
		&a.IsPublic, &a.FavoriteCount, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	a.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return &a, nil
}

// migrate runs all pending migrations.
func (db *SQLiteStore) migrate() error {
	if _, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range sqliteMigrations {
		applied, err := db.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *SQLiteStore) isMigrationApplied(version int) (bool, error) {
	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}
