package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// sqliteMigrations is the ordered list of SQLite schema migrations.
var sqliteMigrations = []migration{
	{
		Version: 1,
		Name:    "create agents and user relations",
		SQL: `
			CREATE TABLE agent (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				name            TEXT NOT NULL,
				description     TEXT NOT NULL DEFAULT '',
				category        TEXT NOT NULL DEFAULT '',
				url             TEXT NOT NULL DEFAULT '',
				connect_type    TEXT NOT NULL DEFAULT 'stream-http',
				is_public       INTEGER NOT NULL DEFAULT 0,
				favorite_count  INTEGER NOT NULL DEFAULT 0,
				created_at      TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_agent_public ON agent (is_public);

			CREATE TABLE user_agent (
				user_id     INTEGER NOT NULL,
				agent_id    INTEGER NOT NULL REFERENCES agent(id) ON DELETE CASCADE,
				is_owner    INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (user_id, agent_id)
			);

			CREATE INDEX idx_user_agent_agent ON user_agent (agent_id);
		`,
	},
}

// postgresMigrations mirrors sqliteMigrations for Postgres.
var postgresMigrations = []migration{
	{
		Version: 1,
		Name:    "create agents and user relations",
		SQL: `
			CREATE TABLE agent (
				id              BIGSERIAL PRIMARY KEY,
				name            TEXT NOT NULL,
				description     TEXT NOT NULL DEFAULT '',
				category        TEXT NOT NULL DEFAULT '',
				url             TEXT NOT NULL DEFAULT '',
				connect_type    TEXT NOT NULL DEFAULT 'stream-http',
				is_public       BOOLEAN NOT NULL DEFAULT FALSE,
				favorite_count  BIGINT NOT NULL DEFAULT 0,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE INDEX idx_agent_public ON agent (is_public);

			CREATE TABLE user_agent (
				user_id     BIGINT NOT NULL,
				agent_id    BIGINT NOT NULL REFERENCES agent(id) ON DELETE CASCADE,
				is_owner    BOOLEAN NOT NULL DEFAULT FALSE,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (user_id, agent_id)
			);

			CREATE INDEX idx_user_agent_agent ON user_agent (agent_id);
		`,
	},
}
