package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// migration is a single versioned schema change. Migrations are applied in
// order and recorded in schema_versions so re-opening an existing cache is a
// no-op.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	// Migration 1: agent transcripts + session handles.
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'complete',
    error_note TEXT NOT NULL DEFAULT '',
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id, id);

CREATE TABLE IF NOT EXISTS agent_sessions (
    agent_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}

// sqliteCache is the SQLite-backed implementation of Cache.
type sqliteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory cache.
func NewSQLiteCache(path string) (Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL mode for better concurrency between the UI and the sink.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	c := &sqliteCache{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

// migrate applies any unapplied migrations in order.
func (c *sqliteCache) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := c.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := c.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (c *sqliteCache) Close() error { return c.db.Close() }

func (c *sqliteCache) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *sqliteCache) AppendTurn(ctx context.Context, agentID, sessionID string, user, assistant *MessageRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range []*MessageRecord{user, assistant} {
		if err := insertMessage(ctx, tx, agentID, sessionID, rec); err != nil {
			return err
		}
	}

	if sessionID != "" {
		_, err = tx.ExecContext(ctx, `
        INSERT INTO agent_sessions(agent_id, session_id, updated_at)
        VALUES(?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(agent_id) DO UPDATE SET
            session_id = excluded.session_id,
            updated_at = CURRENT_TIMESTAMP`,
			agentID, sessionID)
		if err != nil {
			return fmt.Errorf("record session handle: %w", err)
		}
	}

	return tx.Commit()
}

func (c *sqliteCache) ReplaceTranscript(ctx context.Context, agentID, sessionID string, msgs []*MessageRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	for _, rec := range msgs {
		if err := insertMessage(ctx, tx, agentID, sessionID, rec); err != nil {
			return err
		}
	}

	if sessionID != "" {
		_, err = tx.ExecContext(ctx, `
        INSERT INTO agent_sessions(agent_id, session_id, updated_at)
        VALUES(?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(agent_id) DO UPDATE SET
            session_id = excluded.session_id,
            updated_at = CURRENT_TIMESTAMP`,
			agentID, sessionID)
		if err != nil {
			return fmt.Errorf("record session handle: %w", err)
		}
	}

	return tx.Commit()
}

func insertMessage(ctx context.Context, tx *sql.Tx, agentID, sessionID string, rec *MessageRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
        INSERT INTO messages(agent_id, session_id, role, content, status, error_note, input_tokens, output_tokens, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, sessionID, rec.Role, rec.Content, rec.Status, rec.ErrorNote,
		rec.InputTokens, rec.OutputTokens, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (c *sqliteCache) RecentMessages(ctx context.Context, agentID string, limit int) ([]*MessageRecord, error) {
	query := `
        SELECT id, agent_id, session_id, role, content, status, error_note, input_tokens, output_tokens, created_at
        FROM messages WHERE agent_id = ? ORDER BY id ASC`
	args := []any{agentID}
	if limit > 0 {
		// Keep the newest rows but return them oldest first.
		query = `
        SELECT id, agent_id, session_id, role, content, status, error_note, input_tokens, output_tokens, created_at
        FROM (
            SELECT * FROM messages WHERE agent_id = ? ORDER BY id DESC LIMIT ?
        ) ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MessageRecord
	for rows.Next() {
		rec := &MessageRecord{}
		var createdAt string
		err := rows.Scan(&rec.ID, &rec.AgentID, &rec.SessionID, &rec.Role, &rec.Content,
			&rec.Status, &rec.ErrorNote, &rec.InputTokens, &rec.OutputTokens, &createdAt)
		if err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (c *sqliteCache) SessionHandle(ctx context.Context, agentID string) (string, error) {
	var sessionID string
	err := c.db.QueryRowContext(ctx,
		`SELECT session_id FROM agent_sessions WHERE agent_id = ?`, agentID).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

func (c *sqliteCache) ClearAgent(ctx context.Context, agentID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_sessions WHERE agent_id = ?`, agentID); err != nil {
		return err
	}
	return tx.Commit()
}

// parseTime handles the formats SQLite hands back depending on how the value
// was written.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
