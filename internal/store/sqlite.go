package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/market-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS states (
	run_id     TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chat_turns (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_states_domain ON states(domain);
CREATE INDEX IF NOT EXISTS idx_states_updated_at ON states(updated_at);
CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveState(ctx context.Context, state *model.RunState) error {
	if state == nil || state.RunID == "" {
		return eris.New("sqlite: state has no run id")
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal state")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO states (run_id, domain, query, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   domain = excluded.domain, query = excluded.query,
		   state = excluded.state, updated_at = excluded.updated_at`,
		state.RunID, state.Domain, state.Query, string(stateJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: save state %s", state.RunID)
}

func (s *SQLiteStore) LoadState(ctx context.Context, runID string) (*model.RunState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM states WHERE run_id = ?`, runID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load state %s", runID)
	}

	var state model.RunState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal state")
	}
	return &state, nil
}

func (s *SQLiteStore) ListStates(ctx context.Context, limit, offset int) ([]model.StateRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, domain, query, created_at, updated_at FROM states
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list states")
	}
	defer rows.Close()

	var records []model.StateRecord
	for rows.Next() {
		var r model.StateRecord
		if err := rows.Scan(&r.RunID, &r.Domain, &r.Query, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan state record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list states iterate")
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, turn model.ChatTurn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), turn.SessionID, turn.Role, turn.Content, ts,
	)
	return eris.Wrap(err, "sqlite: append turn")
}

func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, content, created_at FROM chat_turns
		 WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list turns")
	}
	defer rows.Close()

	var turns []model.ChatTurn
	for rows.Next() {
		var t model.ChatTurn
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan turn")
		}
		turns = append(turns, t)
	}
	return turns, eris.Wrap(rows.Err(), "sqlite: list turns iterate")
}
