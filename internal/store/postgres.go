package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store. It is satisfied by
// pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Statement
// caching is left to pgx's per-connection cache.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used in tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS states (
	run_id     TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_turns (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_states_domain ON states(domain);
CREATE INDEX IF NOT EXISTS idx_states_updated_at ON states(updated_at);
CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveState(ctx context.Context, state *model.RunState) error {
	if state == nil || state.RunID == "" {
		return eris.New("postgres: state has no run id")
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal state")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO states (run_id, domain, query, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id) DO UPDATE SET
		   domain = EXCLUDED.domain, query = EXCLUDED.query,
		   state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		state.RunID, state.Domain, state.Query, stateJSON, now, now,
	)
	return eris.Wrapf(err, "postgres: save state %s", state.RunID)
}

func (s *PostgresStore) LoadState(ctx context.Context, runID string) (*model.RunState, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM states WHERE run_id = $1`, runID,
	).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: load state %s", runID)
	}

	var state model.RunState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal state")
	}
	return &state, nil
}

func (s *PostgresStore) ListStates(ctx context.Context, limit, offset int) ([]model.StateRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT run_id, domain, query, created_at, updated_at FROM states
		 ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list states")
	}
	defer rows.Close()

	var records []model.StateRecord
	for rows.Next() {
		var r model.StateRecord
		if err := rows.Scan(&r.RunID, &r.Domain, &r.Query, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan state record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list states iterate")
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn model.ChatTurn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_turns (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), turn.SessionID, turn.Role, turn.Content, ts,
	)
	return eris.Wrap(err, "postgres: append turn")
}

func (s *PostgresStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id, role, content, created_at FROM chat_turns
		 WHERE session_id = $1 ORDER BY created_at ASC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list turns")
	}
	defer rows.Close()

	var turns []model.ChatTurn
	for rows.Next() {
		var t model.ChatTurn
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan turn")
		}
		turns = append(turns, t)
	}
	return turns, eris.Wrap(rows.Err(), "postgres: list turns iterate")
}
