package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_SaveState_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	state, err := model.NewRunState("Technology", "AI regulation", "")
	require.NoError(t, err)

	mock.ExpectExec(`ON CONFLICT \(run_id\) DO UPDATE`).
		WithArgs(state.RunID, "Technology", "AI regulation", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveState(context.Background(), state))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveState_RejectsEmptyID(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	err := s.SaveState(context.Background(), &model.RunState{})
	assert.Error(t, err)
}

func TestPostgresStore_LoadState_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state FROM states WHERE run_id = \$1`).
		WithArgs("missing-run").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LoadState(context.Background(), "missing-run")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadState_RoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	stateJSON := []byte(`{"run_id":"r-1","domain":"Retail","query":"grocery delivery","collected_documents":[],"financial_items":[],"trends":[],"opportunities":[],"recommendations":[],"chart_refs":[]}`)
	mock.ExpectQuery(`SELECT state FROM states WHERE run_id = \$1`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(stateJSON))

	got, err := s.LoadState(context.Background(), "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Retail", got.Domain)
	assert.Equal(t, "grocery delivery", got.Query)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendTurn(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO chat_turns`).
		WithArgs(pgxmock.AnyArg(), "sess-1", model.RoleUser, "what changed this week", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendTurn(context.Background(), model.ChatTurn{
		SessionID: "sess-1",
		Role:      model.RoleUser,
		Content:   "what changed this week",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
