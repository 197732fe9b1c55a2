// Package store persists run states and chat history.
package store

import (
	"context"

	"github.com/sells-group/market-intel/internal/model"
)

// Store defines the persistence interface for the intelligence pipeline.
// SaveState is an upsert keyed by run ID; the pipeline calls it after every
// stage, so a crashed run leaves its last completed stage behind.
type Store interface {
	SaveState(ctx context.Context, state *model.RunState) error
	LoadState(ctx context.Context, runID string) (*model.RunState, error)
	ListStates(ctx context.Context, limit, offset int) ([]model.StateRecord, error)

	AppendTurn(ctx context.Context, turn model.ChatTurn) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]model.ChatTurn, error)

	Migrate(ctx context.Context) error
	Close() error
}
