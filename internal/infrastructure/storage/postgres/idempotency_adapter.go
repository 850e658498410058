package postgres

import (
	"context"

	"invengine/internal/engine"
)

// EngineIdempotencyStore adapts IdempotencyStore to engine.IdempotencyStore,
// translating between the package-local IdempotencyReplay and the
// engine package's transport-agnostic Replay so engine never imports
// the Postgres adapter directly.
type EngineIdempotencyStore struct {
	store *IdempotencyStore
}

// NewEngineIdempotencyStore wraps store for use as an engine.Engine
// dependency.
func NewEngineIdempotencyStore(store *IdempotencyStore) *EngineIdempotencyStore {
	return &EngineIdempotencyStore{store: store}
}

func (a *EngineIdempotencyStore) AcquireKey(ctx context.Context, tenantID, correlationID, actorID, operation, requestHash string) (*engine.Replay, error) {
	replay, err := a.store.AcquireKey(ctx, tenantID, correlationID, actorID, operation, requestHash)
	if err != nil || replay == nil {
		return nil, err
	}
	return &engine.Replay{Succeeded: replay.Succeeded, ErrorCode: replay.ErrorCode, Result: replay.Result}, nil
}

func (a *EngineIdempotencyStore) CompleteKey(ctx context.Context, tenantID, correlationID string, result any) error {
	return a.store.CompleteKey(ctx, tenantID, correlationID, result)
}

func (a *EngineIdempotencyStore) FailKey(ctx context.Context, tenantID, correlationID, errorCode string) error {
	return a.store.FailKey(ctx, tenantID, correlationID, errorCode)
}

var _ engine.IdempotencyStore = (*EngineIdempotencyStore)(nil)
