package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"invengine/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent command.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyRecord stores the result of a command keyed by a caller-
// supplied correlationId (spec §7 "Idempotency"). Scoped per tenant
// because correlationId is only required to be unique within a tenant.
type IdempotencyRecord struct {
	CorrelationID string            `db:"correlation_id"`
	TenantID      string            `db:"tenant_id"`
	ActorID       string            `db:"actor_id"`
	Operation     string            `db:"operation"`
	Status        IdempotencyStatus `db:"status"`
	RequestHash   string            `db:"request_hash"`
	Result        []byte            `db:"result"` // JSON-encoded command result
	ErrorCode     string            `db:"error_code"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
	ExpiresAt     time.Time         `db:"expires_at"`
}

// IdempotencyReplay is the cached outcome of a previously completed command.
type IdempotencyReplay struct {
	Succeeded bool
	ErrorCode string
	Result    []byte
}

// IdempotencyStore persists (tenant, correlationId) -> command outcome so
// that replaying the same command with the same correlationId returns the
// prior result unchanged without re-executing it (spec §7, §8 "Commanding
// the same operation twice with the same correlationId yields identical
// results and side effects exactly once").
type IdempotencyStore struct {
	pool      *pgxpool.Pool
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(pool *Pool, txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		pool:      pool.Pool,
		txManager: txManager,
		ttl:       ttl,
	}
}

// NewIdempotencyStoreFromRawPool creates a new idempotency store from a raw pgxpool.Pool.
func NewIdempotencyStoreFromRawPool(pool *pgxpool.Pool, txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		pool:      pool,
		txManager: txManager,
		ttl:       ttl,
	}
}

// AcquireKey attempts to claim (tenantID, correlationID) for one execution
// of operation. Returns:
//   - (nil, nil) if the key was claimed and the caller should proceed
//   - (replay, nil) if the command already ran to completion (or failure)
//   - (nil, err) if the key is actively held by a concurrent request, or
//     the same key was reused for a different operation/request body
func (s *IdempotencyStore) AcquireKey(ctx context.Context, tenantID, correlationID, actorID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	var record IdempotencyRecord
	var inserted bool
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO command_idempotency (tenant_id, correlation_id, actor_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (tenant_id, correlation_id) DO UPDATE SET
			updated_at = $7,
			expires_at = GREATEST(command_idempotency.expires_at, $8)
		RETURNING tenant_id, correlation_id, actor_id, operation, status, request_hash, result, error_code, created_at, updated_at, expires_at, (xmax = 0) AS inserted
	`, tenantID, correlationID, actorID, operation, IdempotencyStatusPending, requestHash, now, expiresAt).Scan(
		&record.TenantID, &record.CorrelationID, &record.ActorID, &record.Operation, &record.Status,
		&record.RequestHash, &record.Result, &record.ErrorCode,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	// Key was just created by us (the upsert inserted rather than updated).
	if inserted {
		return nil, nil
	}

	// Key exists: protect against reuse for a different command.
	if record.ActorID != actorID || record.Operation != operation || record.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(correlationID).
			WithDetail("stored_actor_id", record.ActorID).
			WithDetail("request_actor_id", actorID).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess:
		return &IdempotencyReplay{Succeeded: true, Result: record.Result}, nil

	case IdempotencyStatusPending:
		// Reclaim a key stuck pending for over a minute (likely a crashed request).
		if time.Since(record.UpdatedAt) > time.Minute {
			_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
				UPDATE command_idempotency
				SET status = $1, updated_at = $2
				WHERE tenant_id = $3 AND correlation_id = $4 AND status = $1
			`, IdempotencyStatusPending, now, tenantID, correlationID)
			if err != nil {
				return nil, fmt.Errorf("reclaim stale key: %w", err)
			}
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(correlationID)

	case IdempotencyStatusFailed:
		return &IdempotencyReplay{Succeeded: false, ErrorCode: record.ErrorCode, Result: record.Result}, nil
	}

	return nil, nil
}

// CompleteKey marks a correlationId as succeeded with the command's result payload.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, tenantID, correlationID string, result any) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE command_idempotency
		SET status = $1, result = $2, updated_at = $3
		WHERE tenant_id = $4 AND correlation_id = $5
	`, IdempotencyStatusSuccess, resultBytes, time.Now().UTC(), tenantID, correlationID)

	return err
}

// FailKey marks a correlationId as failed with the originating error code,
// so a retry with the same correlationId replays the same failure rather
// than re-attempting side effects.
func (s *IdempotencyStore) FailKey(ctx context.Context, tenantID, correlationID, errorCode string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE command_idempotency
		SET status = $1, error_code = $2, updated_at = $3
		WHERE tenant_id = $4 AND correlation_id = $5
	`, IdempotencyStatusFailed, errorCode, time.Now().UTC(), tenantID, correlationID)

	return err
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM command_idempotency WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
