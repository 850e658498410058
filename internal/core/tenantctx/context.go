// Package tenantctx binds the per-request tenant, actor, and correlation
// ID onto a context.Context. Every engine command requires one of
// these (spec §6 "Command inputs"): tenantId is enforced as the
// partition key on every read/write, actorId is required, correlationId
// is optional and drives idempotency.
//
// Unlike the teacher's internal/core/tenant (database-per-tenant, one
// pgxpool.Pool per tenant), this engine is a single shared store: the
// tenant is a partition key carried on every query, not a connection
// selector.
package tenantctx

import (
	"context"
	"errors"

	"invengine/internal/core/id"
)

// Context carries the tenant/actor/correlation triple for one command.
type Context struct {
	TenantID      id.TenantID
	ActorID       id.ActorID
	CorrelationID string // optional; empty means "no idempotency requested"
}

// Validate enforces spec §4.1 "fail fast on empty tenant or actor".
func (c Context) Validate() error {
	if c.TenantID.IsZero() {
		return ErrMissingTenant
	}
	if c.ActorID.IsZero() {
		return ErrMissingActor
	}
	return nil
}

var (
	ErrMissingTenant = errors.New("tenant is required")
	ErrMissingActor  = errors.New("actor is required")
	ErrNoContext     = errors.New("tenant/actor context not found")
)

type ctxKey struct{}

// With stores Context on ctx.
func With(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// From retrieves Context from ctx.
func From(ctx context.Context) (Context, error) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	if !ok {
		return Context{}, ErrNoContext
	}
	return tc, nil
}

// MustFrom retrieves Context or panics; use only where a missing
// context is a programming error (inside the engine, never at a
// storage-adapter boundary that might be hit without one).
func MustFrom(ctx context.Context) Context {
	tc, err := From(ctx)
	if err != nil {
		panic("tenantctx: " + err.Error())
	}
	return tc
}

// RequireCrossTenantMatch fails the read/write unless the supplied
// owner tenant matches the context's tenant (spec §6 "cross-tenant
// reads are rejected").
func RequireCrossTenantMatch(ctx context.Context, owner id.TenantID) error {
	tc, err := From(ctx)
	if err != nil {
		return err
	}
	if tc.TenantID.String() != owner.String() {
		return ErrCrossTenantAccess
	}
	return nil
}

var ErrCrossTenantAccess = errors.New("cross-tenant access denied")
