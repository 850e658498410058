// Package ledger implements the movement ledger and inventory projection
// (spec §4.1): opening balance, purchase, sale, refund, adjustment,
// write-off, and transfer, each appending an immutable StockMovement and
// mutating the (tenant, variant, warehouse) projection atomically.
// Grounded on the teacher's registers/stock service
// (internal/domain/registers/stock/service.go): a thin Service wrapping
// a Repository interface, generalized from the teacher's accounting
// registers (receipt/expense against a recorder document) to the named
// stock operations spec.md requires.
package ledger

import (
	"context"
	"fmt"
	"time"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/lock"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
	"invengine/pkg/logger"
)

// Input is the common argument shape for every stock-mutating operation
// (spec §4.1 "Each stock-mutating operation takes inputs...").
type Input struct {
	VariantID       id.VariantID
	WarehouseID     id.WarehouseID
	Quantity        types.Quantity
	Reason          string
	ReferenceNumber string
	Metadata        entity.Metadata
}

// TransferInput carries both legs of a warehouse transfer.
type TransferInput struct {
	VariantID         id.VariantID
	SourceWarehouseID id.WarehouseID
	DestWarehouseID   id.WarehouseID
	Quantity          types.Quantity
	Reason            string
	ReferenceNumber   string
}

// Result is returned by every operation: the mutated item and the
// movement(s) appended by this call.
type Result struct {
	Item      entity.InventoryItem
	Movements []entity.StockMovement
}

// EventSink receives notification-worthy events produced by a committed
// operation, matching spec §4.5's "events are enqueued inside the lock
// and published after release" discipline: Service calls sink methods
// while still holding the per-key lock, and the sink itself must not
// block (its job is only to enqueue).
type EventSink interface {
	StockLevelChanged(ctx context.Context, item entity.InventoryItem, lastMovement entity.StockMovement)
}

// AlertEvaluator evaluates whether a committed Adjustment movement is
// unusual (spec §4.5 "UnusualAdjustment"). Kept as a narrow interface,
// matching EventSink's pattern, so ledger does not import the alert
// package's rule engine directly; *alert.Detector satisfies this by
// structural typing.
type AlertEvaluator interface {
	EvaluateAdjustment(ctx context.Context, movement entity.StockMovement, recentAverageMagnitude types.Quantity) (entity.Alert, bool, error)
}

// AlertSink receives an alert raised inline by a committing operation,
// as opposed to one found by the periodic alert.Scanner.
type AlertSink interface {
	AlertRaised(ctx context.Context, alert entity.Alert)
}

// Option customizes a Service at construction.
type Option func(*Service)

// WithAdjustmentAlerts wires inline UnusualAdjustment detection into
// Adjustment's commit path (spec §4.5 "after any successful ...
// operation, the engine emits ... derived alert events if the
// post-state crosses a threshold").
func WithAdjustmentAlerts(evaluator AlertEvaluator, sink AlertSink) Option {
	return func(s *Service) {
		s.alertEvaluator = evaluator
		s.alertSink = sink
	}
}

// Service implements the named stock operations over a Repository.
type Service struct {
	repo   Repository
	locks  *lock.Pool
	events EventSink
	now    func() time.Time

	alertEvaluator AlertEvaluator
	alertSink      AlertSink
}

// NewService constructs a ledger Service. now defaults to time.Now when nil.
func NewService(repo Repository, locks *lock.Pool, events EventSink, opts ...Option) *Service {
	s := &Service{repo: repo, locks: locks, events: events, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func itemKey(tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) lock.Key {
	return lock.Key(tenant.String() + ":" + variant.String() + ":" + warehouse.String())
}

// OpeningBalance records the sole allowed opening movement for an item
// that has never had any movement (spec §4.1 row "OpeningBalance").
func (s *Service) OpeningBalance(ctx context.Context, in Input) (Result, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := tc.Validate(); err != nil {
		return Result{}, err
	}
	if in.Quantity.IsNegative() {
		return Result{}, apperror.NewInvalidQuantity("opening balance quantity must be >= 0")
	}

	release := s.locks.Acquire(itemKey(tc.TenantID, in.VariantID, in.WarehouseID))
	defer release()

	item, existed, err := s.repo.GetOrInitItem(ctx, tc.TenantID, in.VariantID, in.WarehouseID)
	if err != nil {
		return Result{}, err
	}
	if existed {
		hasMovement, err := s.repo.HasAnyMovement(ctx, item.ID)
		if err != nil {
			return Result{}, err
		}
		if hasMovement {
			return Result{}, apperror.NewOpeningBalanceExists(item.ID.String())
		}
	}

	movement := s.buildMovement(tc, item, entity.MovementOpeningBalance, in.Quantity, in)
	item.TotalStock = in.Quantity
	movement.RunningBalance = item.TotalStock
	item.UpdatedAtUTC = movement.TimestampUTC

	if err := s.commit(ctx, &item, []entity.StockMovement{movement}); err != nil {
		return Result{}, err
	}
	s.notify(ctx, item, movement)
	return Result{Item: item, Movements: []entity.StockMovement{movement}}, nil
}

// Purchase records an inbound Purchase movement (spec §4.1 row "Purchase").
func (s *Service) Purchase(ctx context.Context, in Input) (Result, error) {
	return s.mutate(ctx, in, entity.MovementPurchase, func(item *entity.InventoryItem, q types.Quantity) error {
		item.TotalStock = item.TotalStock.Add(q)
		return nil
	})
}

// Sale records an outbound Sale movement, failing with INSUFFICIENT_STOCK
// when negative stock is disallowed and available stock is short (spec
// §4.1 row "Sale").
func (s *Service) Sale(ctx context.Context, in Input) (Result, error) {
	return s.mutate(ctx, in, entity.MovementSale, func(item *entity.InventoryItem, q types.Quantity) error {
		if !item.AllowNegativeStock && !item.CanReduceBy(q) {
			return apperror.NewInsufficientStock(item.VariantID.String(), q.String(), item.Available().String())
		}
		item.TotalStock = item.TotalStock.Sub(q)
		return nil
	})
}

// Refund records an inbound Refund movement, requiring a non-empty
// originalSaleReference and enforcing that cumulative refunds against
// that reference never exceed the original sale quantity (spec §4.1 row
// "Refund"; Design Note §9 open question (a)).
func (s *Service) Refund(ctx context.Context, in Input, originalSaleReference string) (Result, error) {
	if originalSaleReference == "" {
		return Result{}, apperror.NewValidation("refund requires a non-empty original sale reference")
	}
	if in.Metadata == nil {
		in.Metadata = entity.Metadata{}
	}
	for k, v := range entity.RefundMetadata(originalSaleReference) {
		in.Metadata[k] = v
	}

	tc, err := tenantctx.From(ctx)
	if err != nil {
		return Result{}, err
	}

	return s.mutate(ctx, in, entity.MovementRefund, func(item *entity.InventoryItem, q types.Quantity) error {
		saleQty, refundedQty, err := s.repo.SaleAndRefundTotals(ctx, tc.TenantID, item.VariantID, item.WarehouseID, originalSaleReference)
		if err != nil {
			return err
		}
		if refundedQty.Add(q).GreaterThan(saleQty) {
			return apperror.NewRefundExceedsSale(originalSaleReference)
		}
		item.TotalStock = item.TotalStock.Add(q)
		return nil
	})
}

// Adjustment records a signed Adjustment movement; q must be nonzero
// (spec §4.1 row "Adjustment"). When an AlertEvaluator is configured
// (WithAdjustmentAlerts), a committed adjustment is also checked
// against the item's recent adjustment history and, if unusual,
// raised inline rather than waiting for the periodic alert.Scanner.
func (s *Service) Adjustment(ctx context.Context, in Input) (Result, error) {
	if in.Quantity.IsZero() {
		return Result{}, apperror.NewInvalidQuantity("adjustment quantity must not be zero")
	}
	result, err := s.mutateSigned(ctx, in, entity.MovementAdjustment, func(item *entity.InventoryItem, q types.Quantity) error {
		newTotal := item.TotalStock.Add(q)
		if !item.AllowNegativeStock && newTotal.IsNegative() {
			return apperror.NewNegativeStockNotAllowed(item.ID.String())
		}
		item.TotalStock = newTotal
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.evaluateAdjustmentAlert(ctx, result.Movements[0])
	return result, nil
}

func (s *Service) evaluateAdjustmentAlert(ctx context.Context, movement entity.StockMovement) {
	if s.alertEvaluator == nil || s.alertSink == nil {
		return
	}
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return
	}
	avg, err := s.repo.RecentAdjustmentMagnitude(ctx, tc.TenantID, movement.VariantID, movement.WarehouseID)
	if err != nil {
		logger.Warn(ctx, "adjustment alert: recent magnitude lookup failed", "error", err)
		return
	}
	alert, triggered, err := s.alertEvaluator.EvaluateAdjustment(ctx, movement, avg)
	if err != nil {
		logger.Warn(ctx, "adjustment alert: evaluation failed", "error", err)
		return
	}
	if !triggered {
		return
	}
	s.alertSink.AlertRaised(ctx, alert)
}

// WriteOff records an outbound WriteOff movement (spec §4.1 row "WriteOff").
func (s *Service) WriteOff(ctx context.Context, in Input) (Result, error) {
	return s.mutate(ctx, in, entity.MovementWriteOff, func(item *entity.InventoryItem, q types.Quantity) error {
		if !item.AllowNegativeStock && item.TotalStock.LessThan(q) {
			return apperror.NewNegativeStockNotAllowed(item.ID.String())
		}
		item.TotalStock = item.TotalStock.Sub(q)
		return nil
	})
}

// Transfer atomically moves quantity from a source to a destination
// warehouse, auto-creating the destination item if needed, under a
// deterministically-ordered dual lock (spec §4.1 row "Transfer", §5
// "Transfers acquire both source and destination locks in a total
// order").
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Result, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := tc.Validate(); err != nil {
		return Result{}, err
	}
	if !in.Quantity.IsPositive() {
		return Result{}, apperror.NewInvalidQuantity("transfer quantity must be positive")
	}
	if in.SourceWarehouseID.String() == in.DestWarehouseID.String() {
		return Result{}, apperror.NewInvalidWarehouseTransfer("source and destination warehouse must differ")
	}
	if in.ReferenceNumber == "" {
		return Result{}, apperror.NewValidation("transfer requires a reference number")
	}

	srcKey := itemKey(tc.TenantID, in.VariantID, in.SourceWarehouseID)
	dstKey := itemKey(tc.TenantID, in.VariantID, in.DestWarehouseID)
	release := s.locks.AcquireMany(srcKey, dstKey)
	defer release()

	source, existed, err := s.repo.GetOrInitItem(ctx, tc.TenantID, in.VariantID, in.SourceWarehouseID)
	if err != nil {
		return Result{}, err
	}
	if !existed {
		return Result{}, apperror.NewNotFound("inventory item", source.ID.String())
	}
	if !source.AllowNegativeStock && !source.CanReduceBy(in.Quantity) {
		return Result{}, apperror.NewInsufficientStock(source.VariantID.String(), in.Quantity.String(), source.Available().String())
	}

	dest, destExisted, err := s.repo.GetOrInitItem(ctx, tc.TenantID, in.VariantID, in.DestWarehouseID)
	if err != nil {
		return Result{}, err
	}
	if !destExisted {
		dest.AllowNegativeStock = source.AllowNegativeStock
		dest.ExpiryDate = source.ExpiryDate
	}

	now := s.clock()
	meta := entity.TransferMetadata(in.SourceWarehouseID, in.DestWarehouseID)

	outMovement := entity.StockMovement{
		ID:              id.NewMovementID(),
		InventoryItemID: source.ID,
		TenantID:        tc.TenantID,
		VariantID:       in.VariantID,
		WarehouseID:     in.SourceWarehouseID,
		Kind:            entity.MovementTransferOut,
		Quantity:        in.Quantity.Neg(),
		ActorID:         tc.ActorID,
		TimestampUTC:    now,
		Reason:          in.Reason,
		ReferenceNumber: in.ReferenceNumber,
		Metadata:        meta,
		CorrelationID:   tc.CorrelationID,
	}
	source.TotalStock = source.TotalStock.Sub(in.Quantity)
	outMovement.RunningBalance = source.TotalStock
	source.UpdatedAtUTC = now

	inMovement := entity.StockMovement{
		ID:              id.NewMovementID(),
		InventoryItemID: dest.ID,
		TenantID:        tc.TenantID,
		VariantID:       in.VariantID,
		WarehouseID:     in.DestWarehouseID,
		Kind:            entity.MovementTransferIn,
		Quantity:        in.Quantity,
		ActorID:         tc.ActorID,
		TimestampUTC:    now,
		InsertionOrder:  1,
		Reason:          in.Reason,
		ReferenceNumber: in.ReferenceNumber,
		Metadata:        meta,
		CorrelationID:   tc.CorrelationID,
	}
	dest.TotalStock = dest.TotalStock.Add(in.Quantity)
	inMovement.RunningBalance = dest.TotalStock
	dest.UpdatedAtUTC = now

	if err := s.repo.CommitTransfer(ctx, &source, outMovement, &dest, inMovement); err != nil {
		return Result{}, fmt.Errorf("commit transfer: %w", err)
	}

	s.notify(ctx, source, outMovement)
	s.notify(ctx, dest, inMovement)

	logger.Info(ctx, "transfer committed",
		"variant_id", in.VariantID.String(),
		"source_warehouse_id", in.SourceWarehouseID.String(),
		"dest_warehouse_id", in.DestWarehouseID.String(),
		"quantity", in.Quantity.String(),
		"reference_number", in.ReferenceNumber,
	)

	return Result{Item: dest, Movements: []entity.StockMovement{outMovement, inMovement}}, nil
}

// mutate runs an unsigned (always-positive-quantity) operation that
// requires strictly positive input.
func (s *Service) mutate(ctx context.Context, in Input, kind entity.MovementKind, apply func(*entity.InventoryItem, types.Quantity) error) (Result, error) {
	if !in.Quantity.IsPositive() {
		return Result{}, apperror.NewInvalidQuantity(fmt.Sprintf("%s quantity must be positive", kind))
	}
	return s.run(ctx, in, kind, in.Quantity, apply)
}

// mutateSigned runs an operation whose quantity may be negative (Adjustment).
func (s *Service) mutateSigned(ctx context.Context, in Input, kind entity.MovementKind, apply func(*entity.InventoryItem, types.Quantity) error) (Result, error) {
	return s.run(ctx, in, kind, in.Quantity, apply)
}

func (s *Service) run(ctx context.Context, in Input, kind entity.MovementKind, signedQty types.Quantity, apply func(*entity.InventoryItem, types.Quantity) error) (Result, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := tc.Validate(); err != nil {
		return Result{}, err
	}

	release := s.locks.Acquire(itemKey(tc.TenantID, in.VariantID, in.WarehouseID))
	defer release()

	item, existed, err := s.repo.GetOrInitItem(ctx, tc.TenantID, in.VariantID, in.WarehouseID)
	if err != nil {
		return Result{}, err
	}
	if !existed {
		return Result{}, apperror.NewNotFound("inventory item", item.ID.String())
	}

	if err := apply(&item, signedQty); err != nil {
		return Result{}, err
	}

	movementQty := signedQty
	if kind == entity.MovementSale || kind == entity.MovementWriteOff {
		movementQty = signedQty.Neg()
	}
	movement := s.buildMovement(tc, item, kind, movementQty, in)
	movement.RunningBalance = item.TotalStock
	item.UpdatedAtUTC = movement.TimestampUTC

	if err := s.commit(ctx, &item, []entity.StockMovement{movement}); err != nil {
		return Result{}, err
	}
	s.notify(ctx, item, movement)
	return Result{Item: item, Movements: []entity.StockMovement{movement}}, nil
}

func (s *Service) buildMovement(tc tenantctx.Context, item entity.InventoryItem, kind entity.MovementKind, qty types.Quantity, in Input) entity.StockMovement {
	return entity.StockMovement{
		ID:              id.NewMovementID(),
		InventoryItemID: item.ID,
		TenantID:        tc.TenantID,
		VariantID:       in.VariantID,
		WarehouseID:     in.WarehouseID,
		Kind:            kind,
		Quantity:        qty,
		ActorID:         tc.ActorID,
		TimestampUTC:    s.clock(),
		Reason:          in.Reason,
		ReferenceNumber: in.ReferenceNumber,
		Metadata:        in.Metadata,
		CorrelationID:   tc.CorrelationID,
	}
}

func (s *Service) commit(ctx context.Context, item *entity.InventoryItem, movements []entity.StockMovement) error {
	if err := s.repo.CommitMovements(ctx, item, movements); err != nil {
		return fmt.Errorf("commit movements: %w", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, item entity.InventoryItem, movement entity.StockMovement) {
	if s.events == nil {
		return
	}
	s.events.StockLevelChanged(ctx, item, movement)
}
