package reservation_test

import (
	"context"
	"sync"
	"time"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/domain/reservation"
)

// memoryRepository is an in-process reservation.Repository test double,
// grounded on the ledger package's equivalent (itself grounded on the
// teacher's mockQuerier pattern).
type memoryRepository struct {
	mu           sync.Mutex
	items        map[string]*entity.InventoryItem
	reservations map[id.ReservationID]*entity.Reservation
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		items:        make(map[string]*entity.InventoryItem),
		reservations: make(map[id.ReservationID]*entity.Reservation),
	}
}

func key(tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) string {
	return tenant.String() + ":" + variant.String() + ":" + warehouse.String()
}

func (r *memoryRepository) seedItem(item entity.InventoryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := item
	r.items[key(item.TenantID, item.VariantID, item.WarehouseID)] = &stored
}

func (r *memoryRepository) GetItem(_ context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (entity.InventoryItem, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[key(tenant, variant, warehouse)]
	if !ok {
		return entity.InventoryItem{}, false, nil
	}
	return *item, true, nil
}

func (r *memoryRepository) GetReservation(_ context.Context, tenant id.TenantID, reservationID id.ReservationID) (entity.Reservation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok || res.TenantID.String() != tenant.String() {
		return entity.Reservation{}, false, nil
	}
	return *res, true, nil
}

func (r *memoryRepository) CreateReservation(_ context.Context, item *entity.InventoryItem, res *entity.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	storedItem := *item
	r.items[key(item.TenantID, item.VariantID, item.WarehouseID)] = &storedItem
	storedRes := *res
	r.reservations[res.ID] = &storedRes
	return nil
}

func (r *memoryRepository) UpdateReservation(_ context.Context, item *entity.InventoryItem, res *entity.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	storedItem := *item
	r.items[key(item.TenantID, item.VariantID, item.WarehouseID)] = &storedItem
	storedRes := *res
	r.reservations[res.ID] = &storedRes
	return nil
}

func (r *memoryRepository) ListExpiring(_ context.Context, cutoff time.Time, limit int) ([]entity.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Reservation
	for _, res := range r.reservations {
		if res.Status.IsTerminal() {
			continue
		}
		if res.ExpiresAtUTC.After(cutoff) {
			continue
		}
		out = append(out, *res)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ reservation.Repository = (*memoryRepository)(nil)

type noopEvents struct{}

func (noopEvents) ReservationChanged(context.Context, entity.Reservation, entity.InventoryItem) {}

func mustAppErrorCode(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}
