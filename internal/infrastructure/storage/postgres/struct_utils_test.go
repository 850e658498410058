package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/types"
)

func TestExtractDBColumns_EmbeddedSoftDeleteMarker(t *testing.T) {
	cols := ExtractDBColumns[entity.InventoryItem]()

	expectedCols := []string{
		"id", "tenant_id", "variant_id", "warehouse_id",
		"total_stock", "reserved_stock", "allow_negative_stock",
		"deleted", "deleted_at", "deleted_by",
	}

	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
}

func TestStructToMap_EmbeddedSoftDeleteMarker(t *testing.T) {
	now := time.Now().UTC()
	deletedBy := id.NewActorID()

	item := entity.InventoryItem{
		ID:          id.NewInventoryItemID(),
		TenantID:    id.NewTenantID(),
		VariantID:   id.NewVariantID(),
		WarehouseID: id.NewWarehouseID(),
		TotalStock:  types.MustQuantity("100.000000"),
		SoftDeleteMarker: entity.SoftDeleteMarker{
			Deleted:   true,
			DeletedAt: &now,
			DeletedBy: deletedBy,
		},
	}

	m := StructToMap(item)

	assert.Equal(t, item.ID, m["id"])
	assert.Equal(t, true, m["deleted"])
	assert.Equal(t, &now, m["deleted_at"])
	assert.Equal(t, deletedBy, m["deleted_by"])
	assert.Equal(t, item.TotalStock, m["total_stock"])
}
