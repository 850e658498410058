package entity

import (
	"time"

	"invengine/internal/core/id"
)

// SoftDeleteMarker is embedded in aggregates that support soft delete
// (Variant, Product, Warehouse). Re-expresses the teacher's class-
// inheritance-based soft-delete behavior as composition (Design Note
// §9(a)): aggregate-specific operations consult/mutate this struct
// instead of inheriting from a shared base class.
type SoftDeleteMarker struct {
	Deleted   bool       `db:"deleted" json:"deleted"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletedBy id.ActorID `db:"deleted_by" json:"deletedBy,omitempty"`
}

// MarkDeleted soft-deletes the owning aggregate.
func (m *SoftDeleteMarker) MarkDeleted(by id.ActorID, at time.Time) {
	m.Deleted = true
	m.DeletedAt = &at
	m.DeletedBy = by
}

// Restore clears the soft-delete marker.
func (m *SoftDeleteMarker) Restore() {
	m.Deleted = false
	m.DeletedAt = nil
	m.DeletedBy = id.ActorID{}
}

func (m *SoftDeleteMarker) IsDeleted() bool { return m.Deleted }
