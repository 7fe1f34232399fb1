package domain

import (
	"github.com/google/uuid"
)

// Field lifecycle states. FieldStatus is the single source of truth for a
// field's state; every field_path present in recipe content has exactly one.
const (
	FieldMissing     = "missing"
	FieldExtracted   = "extracted"
	FieldAmbiguous   = "ambiguous"
	FieldUserEntered = "user_entered"
	FieldVerified    = "verified"
)

type FieldStatus struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_field_status_recipe_field,priority:1" json:"recipe_id"`
	FieldPath string    `gorm:"column:field_path;not null;uniqueIndex:idx_field_status_recipe_field,priority:2" json:"field_path"`
	Status    string    `gorm:"column:status;not null" json:"status"`
	// Notes carries the user-facing question for ambiguous fields.
	Notes string `gorm:"column:notes" json:"notes,omitempty"`
}

func (FieldStatus) TableName() string { return "field_status" }

// CanTransitionField encodes the field lifecycle:
//
//	missing -> extracted | ambiguous        (ingest/extract)
//	any     -> user_entered                 (PATCH)
//	extracted | user_entered -> verified    (Verify only)
//
// Same-state writes are allowed so re-runs can supersede rows in place.
func CanTransitionField(from, to string) bool {
	if from == to {
		return true
	}
	switch to {
	case FieldExtracted, FieldAmbiguous:
		return from == FieldMissing
	case FieldUserEntered:
		return true
	case FieldVerified:
		return from == FieldExtracted || from == FieldUserEntered
	case FieldMissing:
		return false
	default:
		return false
	}
}
