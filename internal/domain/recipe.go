package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RecipeStatusDraft       = "draft"
	RecipeStatusNeedsReview = "needs_review"
	RecipeStatusVerified    = "verified"
)

// Recipe is the mutable draft record built by the extraction pipeline.
// Servings is explicit-only: a derived value lives in ServingsEstimate and
// requires user approval. Ingredient original_text is immutable once written;
// only the derived name_norm/quantity/unit may change afterwards.
type Recipe struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_recipe_user_status,priority:1" json:"user_id"`
	AssetID  uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Title    string    `gorm:"column:title" json:"title,omitempty"`
	Servings *int      `gorm:"column:servings" json:"servings,omitempty"`

	ServingsEstimate         *ServingsEstimate `gorm:"column:servings_estimate;type:jsonb;serializer:json" json:"servings_estimate,omitempty"`
	ServingsConfirmedUnknown bool              `gorm:"column:servings_confirmed_unknown;not null;default:false" json:"servings_confirmed_unknown"`

	Times                 Times `gorm:"column:times;type:jsonb;serializer:json" json:"times"`
	TimesConfirmedUnknown bool  `gorm:"column:times_confirmed_unknown;not null;default:false" json:"times_confirmed_unknown"`

	Ingredients   Ingredients `gorm:"column:ingredients;type:jsonb;serializer:json" json:"ingredients"`
	Steps         Steps       `gorm:"column:steps;type:jsonb;serializer:json" json:"steps"`
	Tags          StringList  `gorm:"column:tags;type:jsonb;serializer:json" json:"tags"`
	QualityIssues StringList  `gorm:"column:quality_issues;type:jsonb;serializer:json" json:"quality_issues"`

	Status    string         `gorm:"column:status;not null;default:draft;index:idx_recipe_user_status,priority:2" json:"status"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Recipe) TableName() string { return "recipe" }

// HasServingsConfirmation reports whether the servings gate for Verify holds:
// explicit value, approved estimate, or a confirmed "unknown".
func (r *Recipe) HasServingsConfirmation() bool {
	if r.Servings != nil {
		return true
	}
	if r.ServingsEstimate != nil && r.ServingsEstimate.ApprovedByUser {
		return true
	}
	return r.ServingsConfirmedUnknown
}

// HasTimesConfirmation mirrors HasServingsConfirmation for the time fields.
func (r *Recipe) HasTimesConfirmation() bool {
	if !r.Times.IsZero() {
		return true
	}
	return r.TimesConfirmedUnknown
}
