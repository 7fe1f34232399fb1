package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourceMethodOCR    = "ocr"
	SourceMethodVision = "vision-api"
	SourceMethodUser   = "user"
)

// SourceSpan binds one recipe field to the source pixels (and, for
// vision-api spans, the OCR lines) it was read from.
type SourceSpan struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID      uuid.UUID `gorm:"type:uuid;not null;index:idx_span_recipe_field,priority:1" json:"recipe_id"`
	FieldPath     string    `gorm:"column:field_path;not null;index:idx_span_recipe_field,priority:2" json:"field_path"`
	AssetID       uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Page          int       `gorm:"column:page;not null;default:0" json:"page"`
	BBox          BBox      `gorm:"column:bbox;type:jsonb;serializer:json;not null" json:"bbox"`
	OCRConfidence float64   `gorm:"column:ocr_confidence;not null;default:0" json:"ocr_confidence"`
	ExtractedText string    `gorm:"column:extracted_text" json:"extracted_text,omitempty"`
	SourceMethod  string    `gorm:"column:source_method;not null;default:ocr;index" json:"source_method"`
	Evidence      *Evidence `gorm:"column:evidence;type:jsonb;serializer:json" json:"evidence,omitempty"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (SourceSpan) TableName() string { return "source_span" }
