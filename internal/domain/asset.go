package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AssetTypeImage = "image"
	AssetTypePDF   = "pdf"
)

// OCR lifecycle for a MediaAsset. The asset row itself is immutable after
// upload; only this stage bookkeeping and the applied rotation change.
const (
	OCRStatusPending   = "pending"
	OCRStatusRunning   = "running"
	OCRStatusCompleted = "completed"
	OCRStatusFailed    = "failed"
	OCRStatusTimeout   = "timeout"
)

type MediaAsset struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_media_asset_user_sha,priority:1" json:"user_id"`
	Type            string         `gorm:"column:type;not null" json:"type"`
	SHA256          string         `gorm:"column:sha256;not null;index:idx_media_asset_user_sha,priority:2" json:"sha256"`
	StoragePath     string         `gorm:"column:storage_path;not null" json:"storage_path"`
	SourceLabel     string         `gorm:"column:source_label" json:"source_label,omitempty"`
	FileSize        int64          `gorm:"column:file_size;not null;default:0" json:"file_size"`
	OCRStatus       string         `gorm:"column:ocr_status;not null;default:pending;index" json:"ocr_status"`
	RotationApplied int            `gorm:"column:rotation_applied;not null;default:0" json:"rotation_applied"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MediaAsset) TableName() string { return "media_asset" }

// CorrectedPath is the storage key of the rotation-corrected render. It only
// exists once ingest has applied a non-zero rotation.
func (a *MediaAsset) CorrectedPath() string {
	return a.StoragePath + ".corrected.png"
}

// EntityType values used by job_run rows.
const EntityTypeMediaAsset = "media_asset"

// OCRLine is one recognized text line in corrected-image pixel space.
// Lines are superseded wholesale on re-ingest, never mutated in place.
type OCRLine struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID    uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Page       int       `gorm:"column:page;not null;default:0" json:"page"`
	LineIndex  int       `gorm:"column:line_index;not null;default:0" json:"line_index"`
	Text       string    `gorm:"column:text;not null" json:"text"`
	BBox       BBox      `gorm:"column:bbox;type:jsonb;serializer:json;not null" json:"bbox"`
	Confidence float64   `gorm:"column:confidence;not null;default:0" json:"confidence"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (OCRLine) TableName() string { return "ocr_line" }
