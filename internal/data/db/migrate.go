package db

import (
	"fmt"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Uploads + OCR
		&types.MediaAsset{},
		&types.OCRLine{},

		// Recipe drafts + provenance
		&types.Recipe{},
		&types.SourceSpan{},
		&types.FieldStatus{},

		// Jobs / worker
		&types.JobRun{},
	)
}

func EnsureRecipeIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	// One live asset per (user, content hash); re-uploads resolve to it.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_media_asset_user_sha_active
		ON media_asset(user_id, sha256)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_media_asset_user_sha_active: %w", err)
	}
	// Span lookups during merge and overlay rendering.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_source_span_asset_page
		ON source_span(asset_id, page);
	`).Error; err != nil {
		return fmt.Errorf("create idx_source_span_asset_page: %w", err)
	}
	// Line lookups in document order for span building.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ocr_line_asset_order
		ON ocr_line(asset_id, page, line_index);
	`).Error; err != nil {
		return fmt.Errorf("create idx_ocr_line_asset_order: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureRecipeIndexes(s.db); err != nil {
		s.log.Error("Recipe index migration failed", "error", err)
		return err
	}
	return nil
}
