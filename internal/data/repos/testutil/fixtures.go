package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"gorm.io/gorm"
)

func SeedAsset(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, sha string) *types.MediaAsset {
	tb.Helper()
	a := &types.MediaAsset{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        types.AssetTypeImage,
		SHA256:      sha,
		StoragePath: "assets/" + sha + ".jpg",
		FileSize:    1024,
		OCRStatus:   types.OCRStatusPending,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed asset: %v", err)
	}
	return a
}

func SeedOCRLine(tb testing.TB, ctx context.Context, tx *gorm.DB, assetID uuid.UUID, index int, text string, bbox types.BBox) *types.OCRLine {
	tb.Helper()
	l := &types.OCRLine{
		ID:         uuid.New(),
		AssetID:    assetID,
		Page:       0,
		LineIndex:  index,
		Text:       text,
		BBox:       bbox,
		Confidence: 0.9,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed ocr line: %v", err)
	}
	return l
}

func SeedRecipe(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, assetID uuid.UUID) *types.Recipe {
	tb.Helper()
	r := &types.Recipe{
		ID:      uuid.New(),
		UserID:  userID,
		AssetID: assetID,
		Status:  types.RecipeStatusDraft,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed recipe: %v", err)
	}
	return r
}

func SeedFieldStatus(tb testing.TB, ctx context.Context, tx *gorm.DB, recipeID uuid.UUID, fieldPath, status string) *types.FieldStatus {
	tb.Helper()
	fs := &types.FieldStatus{
		ID:        uuid.New(),
		RecipeID:  recipeID,
		FieldPath: fieldPath,
		Status:    status,
	}
	if err := tx.WithContext(ctx).Create(fs).Error; err != nil {
		tb.Fatalf("seed field status: %v", err)
	}
	return fs
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
