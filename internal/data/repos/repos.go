package repos

import (
	"github.com/recipenow/recipenow-backend/internal/data/repos/assets"
	"github.com/recipenow/recipenow-backend/internal/data/repos/jobs"
	"github.com/recipenow/recipenow-backend/internal/data/repos/recipes"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type MediaAssetRepo = assets.MediaAssetRepo
type OCRLineRepo = assets.OCRLineRepo

type RecipeRepo = recipes.RecipeRepo
type SourceSpanRepo = recipes.SourceSpanRepo
type FieldStatusRepo = recipes.FieldStatusRepo

type JobRunRepo = jobs.JobRunRepo

func NewMediaAssetRepo(db *gorm.DB, baseLog *logger.Logger) MediaAssetRepo {
	return assets.NewMediaAssetRepo(db, baseLog)
}
func NewOCRLineRepo(db *gorm.DB, baseLog *logger.Logger) OCRLineRepo {
	return assets.NewOCRLineRepo(db, baseLog)
}

func NewRecipeRepo(db *gorm.DB, baseLog *logger.Logger) RecipeRepo {
	return recipes.NewRecipeRepo(db, baseLog)
}
func NewSourceSpanRepo(db *gorm.DB, baseLog *logger.Logger) SourceSpanRepo {
	return recipes.NewSourceSpanRepo(db, baseLog)
}
func NewFieldStatusRepo(db *gorm.DB, baseLog *logger.Logger) FieldStatusRepo {
	return recipes.NewFieldStatusRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
