package recipe_ingest

import (
	"time"

	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/clients/ocr"
	"github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/ingestion/rotation"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/platform/media"
	"github.com/recipenow/recipenow-backend/internal/services"
)

// Pipeline corrects orientation, runs OCR, and persists the recognized lines
// for one uploaded asset. On success it enqueues extraction.
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	store     media.Store
	engine    ocr.Engine
	estimator *rotation.Estimator
	assets    repos.MediaAssetRepo
	lines     repos.OCRLineRepo
	recipes   repos.RecipeRepo
	pipeline  services.PipelineService

	// OCRTimeout bounds line extraction; hitting it marks the asset
	// ocr_status=timeout rather than failed.
	OCRTimeout time.Duration
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	store media.Store,
	engine ocr.Engine,
	estimator *rotation.Estimator,
	assets repos.MediaAssetRepo,
	lines repos.OCRLineRepo,
	recipes repos.RecipeRepo,
	pipeline services.PipelineService,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", "recipe_ingest"),
		store:      store,
		engine:     engine,
		estimator:  estimator,
		assets:     assets,
		lines:      lines,
		recipes:    recipes,
		pipeline:   pipeline,
		OCRTimeout: 2 * time.Minute,
	}
}

func (p *Pipeline) Type() string { return "recipe_ingest" }
