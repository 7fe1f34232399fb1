package recipe_extract

import (
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/ingestion/extractor"
	"github.com/recipenow/recipenow-backend/internal/ingestion/fallback"
	"github.com/recipenow/recipenow-backend/internal/ingestion/merge"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/platform/media"
	"github.com/recipenow/recipenow-backend/internal/services"
)

// Pipeline builds the recipe draft for an asset: structured extraction with
// the vision model, heuristic fallback over the OCR lines, precedence merge,
// and one transactional write of values, spans, and field statuses.
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	store     media.Store
	extractor *extractor.StructuredExtractor // nil when no vision model is configured
	parser    *fallback.Parser
	policy    *merge.Policy
	assets    repos.MediaAssetRepo
	lines     repos.OCRLineRepo
	recipes   repos.RecipeRepo
	spans     repos.SourceSpanRepo
	statuses  repos.FieldStatusRepo
	pipeline  services.PipelineService
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	store media.Store,
	ext *extractor.StructuredExtractor,
	parser *fallback.Parser,
	policy *merge.Policy,
	assets repos.MediaAssetRepo,
	lines repos.OCRLineRepo,
	recipes repos.RecipeRepo,
	spans repos.SourceSpanRepo,
	statuses repos.FieldStatusRepo,
	pipeline services.PipelineService,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", "recipe_extract"),
		store:     store,
		extractor: ext,
		parser:    parser,
		policy:    policy,
		assets:    assets,
		lines:     lines,
		recipes:   recipes,
		spans:     spans,
		statuses:  statuses,
		pipeline:  pipeline,
	}
}

func (p *Pipeline) Type() string { return "recipe_extract" }
