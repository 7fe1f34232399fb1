package recipe_normalize

import (
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// Pipeline canonicalizes the merged draft and computes its quality issues.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	recipes  repos.RecipeRepo
	statuses repos.FieldStatusRepo
	spans    repos.SourceSpanRepo
}

func New(db *gorm.DB, baseLog *logger.Logger, recipes repos.RecipeRepo, statuses repos.FieldStatusRepo, spans repos.SourceSpanRepo) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", "recipe_normalize"),
		recipes:  recipes,
		statuses: statuses,
		spans:    spans,
	}
}

func (p *Pipeline) Type() string { return "recipe_normalize" }
