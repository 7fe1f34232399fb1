package recipes

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type SourceSpanRepo interface {
	Create(dbc dbctx.Context, rows []*types.SourceSpan) ([]*types.SourceSpan, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceSpan, error)
	GetByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) ([]*types.SourceSpan, error)
	GetByRecipeAndField(dbc dbctx.Context, recipeID uuid.UUID, fieldPath string) ([]*types.SourceSpan, error)
	// ReplaceForField deletes every span for (recipe, field) and inserts the
	// replacements in one shot. Re-runs supersede, never append.
	ReplaceForField(dbc dbctx.Context, recipeID uuid.UUID, fieldPath string, rows []*types.SourceSpan) error
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	DeleteByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) error
}

type sourceSpanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceSpanRepo(db *gorm.DB, baseLog *logger.Logger) SourceSpanRepo {
	return &sourceSpanRepo{db: db, log: baseLog.With("repo", "SourceSpanRepo")}
}

func (r *sourceSpanRepo) Create(dbc dbctx.Context, rows []*types.SourceSpan) ([]*types.SourceSpan, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.SourceSpan{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sourceSpanRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceSpan, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.SourceSpan
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sourceSpanRepo) GetByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) ([]*types.SourceSpan, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.SourceSpan
	if recipeID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("recipe_id = ?", recipeID).
		Order("field_path ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceSpanRepo) GetByRecipeAndField(dbc dbctx.Context, recipeID uuid.UUID, fieldPath string) ([]*types.SourceSpan, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.SourceSpan
	if recipeID == uuid.Nil || fieldPath == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("recipe_id = ? AND field_path = ?", recipeID, fieldPath).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceSpanRepo) ReplaceForField(dbc dbctx.Context, recipeID uuid.UUID, fieldPath string, rows []*types.SourceSpan) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if recipeID == uuid.Nil || fieldPath == "" {
		return nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("recipe_id = ? AND field_path = ?", recipeID, fieldPath).
		Delete(&types.SourceSpan{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	return t.WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *sourceSpanRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.SourceSpan{}).Error
}

func (r *sourceSpanRepo) DeleteByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if recipeID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("recipe_id = ?", recipeID).
		Delete(&types.SourceSpan{}).Error
}
