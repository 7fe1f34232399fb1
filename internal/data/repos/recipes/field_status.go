package recipes

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type FieldStatusRepo interface {
	// Upsert writes one status row per (recipe, field_path), replacing status
	// and notes on conflict. Transition legality is the caller's job.
	Upsert(dbc dbctx.Context, rows []*types.FieldStatus) error
	GetByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) ([]*types.FieldStatus, error)
	GetByRecipeAndField(dbc dbctx.Context, recipeID uuid.UUID, fieldPath string) (*types.FieldStatus, error)
	DeleteByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) error
	DeleteByRecipeAndFields(dbc dbctx.Context, recipeID uuid.UUID, fieldPaths []string) error
}

type fieldStatusRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFieldStatusRepo(db *gorm.DB, baseLog *logger.Logger) FieldStatusRepo {
	return &fieldStatusRepo{db: db, log: baseLog.With("repo", "FieldStatusRepo")}
}

func (r *fieldStatusRepo) Upsert(dbc dbctx.Context, rows []*types.FieldStatus) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipe_id"}, {Name: "field_path"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "notes"}),
		}).
		Create(&rows).Error
}

func (r *fieldStatusRepo) GetByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) ([]*types.FieldStatus, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.FieldStatus
	if recipeID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("recipe_id = ?", recipeID).
		Order("field_path ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fieldStatusRepo) GetByRecipeAndField(dbc dbctx.Context, recipeID uuid.UUID, fieldPath string) (*types.FieldStatus, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if recipeID == uuid.Nil || fieldPath == "" {
		return nil, nil
	}
	var row types.FieldStatus
	err := t.WithContext(dbc.Ctx).
		Where("recipe_id = ? AND field_path = ?", recipeID, fieldPath).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *fieldStatusRepo) DeleteByRecipeID(dbc dbctx.Context, recipeID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if recipeID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("recipe_id = ?", recipeID).
		Delete(&types.FieldStatus{}).Error
}

func (r *fieldStatusRepo) DeleteByRecipeAndFields(dbc dbctx.Context, recipeID uuid.UUID, fieldPaths []string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if recipeID == uuid.Nil || len(fieldPaths) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("recipe_id = ? AND field_path IN ?", recipeID, fieldPaths).
		Delete(&types.FieldStatus{}).Error
}
