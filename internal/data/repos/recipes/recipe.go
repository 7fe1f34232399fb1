package recipes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type RecipeRepo interface {
	Create(dbc dbctx.Context, rows []*types.Recipe) ([]*types.Recipe, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Recipe, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Recipe, error)
	GetByAssetID(dbc dbctx.Context, assetID uuid.UUID) (*types.Recipe, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, statuses []string) ([]*types.Recipe, error)
	Update(dbc dbctx.Context, row *types.Recipe) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type recipeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecipeRepo(db *gorm.DB, baseLog *logger.Logger) RecipeRepo {
	return &recipeRepo{db: db, log: baseLog.With("repo", "RecipeRepo")}
}

func (r *recipeRepo) Create(dbc dbctx.Context, rows []*types.Recipe) ([]*types.Recipe, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Recipe{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *recipeRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Recipe, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Recipe
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *recipeRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Recipe, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *recipeRepo) GetByAssetID(dbc dbctx.Context, assetID uuid.UUID) (*types.Recipe, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if assetID == uuid.Nil {
		return nil, nil
	}
	var row types.Recipe
	err := t.WithContext(dbc.Ctx).
		Where("asset_id = ?", assetID).
		Order("created_at DESC").
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

func (r *recipeRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, statuses []string) ([]*types.Recipe, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Recipe
	if userID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *recipeRepo) Update(dbc dbctx.Context, row *types.Recipe) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Save(row).Error
}

func (r *recipeRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Recipe{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *recipeRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Recipe{}).Error
}
