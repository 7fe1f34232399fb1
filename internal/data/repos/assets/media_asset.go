package assets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type MediaAssetRepo interface {
	Create(dbc dbctx.Context, rows []*types.MediaAsset) ([]*types.MediaAsset, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.MediaAsset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MediaAsset, error)
	GetByUserAndSHA(dbc dbctx.Context, userID uuid.UUID, sha256 string) (*types.MediaAsset, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.MediaAsset, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type mediaAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMediaAssetRepo(db *gorm.DB, baseLog *logger.Logger) MediaAssetRepo {
	return &mediaAssetRepo{db: db, log: baseLog.With("repo", "MediaAssetRepo")}
}

func (r *mediaAssetRepo) Create(dbc dbctx.Context, rows []*types.MediaAsset) ([]*types.MediaAsset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.MediaAsset{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *mediaAssetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.MediaAsset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.MediaAsset
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mediaAssetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MediaAsset, error) {
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

func (r *mediaAssetRepo) GetByUserAndSHA(dbc dbctx.Context, userID uuid.UUID, sha256 string) (*types.MediaAsset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if userID == uuid.Nil || sha256 == "" {
		return nil, nil
	}
	var row types.MediaAsset
	err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND sha256 = ?", userID, sha256).
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

func (r *mediaAssetRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.MediaAsset, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.MediaAsset
	if userID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mediaAssetRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.MediaAsset{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *mediaAssetRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.MediaAsset{}).Error
}
