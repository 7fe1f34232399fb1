package assets

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type OCRLineRepo interface {
	Create(dbc dbctx.Context, rows []*types.OCRLine) ([]*types.OCRLine, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.OCRLine, error)
	// GetByAssetID returns lines in document order: page, then insertion order.
	GetByAssetID(dbc dbctx.Context, assetID uuid.UUID) ([]*types.OCRLine, error)
	DeleteByAssetID(dbc dbctx.Context, assetID uuid.UUID) error
}

type ocrLineRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOCRLineRepo(db *gorm.DB, baseLog *logger.Logger) OCRLineRepo {
	return &ocrLineRepo{db: db, log: baseLog.With("repo", "OCRLineRepo")}
}

func (r *ocrLineRepo) Create(dbc dbctx.Context, rows []*types.OCRLine) ([]*types.OCRLine, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.OCRLine{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ocrLineRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.OCRLine, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.OCRLine
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ocrLineRepo) GetByAssetID(dbc dbctx.Context, assetID uuid.UUID) ([]*types.OCRLine, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.OCRLine
	if assetID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("asset_id = ?", assetID).
		Order("page ASC, line_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ocrLineRepo) DeleteByAssetID(dbc dbctx.Context, assetID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if assetID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Where("asset_id = ?", assetID).
		Delete(&types.OCRLine{}).Error
}
