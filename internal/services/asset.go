package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/platform/media"
)

// Upload size cap. Recipe card photos are small; anything larger is rejected
// before it reaches storage.
const maxUploadBytes = 20 << 20

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
	ErrAssetNotFound    = errors.New("asset not found")
)

type UploadResult struct {
	Asset *types.MediaAsset
	Job   *types.JobRun
	// Deduplicated is true when the same bytes were already uploaded by this
	// user; the existing asset is returned and nothing is re-stored.
	Deduplicated bool
}

type AssetService interface {
	Upload(dbc dbctx.Context, userID uuid.UUID, filename string, r io.Reader, sourceLabel string) (*UploadResult, error)
	Get(dbc dbctx.Context, userID, assetID uuid.UUID) (*types.MediaAsset, error)
	List(dbc dbctx.Context, userID uuid.UUID) ([]*types.MediaAsset, error)
	// Reingest re-runs the full pipeline for an existing asset.
	Reingest(dbc dbctx.Context, userID, assetID uuid.UUID) (*types.JobRun, error)
	Delete(dbc dbctx.Context, userID, assetID uuid.UUID) error
	// OpenImage streams the stored photo, corrected for rotation when a
	// corrected render exists.
	OpenImage(dbc dbctx.Context, userID, assetID uuid.UUID) (io.ReadCloser, *types.MediaAsset, error)
	// Lines returns the recognized text lines in document order.
	Lines(dbc dbctx.Context, userID, assetID uuid.UUID) ([]*types.OCRLine, error)
}

type assetService struct {
	log      *logger.Logger
	store    media.Store
	assets   repos.MediaAssetRepo
	lines    repos.OCRLineRepo
	pipeline PipelineService
}

func NewAssetService(store media.Store, assets repos.MediaAssetRepo, lines repos.OCRLineRepo, pipeline PipelineService, baseLog *logger.Logger) AssetService {
	return &assetService{
		log:      baseLog.With("service", "AssetService"),
		store:    store,
		assets:   assets,
		lines:    lines,
		pipeline: pipeline,
	}
}

func assetTypeFor(filename string) (string, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic":
		return types.AssetTypeImage, nil
	case ".pdf":
		return types.AssetTypePDF, nil
	default:
		return "", ErrUnsupportedMedia
	}
}

func (s *assetService) Upload(dbc dbctx.Context, userID uuid.UUID, filename string, r io.Reader, sourceLabel string) (*UploadResult, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user required")
	}
	assetType, err := assetTypeFor(filename)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxUploadBytes {
		return nil, ErrUploadTooLarge
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty upload")
	}

	sum := sha256.Sum256(raw)
	sha := hex.EncodeToString(sum[:])

	// Same bytes from the same user attach to the existing asset.
	if existing, err := s.assets.GetByUserAndSHA(dbc, userID, sha); err != nil {
		return nil, err
	} else if existing != nil {
		s.log.Info("upload deduplicated", "user_id", userID, "asset_id", existing.ID)
		return &UploadResult{Asset: existing, Deduplicated: true}, nil
	}

	key := fmt.Sprintf("assets/%s/%s%s", userID, sha, strings.ToLower(path.Ext(filename)))
	if err := s.store.Save(dbc.Ctx, key, bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	asset := &types.MediaAsset{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        assetType,
		SHA256:      sha,
		StoragePath: key,
		SourceLabel: strings.TrimSpace(sourceLabel),
		FileSize:    int64(len(raw)),
		OCRStatus:   types.OCRStatusPending,
	}
	if _, err := s.assets.Create(dbc, []*types.MediaAsset{asset}); err != nil {
		return nil, err
	}

	job, err := s.pipeline.Enqueue(dbc, userID, types.JobTypeRecipeIngest, asset.ID, nil)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Asset: asset, Job: job}, nil
}

func (s *assetService) Get(dbc dbctx.Context, userID, assetID uuid.UUID) (*types.MediaAsset, error) {
	asset, err := s.assets.GetByID(dbc, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil || asset.UserID != userID {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

func (s *assetService) List(dbc dbctx.Context, userID uuid.UUID) ([]*types.MediaAsset, error) {
	return s.assets.ListByUser(dbc, userID)
}

func (s *assetService) Reingest(dbc dbctx.Context, userID, assetID uuid.UUID) (*types.JobRun, error) {
	if _, err := s.Get(dbc, userID, assetID); err != nil {
		return nil, err
	}
	return s.pipeline.Enqueue(dbc, userID, types.JobTypeRecipeIngest, assetID, nil)
}

func (s *assetService) Delete(dbc dbctx.Context, userID, assetID uuid.UUID) error {
	asset, err := s.Get(dbc, userID, assetID)
	if err != nil {
		return err
	}
	if err := s.lines.DeleteByAssetID(dbc, assetID); err != nil {
		return err
	}
	if err := s.assets.SoftDeleteByIDs(dbc, []uuid.UUID{assetID}); err != nil {
		return err
	}
	// Storage cleanup is best-effort; the row is already gone.
	if err := s.store.Delete(dbc.Ctx, asset.StoragePath); err != nil {
		s.log.Warn("storage delete failed", "asset_id", assetID, "error", err)
	}
	_ = s.store.Delete(dbc.Ctx, asset.CorrectedPath())
	return nil
}

func (s *assetService) Lines(dbc dbctx.Context, userID, assetID uuid.UUID) ([]*types.OCRLine, error) {
	if _, err := s.Get(dbc, userID, assetID); err != nil {
		return nil, err
	}
	return s.lines.GetByAssetID(dbc, assetID)
}

func (s *assetService) OpenImage(dbc dbctx.Context, userID, assetID uuid.UUID) (io.ReadCloser, *types.MediaAsset, error) {
	asset, err := s.Get(dbc, userID, assetID)
	if err != nil {
		return nil, nil, err
	}
	key := asset.StoragePath
	if asset.RotationApplied != 0 {
		key = asset.CorrectedPath()
	}
	rc, err := s.store.Open(dbc.Ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return rc, asset, nil
}
