package recipe_ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/clients/ocr"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	jobrt "github.com/recipenow/recipenow-backend/internal/jobs/runtime"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	assetID, ok := jc.PayloadUUID("asset_id")
	if !ok || assetID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing asset_id"))
		return nil
	}

	asset, err := p.assets.GetByID(dbctx.Context{Ctx: jc.Ctx}, assetID)
	if err != nil {
		jc.Fail("load_asset", err)
		return nil
	}
	if asset == nil || asset.UserID != jc.Job.OwnerUserID {
		jc.Fail("load_asset", fmt.Errorf("asset %s not found", assetID))
		return nil
	}

	jc.Progress("load_image", 10, "Loading photo")
	img, err := p.readObject(jc.Ctx, asset.StoragePath)
	if err != nil {
		jc.Fail("load_image", err)
		return nil
	}

	jc.Progress("orientation", 25, "Estimating orientation")
	corrected, angle, _ := p.estimator.Estimate(jc.Ctx, img)
	if angle != 0 {
		if err := p.store.Save(jc.Ctx, asset.CorrectedPath(), bytes.NewReader(corrected)); err != nil {
			// Rotation degrades to uncorrected rather than failing ingest.
			p.log.Warn("saving corrected image failed, proceeding uncorrected", "asset_id", assetID, "error", err)
			corrected, angle = img, 0
		}
	}

	jc.Progress("ocr", 40, "Recognizing text")
	if err := p.assets.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, assetID, map[string]interface{}{
		"ocr_status":       types.OCRStatusRunning,
		"rotation_applied": angle,
	}); err != nil {
		jc.Fail("ocr", err)
		return nil
	}

	lines, err := p.extractLines(jc, corrected)
	if err != nil {
		status := types.OCRStatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status = types.OCRStatusTimeout
		}
		_ = p.assets.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, assetID, map[string]interface{}{
			"ocr_status": status,
		})
		jc.Fail("ocr", err)
		return nil
	}

	jc.Progress("persist", 80, "Saving recognized lines")
	var recipeID uuid.UUID
	err = p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}

		// Re-ingest supersedes prior lines wholesale.
		if err := p.lines.DeleteByAssetID(dbc, assetID); err != nil {
			return err
		}
		rows := make([]*types.OCRLine, len(lines))
		for i, ln := range lines {
			rows[i] = &types.OCRLine{
				ID:         uuid.New(),
				AssetID:    assetID,
				Page:       ln.Page,
				LineIndex:  i,
				Text:       ln.Text,
				BBox:       ln.BBox,
				Confidence: ln.Confidence,
			}
		}
		if _, err := p.lines.Create(dbc, rows); err != nil {
			return err
		}
		if err := p.assets.UpdateFields(dbc, assetID, map[string]interface{}{
			"ocr_status": types.OCRStatusCompleted,
		}); err != nil {
			return err
		}

		recipe, err := p.recipes.GetByAssetID(dbc, assetID)
		if err != nil {
			return err
		}
		if recipe == nil {
			recipe = &types.Recipe{
				ID:      uuid.New(),
				UserID:  asset.UserID,
				AssetID: assetID,
				Status:  types.RecipeStatusDraft,
			}
			if _, err := p.recipes.Create(dbc, []*types.Recipe{recipe}); err != nil {
				return err
			}
		}
		recipeID = recipe.ID
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"asset_id":         assetID.String(),
		"recipe_id":        recipeID.String(),
		"rotation_applied": angle,
		"line_count":       len(lines),
	})

	// Next stage is enqueued only after the transaction above committed.
	if _, err := p.pipeline.Enqueue(dbctx.Context{Ctx: jc.Ctx}, jc.Job.OwnerUserID, types.JobTypeRecipeExtract, assetID, map[string]any{
		"recipe_id": recipeID.String(),
	}); err != nil && !errors.Is(err, services.ErrPipelineBusy) {
		p.log.Warn("enqueue extract failed", "asset_id", assetID, "error", err)
	}
	return nil
}

func (p *Pipeline) extractLines(jc *jobrt.Context, img []byte) ([]ocr.Line, error) {
	timeout := p.OCRTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(jc.Ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	var lines []ocr.Line
	var err error
	go func() {
		defer close(done)
		lines, err = p.engine.ExtractLines(ctx, img)
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			if err != nil {
				return nil, err
			}
			ocr.SortLinesDocumentOrder(lines)
			return lines, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			jc.Heartbeat()
		}
	}
}

func (p *Pipeline) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
