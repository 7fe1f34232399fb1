package recipe_extract

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/ingestion/extractor"
	"github.com/recipenow/recipenow-backend/internal/ingestion/fallback"
	"github.com/recipenow/recipenow-backend/internal/ingestion/merge"
	"github.com/recipenow/recipenow-backend/internal/ingestion/normalize"
	jobrt "github.com/recipenow/recipenow-backend/internal/jobs/runtime"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	assetID, ok := jc.PayloadUUID("asset_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing asset_id"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	asset, err := p.assets.GetByID(dbc, assetID)
	if err != nil {
		jc.Fail("load_asset", err)
		return nil
	}
	if asset == nil || asset.UserID != jc.Job.OwnerUserID {
		jc.Fail("load_asset", fmt.Errorf("asset %s not found", assetID))
		return nil
	}

	recipe, err := p.loadRecipe(jc, assetID)
	if err != nil || recipe == nil {
		if err == nil {
			err = fmt.Errorf("no recipe for asset %s", assetID)
		}
		jc.Fail("load_recipe", err)
		return nil
	}

	lines, err := p.lines.GetByAssetID(dbc, assetID)
	if err != nil {
		jc.Fail("load_lines", err)
		return nil
	}
	if len(lines) == 0 {
		jc.Fail("load_lines", fmt.Errorf("no OCR lines for asset %s", assetID))
		return nil
	}
	byID := make(map[uuid.UUID]*types.OCRLine, len(lines))
	for _, ln := range lines {
		byID[ln.ID] = ln
	}

	var ext *extractor.Result
	if p.extractor != nil {
		jc.Progress("extract", 25, "Reading the card with the vision model")
		img, imgErr := p.readCardImage(jc, asset)
		if imgErr != nil {
			jc.Fail("extract", imgErr)
			return nil
		}
		ext, err = p.extractor.Extract(jc.Ctx, img, lines)
		if errors.Is(err, extractor.ErrExtractionFailed) {
			// Non-fatal: the fallback parser still produces a draft.
			p.log.Warn("structured extraction unusable, fallback only", "asset_id", assetID, "error", err)
			ext = nil
		} else if err != nil {
			jc.Fail("extract", err)
			return nil
		}
	}

	jc.Progress("fallback", 50, "Applying layout heuristics")
	fb := p.parser.Parse(lines)

	jc.Progress("merge", 65, "Merging candidates")
	existing, err := p.statuses.GetByRecipeID(dbc, recipe.ID)
	if err != nil {
		jc.Fail("merge", err)
		return nil
	}
	statusByPath := make(map[string]*types.FieldStatus, len(existing))
	for _, st := range existing {
		statusByPath[st.FieldPath] = st
	}

	draft := p.buildDraft(recipe, asset, ext, fb, byID, statusByPath)

	jc.Progress("persist", 85, "Writing draft")
	err = p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if err := p.recipes.Update(txc, draft.recipe); err != nil {
			return err
		}
		for path, rows := range draft.spansByPath {
			if err := p.spans.ReplaceForField(txc, recipe.ID, path, rows); err != nil {
				return err
			}
		}
		if len(draft.staleSpanIDs) > 0 {
			if err := p.spans.DeleteByIDs(txc, draft.staleSpanIDs); err != nil {
				return err
			}
		}
		if len(draft.stalePaths) > 0 {
			if err := p.statuses.DeleteByRecipeAndFields(txc, recipe.ID, draft.stalePaths); err != nil {
				return err
			}
		}
		if len(draft.statusRows) > 0 {
			if err := p.statuses.Upsert(txc, draft.statusRows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"asset_id":  assetID.String(),
		"recipe_id": recipe.ID.String(),
		"fields":    len(draft.statusRows),
	})

	if _, err := p.pipeline.Enqueue(dbc, jc.Job.OwnerUserID, types.JobTypeRecipeNormalize, assetID, map[string]any{
		"recipe_id": recipe.ID.String(),
	}); err != nil && !errors.Is(err, services.ErrPipelineBusy) {
		p.log.Warn("enqueue normalize failed", "asset_id", assetID, "error", err)
	}
	return nil
}

func (p *Pipeline) loadRecipe(jc *jobrt.Context, assetID uuid.UUID) (*types.Recipe, error) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	if recipeID, ok := jc.PayloadUUID("recipe_id"); ok {
		return p.recipes.GetByID(dbc, recipeID)
	}
	return p.recipes.GetByAssetID(dbc, assetID)
}

func (p *Pipeline) readCardImage(jc *jobrt.Context, asset *types.MediaAsset) ([]byte, error) {
	key := asset.StoragePath
	if asset.RotationApplied != 0 {
		key = asset.CorrectedPath()
	}
	rc, err := p.store.Open(jc.Ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// draftChange is the full set of writes the persist transaction applies.
type draftChange struct {
	recipe       *types.Recipe
	spansByPath  map[string][]*types.SourceSpan
	statusRows   []*types.FieldStatus
	staleSpanIDs []uuid.UUID
	stalePaths   []string
}

// locked statuses survive re-extraction untouched: the machine never competes
// with the user or with a verified field.
func locked(st *types.FieldStatus) bool {
	return st != nil && (st.Status == types.FieldUserEntered || st.Status == types.FieldVerified)
}

func (p *Pipeline) buildDraft(
	recipe *types.Recipe,
	asset *types.MediaAsset,
	ext *extractor.Result,
	fb *fallback.Result,
	byID map[uuid.UUID]*types.OCRLine,
	statusByPath map[string]*types.FieldStatus,
) *draftChange {
	d := &draftChange{
		recipe:      recipe,
		spansByPath: map[string][]*types.SourceSpan{},
	}

	p.mergeScalars(d, asset, ext, fb, byID, statusByPath)
	p.mergeIngredients(d, asset, ext, fb, byID, statusByPath)
	p.mergeSteps(d, asset, ext, fb, byID, statusByPath)
	p.mergeTags(d, asset, ext, byID, statusByPath)

	return d
}

func (p *Pipeline) mergeScalars(
	d *draftChange,
	asset *types.MediaAsset,
	ext *extractor.Result,
	fb *fallback.Result,
	byID map[uuid.UUID]*types.OCRLine,
	statusByPath map[string]*types.FieldStatus,
) {
	recipe := d.recipe

	type scalar struct {
		path   string
		vision extractor.Field
		ocr    []fallback.Candidate
		apply  func(winner *merge.Candidate)
	}

	fbPtr := func(c *fallback.Candidate) []fallback.Candidate {
		if c == nil {
			return nil
		}
		return []fallback.Candidate{*c}
	}
	intFromWinner := func(c *merge.Candidate) *int {
		if v, ok := c.Value.(*int); ok {
			return v
		}
		return nil
	}

	scalars := []scalar{
		{
			path: fieldpath.Title, vision: visionField(ext, func(r *extractor.Result) extractor.Field { return r.Title }),
			ocr:   fbPtr(fb.Title),
			apply: func(c *merge.Candidate) { recipe.Title = c.Text },
		},
		{
			path: fieldpath.Servings, vision: visionField(ext, func(r *extractor.Result) extractor.Field { return r.Servings }),
			ocr:   fb.Servings,
			apply: func(c *merge.Candidate) { recipe.Servings = intFromWinner(c) },
		},
		{
			path: fieldpath.TimesPrep, vision: visionField(ext, func(r *extractor.Result) extractor.Field { return r.PrepTime }),
			ocr:   fbPtr(fb.PrepTime),
			apply: func(c *merge.Candidate) { recipe.Times.PrepMin = intFromWinner(c) },
		},
		{
			path: fieldpath.TimesCook, vision: visionField(ext, func(r *extractor.Result) extractor.Field { return r.CookTime }),
			ocr:   fbPtr(fb.CookTime),
			apply: func(c *merge.Candidate) { recipe.Times.CookMin = intFromWinner(c) },
		},
		{
			path: fieldpath.TimesTotal, vision: visionField(ext, func(r *extractor.Result) extractor.Field { return r.TotalTime }),
			ocr:   fbPtr(fb.TotalTime),
			apply: func(c *merge.Candidate) { recipe.Times.TotalMin = intFromWinner(c) },
		},
	}

	for _, sc := range scalars {
		if locked(statusByPath[sc.path]) {
			continue
		}

		var candidates []merge.Candidate
		if sc.vision.IsPresent() {
			candidates = append(candidates, merge.Candidate{
				FieldPath: sc.path,
				Source:    types.SourceMethodVision,
				Text:      candidateText(sc.vision),
				Value:     sc.vision.IntValue(),
				Span:      extractor.BuildSpan(recipe.ID, asset.ID, sc.path, sc.vision, byID),
			})
		}
		for i := range sc.ocr {
			c := sc.ocr[i]
			candidates = append(candidates, merge.Candidate{
				FieldPath: sc.path,
				Source:    types.SourceMethodOCR,
				Text:      ocrCandidateText(c),
				Value:     intFromFloat(c.Value),
				Span:      c.Span(recipe.ID, asset.ID, sc.path),
			})
		}

		decision := p.policy.Decide(sc.path, candidates)
		switch decision.Status {
		case types.FieldAmbiguous:
			sc.apply(&merge.Candidate{}) // clear: ambiguity never picks a side
			d.statusRows = append(d.statusRows, &types.FieldStatus{
				RecipeID:  recipe.ID,
				FieldPath: sc.path,
				Status:    types.FieldAmbiguous,
				Notes:     decision.Question,
			})
			d.spansByPath[sc.path] = spansOf(candidates)
		case types.FieldExtracted:
			sc.apply(decision.Winner)
			d.statusRows = append(d.statusRows, &types.FieldStatus{
				RecipeID:  recipe.ID,
				FieldPath: sc.path,
				Status:    types.FieldExtracted,
			})
			if decision.Winner.Span != nil {
				d.spansByPath[sc.path] = []*types.SourceSpan{decision.Winner.Span}
			}
		default:
			sc.apply(&merge.Candidate{})
			d.statusRows = append(d.statusRows, &types.FieldStatus{
				RecipeID:  recipe.ID,
				FieldPath: sc.path,
				Status:    types.FieldMissing,
			})
			d.spansByPath[sc.path] = nil
		}
	}

	// The estimate rides along structurally separate from servings and keeps
	// an earlier user approval if the new run found nothing better.
	if ext != nil && ext.ServingsEstimate.IsEstimate() {
		if recipe.ServingsEstimate == nil || !recipe.ServingsEstimate.ApprovedByUser {
			v := ext.ServingsEstimate.IntValue()
			if v != nil {
				recipe.ServingsEstimate = &types.ServingsEstimate{
					Value:      *v,
					Confidence: ext.ServingsEstimate.Confidence,
					Basis:      ext.ServingsEstimate.EstimateBasis,
				}
			}
		}
	}
}

func (p *Pipeline) mergeIngredients(
	d *draftChange,
	asset *types.MediaAsset,
	ext *extractor.Result,
	fb *fallback.Result,
	byID map[uuid.UUID]*types.OCRLine,
	statusByPath map[string]*types.FieldStatus,
) {
	if listLocked(statusByPath, fieldpath.IsIngredient) {
		return
	}
	recipe := d.recipe
	prevLen := len(recipe.Ingredients)

	var rows types.Ingredients
	var spans []*types.SourceSpan
	if ext != nil && len(ext.Ingredients) > 0 {
		for _, f := range ext.Ingredients {
			rows = append(rows, types.Ingredient{OriginalText: f.Text})
			spans = append(spans, extractor.BuildSpan(recipe.ID, asset.ID, "", f, byID))
		}
	} else {
		for i := range fb.Ingredients {
			c := fb.Ingredients[i]
			rows = append(rows, types.Ingredient{OriginalText: c.Text})
			spans = append(spans, c.Span(recipe.ID, asset.ID, ""))
		}
	}
	rows, spans = dedupAligned(rows, spans)
	recipe.Ingredients = rows

	for i := range rows {
		path := fieldpath.Ingredient(i)
		d.statusRows = append(d.statusRows, &types.FieldStatus{
			RecipeID: recipe.ID, FieldPath: path, Status: types.FieldExtracted,
		})
		if spans[i] != nil {
			spans[i].FieldPath = path
			d.spansByPath[path] = []*types.SourceSpan{spans[i]}
		}
	}
	p.markStale(d, prevLen, len(rows), fieldpath.Ingredient)
}

func (p *Pipeline) mergeSteps(
	d *draftChange,
	asset *types.MediaAsset,
	ext *extractor.Result,
	fb *fallback.Result,
	byID map[uuid.UUID]*types.OCRLine,
	statusByPath map[string]*types.FieldStatus,
) {
	if listLocked(statusByPath, fieldpath.IsStep) {
		return
	}
	recipe := d.recipe
	prevLen := len(recipe.Steps)

	var rows types.Steps
	var spans []*types.SourceSpan
	if ext != nil && len(ext.Steps) > 0 {
		for _, f := range ext.Steps {
			rows = append(rows, types.Step{Text: f.Text})
			spans = append(spans, extractor.BuildSpan(recipe.ID, asset.ID, "", f, byID))
		}
	} else {
		for i := range fb.Steps {
			c := fb.Steps[i]
			rows = append(rows, types.Step{Text: c.Text})
			spans = append(spans, c.Span(recipe.ID, asset.ID, ""))
		}
	}
	recipe.Steps = rows

	for i := range rows {
		path := fieldpath.Step(i)
		d.statusRows = append(d.statusRows, &types.FieldStatus{
			RecipeID: recipe.ID, FieldPath: path, Status: types.FieldExtracted,
		})
		if spans[i] != nil {
			spans[i].FieldPath = path
			d.spansByPath[path] = []*types.SourceSpan{spans[i]}
		}
	}
	p.markStale(d, prevLen, len(rows), fieldpath.Step)
}

func (p *Pipeline) mergeTags(
	d *draftChange,
	asset *types.MediaAsset,
	ext *extractor.Result,
	byID map[uuid.UUID]*types.OCRLine,
	statusByPath map[string]*types.FieldStatus,
) {
	if locked(statusByPath[fieldpath.Tags]) {
		return
	}
	recipe := d.recipe
	recipe.Tags = nil
	var spans []*types.SourceSpan
	if ext != nil {
		for _, f := range ext.Tags {
			recipe.Tags = append(recipe.Tags, f.Text)
			if sp := extractor.BuildSpan(recipe.ID, asset.ID, fieldpath.Tags, f, byID); sp != nil {
				spans = append(spans, sp)
			}
		}
	}
	if len(recipe.Tags) > 0 {
		d.statusRows = append(d.statusRows, &types.FieldStatus{
			RecipeID: recipe.ID, FieldPath: fieldpath.Tags, Status: types.FieldExtracted,
		})
		d.spansByPath[fieldpath.Tags] = spans
	} else {
		d.spansByPath[fieldpath.Tags] = nil
		d.stalePaths = append(d.stalePaths, fieldpath.Tags)
	}
}

// markStale removes spans and statuses for list indices past the new length.
func (p *Pipeline) markStale(d *draftChange, prevLen, newLen int, path func(int) string) {
	for i := newLen; i < prevLen; i++ {
		stale := path(i)
		d.stalePaths = append(d.stalePaths, stale)
		d.spansByPath[stale] = nil
	}
}

func listLocked(statusByPath map[string]*types.FieldStatus, match func(string) bool) bool {
	for path, st := range statusByPath {
		if match(path) && locked(st) {
			return true
		}
	}
	return false
}

// dedupAligned collapses duplicate ingredients while keeping the span slice
// index-aligned with the surviving rows.
func dedupAligned(rows types.Ingredients, spans []*types.SourceSpan) (types.Ingredients, []*types.SourceSpan) {
	deduped := normalize.DedupIngredients(rows)
	if len(deduped) == len(rows) {
		return deduped, spans
	}
	kept := make([]*types.SourceSpan, 0, len(deduped))
	seen := 0
	for i, row := range rows {
		if seen < len(deduped) && deduped[seen].OriginalText == row.OriginalText {
			kept = append(kept, spans[i])
			seen++
		}
	}
	return deduped, kept
}

func visionField(ext *extractor.Result, pick func(*extractor.Result) extractor.Field) extractor.Field {
	if ext == nil {
		return extractor.Absent()
	}
	return pick(ext)
}

// candidateText is the comparable representation used for conflict detection.
// Numeric fields compare on the parsed value so "Serves 4" and "4" agree.
func candidateText(f extractor.Field) string {
	if v := f.IntValue(); v != nil {
		return strconv.Itoa(*v)
	}
	return f.Text
}

func ocrCandidateText(c fallback.Candidate) string {
	if c.Value != nil {
		return strconv.Itoa(int(*c.Value + 0.5))
	}
	return c.Text
}

func intFromFloat(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(*v + 0.5)
	return &n
}

func spansOf(candidates []merge.Candidate) []*types.SourceSpan {
	var out []*types.SourceSpan
	for _, c := range candidates {
		if c.Span != nil {
			out = append(out, c.Span)
		}
	}
	return out
}
