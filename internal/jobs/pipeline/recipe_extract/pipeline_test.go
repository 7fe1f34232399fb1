package recipe_extract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/clients/openai"
	"github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/data/repos/testutil"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/ingestion/extractor"
	"github.com/recipenow/recipenow-backend/internal/ingestion/fallback"
	"github.com/recipenow/recipenow-backend/internal/ingestion/merge"
	jobrt "github.com/recipenow/recipenow-backend/internal/jobs/runtime"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/services"
)

type fixture struct {
	db       *gorm.DB
	assets   repos.MediaAssetRepo
	lines    repos.OCRLineRepo
	recipes  repos.RecipeRepo
	spans    repos.SourceSpanRepo
	statuses repos.FieldStatusRepo
	jobs     repos.JobRunRepo
	pipeline services.PipelineService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	jobs := repos.NewJobRunRepo(db, log)
	return &fixture{
		db:       db,
		assets:   repos.NewMediaAssetRepo(db, log),
		lines:    repos.NewOCRLineRepo(db, log),
		recipes:  repos.NewRecipeRepo(db, log),
		spans:    repos.NewSourceSpanRepo(db, log),
		statuses: repos.NewFieldStatusRepo(db, log),
		jobs:     jobs,
		pipeline: services.NewPipelineService(jobs, services.NopNotifier{}, log),
	}
}

func (f *fixture) newPipeline(t *testing.T, ext *extractor.StructuredExtractor) *Pipeline {
	t.Helper()
	log := testutil.Logger(t)
	return New(f.db, log, fakeStore{}, ext, fallback.NewParser(log), merge.NewPolicy(log),
		f.assets, f.lines, f.recipes, f.spans, f.statuses, f.pipeline)
}

type fakeStore struct{}

func (fakeStore) Save(ctx context.Context, key string, r io.Reader) error { return nil }
func (fakeStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("card-image"))), nil
}
func (fakeStore) Delete(ctx context.Context, key string) error { return nil }

type cannedModel struct{ output map[string]any }

func (m cannedModel) GenerateJSONWithImages(ctx context.Context, system, user string, images []openai.ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	return m.output, nil
}

func (f *fixture) seed(t *testing.T, ctx context.Context, texts ...string) (*types.MediaAsset, *types.Recipe, []*types.OCRLine) {
	t.Helper()
	userID := uuid.New()
	asset := testutil.SeedAsset(t, ctx, f.db, userID, uuid.NewString())
	recipe := testutil.SeedRecipe(t, ctx, f.db, userID, asset.ID)
	lines := make([]*types.OCRLine, len(texts))
	for i, text := range texts {
		lines[i] = testutil.SeedOCRLine(t, ctx, f.db, asset.ID, i, text,
			types.BBox{X: 10, Y: float64(30 * i), W: 300, H: 24})
	}
	return asset, recipe, lines
}

func (f *fixture) runJob(t *testing.T, ctx context.Context, asset *types.MediaAsset, recipe *types.Recipe, p *Pipeline) *types.JobRun {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"asset_id":  asset.ID.String(),
		"recipe_id": recipe.ID.String(),
	})
	entityID := asset.ID
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: asset.UserID,
		JobType:     types.JobTypeRecipeExtract,
		EntityType:  types.EntityTypeMediaAsset,
		EntityID:    &entityID,
		Status:      types.JobStatusRunning,
		Stage:       "claimed",
		Payload:     datatypes.JSON(payload),
	}
	if _, err := f.jobs.Create(dbctx.Context{Ctx: ctx}, []*types.JobRun{job}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	jc := jobrt.NewContext(ctx, f.db, job, f.jobs, services.NopNotifier{})
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return job
}

func (f *fixture) reloadRecipe(t *testing.T, ctx context.Context, id uuid.UUID) *types.Recipe {
	t.Helper()
	r, err := f.recipes.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil || r == nil {
		t.Fatalf("reload recipe: %v %v", r, err)
	}
	return r
}

func (f *fixture) statusFor(t *testing.T, ctx context.Context, recipeID uuid.UUID, path string) *types.FieldStatus {
	t.Helper()
	st, err := f.statuses.GetByRecipeAndField(dbctx.Context{Ctx: ctx}, recipeID, path)
	if err != nil {
		t.Fatalf("status %s: %v", path, err)
	}
	return st
}

// assertFieldRowsMatchContent checks that every list element carries exactly
// one status row and that no row points past the end of its list.
func (f *fixture) assertFieldRowsMatchContent(t *testing.T, ctx context.Context, recipe *types.Recipe) {
	t.Helper()
	rows, err := f.statuses.GetByRecipeID(dbctx.Context{Ctx: ctx}, recipe.ID)
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	count := map[string]int{}
	for _, st := range rows {
		count[st.FieldPath]++
	}
	for path, n := range count {
		if n != 1 {
			t.Fatalf("%d status rows for %s, want exactly 1", n, path)
		}
		idx, ok := fieldpath.Index(path)
		if !ok {
			continue
		}
		if fieldpath.IsIngredient(path) && idx >= len(recipe.Ingredients) {
			t.Fatalf("status row %s addresses a missing ingredient", path)
		}
		if fieldpath.IsStep(path) && idx >= len(recipe.Steps) {
			t.Fatalf("status row %s addresses a missing step", path)
		}
	}
	for i := range recipe.Ingredients {
		if count[fieldpath.Ingredient(i)] == 0 {
			t.Fatalf("ingredient %d has no status row", i)
		}
	}
	for i := range recipe.Steps {
		if count[fieldpath.Step(i)] == 0 {
			t.Fatalf("step %d has no status row", i)
		}
	}
}

func TestRunFallbackOnlyBuildsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset, recipe, _ := f.seed(t, ctx,
		"Banana Bread",
		"Serves 4",
		"2 cups flour",
		"1. Mix the dough.",
	)
	p := f.newPipeline(t, nil)

	job := f.runJob(t, ctx, asset, recipe, p)

	got := f.reloadRecipe(t, ctx, recipe.ID)
	if got.Title != "Banana Bread" {
		t.Fatalf("title: %q", got.Title)
	}
	if got.Servings == nil || *got.Servings != 4 {
		t.Fatalf("servings: %v", got.Servings)
	}
	if len(got.Ingredients) != 1 || got.Ingredients[0].OriginalText != "2 cups flour" {
		t.Fatalf("ingredients: %+v", got.Ingredients)
	}
	if len(got.Steps) != 1 || got.Steps[0].Text != "Mix the dough." {
		t.Fatalf("steps: %+v", got.Steps)
	}

	if st := f.statusFor(t, ctx, recipe.ID, fieldpath.Title); st == nil || st.Status != types.FieldExtracted {
		t.Fatalf("title status: %+v", st)
	}
	if st := f.statusFor(t, ctx, recipe.ID, fieldpath.TimesPrep); st == nil || st.Status != types.FieldMissing {
		t.Fatalf("prep status: %+v", st)
	}

	spans, err := f.spans.GetByRecipeAndField(dbctx.Context{Ctx: ctx}, recipe.ID, fieldpath.Title)
	if err != nil || len(spans) != 1 {
		t.Fatalf("title spans: %v %v", spans, err)
	}
	if spans[0].SourceMethod != types.SourceMethodOCR || spans[0].ExtractedText != "Banana Bread" {
		t.Fatalf("title span: %+v", spans[0])
	}

	runs, err := f.jobs.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{job.ID})
	if err != nil || len(runs) != 1 || runs[0].Status != types.JobStatusSucceeded {
		t.Fatalf("job not succeeded: %+v %v", runs, err)
	}

	next, err := f.jobs.GetLatestByEntity(dbctx.Context{Ctx: ctx}, asset.UserID, types.EntityTypeMediaAsset, asset.ID, types.JobTypeRecipeNormalize)
	if err != nil || next == nil || next.Status != types.JobStatusQueued {
		t.Fatalf("normalize not enqueued: %+v %v", next, err)
	}

	f.assertFieldRowsMatchContent(t, ctx, got)
}

func TestRunVisionWinsOverFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset, recipe, lines := f.seed(t, ctx,
		"Banan Bread", // OCR typo the vision model corrects from the photo
		"2 cups flour",
	)

	out := map[string]any{
		"title": map[string]any{
			"text":                  "Banana Bread",
			"evidence_ocr_line_ids": []any{lines[0].ID.String()},
			"confidence":            0.95,
		},
		"servings": nil, "prep_time": nil, "cook_time": nil, "total_time": nil,
		"ingredients": []any{map[string]any{
			"text":                  "2 cups flour",
			"evidence_ocr_line_ids": []any{lines[1].ID.String()},
			"confidence":            0.9,
		}},
		"steps": []any{}, "tags": []any{},
		"servings_estimate":  map[string]any{"value": 4.0, "confidence": 0.5, "basis": "flour quantity suggests 4 portions"},
		"unreadable_regions": []any{},
	}
	ext := extractor.NewStructuredExtractor(cannedModel{output: out}, testutil.Logger(t))
	p := f.newPipeline(t, ext)

	f.runJob(t, ctx, asset, recipe, p)

	got := f.reloadRecipe(t, ctx, recipe.ID)
	if got.Title != "Banana Bread" {
		t.Fatalf("vision title should win: %q", got.Title)
	}
	if got.Servings != nil {
		t.Fatalf("estimate must not promote into servings: %v", got.Servings)
	}
	if got.ServingsEstimate == nil || got.ServingsEstimate.Value != 4 || got.ServingsEstimate.ApprovedByUser {
		t.Fatalf("servings estimate: %+v", got.ServingsEstimate)
	}

	spans, err := f.spans.GetByRecipeAndField(dbctx.Context{Ctx: ctx}, recipe.ID, fieldpath.Title)
	if err != nil || len(spans) != 1 || spans[0].SourceMethod != types.SourceMethodVision {
		t.Fatalf("title span: %+v %v", spans, err)
	}
}

func TestRunPreservesUserEnteredFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset, recipe, _ := f.seed(t, ctx, "Banana Bread", "2 cups flour")

	if err := f.recipes.UpdateFields(dbctx.Context{Ctx: ctx}, recipe.ID, map[string]interface{}{
		"title": "Nana's Secret Bread",
	}); err != nil {
		t.Fatalf("set title: %v", err)
	}
	testutil.SeedFieldStatus(t, ctx, f.db, recipe.ID, fieldpath.Title, types.FieldUserEntered)

	f.runJob(t, ctx, asset, recipe, f.newPipeline(t, nil))

	got := f.reloadRecipe(t, ctx, recipe.ID)
	if got.Title != "Nana's Secret Bread" {
		t.Fatalf("user title overwritten: %q", got.Title)
	}
	if st := f.statusFor(t, ctx, recipe.ID, fieldpath.Title); st == nil || st.Status != types.FieldUserEntered {
		t.Fatalf("title status: %+v", st)
	}
}

func TestRunConflictingServingsIsAmbiguous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset, recipe, _ := f.seed(t, ctx, "Serves 4", "Makes 6")

	f.runJob(t, ctx, asset, recipe, f.newPipeline(t, nil))

	got := f.reloadRecipe(t, ctx, recipe.ID)
	if got.Servings != nil {
		t.Fatalf("ambiguous servings must stay empty: %v", got.Servings)
	}
	st := f.statusFor(t, ctx, recipe.ID, fieldpath.Servings)
	if st == nil || st.Status != types.FieldAmbiguous {
		t.Fatalf("servings status: %+v", st)
	}
	if !strings.Contains(st.Notes, "4") || !strings.Contains(st.Notes, "6") {
		t.Fatalf("question should cite both readings: %q", st.Notes)
	}
	spans, err := f.spans.GetByRecipeAndField(dbctx.Context{Ctx: ctx}, recipe.ID, fieldpath.Servings)
	if err != nil || len(spans) != 2 {
		t.Fatalf("both candidate spans should persist: %+v %v", spans, err)
	}
}

func TestRunIsIdempotentAcrossReruns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asset, recipe, _ := f.seed(t, ctx, "Banana Bread", "2 cups flour", "1. Mix.")
	p := f.newPipeline(t, nil)

	f.runJob(t, ctx, asset, recipe, p)
	f.runJob(t, ctx, asset, recipe, p)

	spans, err := f.spans.GetByRecipeAndField(dbctx.Context{Ctx: ctx}, recipe.ID, fieldpath.Title)
	if err != nil || len(spans) != 1 {
		t.Fatalf("spans must supersede, not accumulate: %d %v", len(spans), err)
	}
	got := f.reloadRecipe(t, ctx, recipe.ID)
	if len(got.Ingredients) != 1 {
		t.Fatalf("ingredients duplicated on re-run: %+v", got.Ingredients)
	}

	f.assertFieldRowsMatchContent(t, ctx, got)
}
