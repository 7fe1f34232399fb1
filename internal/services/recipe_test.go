package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/data/repos/testutil"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
)

type svcFixture struct {
	db       *gorm.DB
	recipes  repos.RecipeRepo
	spans    repos.SourceSpanRepo
	statuses repos.FieldStatusRepo
	jobs     repos.JobRunRepo
	svc      RecipeService
}

func newSvcFixture(t *testing.T) *svcFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	recipes := repos.NewRecipeRepo(db, log)
	spans := repos.NewSourceSpanRepo(db, log)
	statuses := repos.NewFieldStatusRepo(db, log)
	jobs := repos.NewJobRunRepo(db, log)
	pipeline := NewPipelineService(jobs, NopNotifier{}, log)

	return &svcFixture{
		db:       db,
		recipes:  recipes,
		spans:    spans,
		statuses: statuses,
		jobs:     jobs,
		svc:      NewRecipeService(db, recipes, spans, statuses, pipeline, log),
	}
}

func (f *svcFixture) seedRecipe(t *testing.T, mutate func(*types.Recipe)) (*types.Recipe, uuid.UUID) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	userID := uuid.New()
	recipe := &types.Recipe{
		ID:      uuid.New(),
		UserID:  userID,
		AssetID: uuid.New(),
		Title:   "Banana Bread",
		Ingredients: types.Ingredients{
			{OriginalText: "2 cups flour"},
			{OriginalText: "3 ripe bananas"},
		},
		Steps: types.Steps{
			{Text: "Mash the bananas."},
			{Text: "Bake 60 minutes."},
		},
		Status: types.RecipeStatusDraft,
	}
	if mutate != nil {
		mutate(recipe)
	}
	if _, err := f.recipes.Create(dbc, []*types.Recipe{recipe}); err != nil {
		t.Fatalf("seed recipe: %v", err)
	}
	return recipe, userID
}

func (f *svcFixture) seedStatus(t *testing.T, recipeID uuid.UUID, path, status, notes string) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	err := f.statuses.Upsert(dbc, []*types.FieldStatus{{
		RecipeID:  recipeID,
		FieldPath: path,
		Status:    status,
		Notes:     notes,
	}})
	if err != nil {
		t.Fatalf("seed status %s: %v", path, err)
	}
}

// assertFieldRowsMatchContent checks the per-field bookkeeping against the
// recipe content: at most one status row per path, every list element has a
// row, and no row addresses an index past the end of its list.
func (f *svcFixture) assertFieldRowsMatchContent(t *testing.T, dbc dbctx.Context, recipe *types.Recipe) {
	t.Helper()
	rows, err := f.statuses.GetByRecipeID(dbc, recipe.ID)
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

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestPatchSetsUserEnteredStatusAndSpan(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, nil)
	f.seedStatus(t, recipe.ID, fieldpath.Title, types.FieldExtracted, "")

	detail, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: fieldpath.Title, Value: rawJSON(t, "Grandma's Banana Bread")}},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if detail.Recipe.Title != "Grandma's Banana Bread" {
		t.Fatalf("title = %q", detail.Recipe.Title)
	}

	st, err := f.statuses.GetByRecipeAndField(dbc, recipe.ID, fieldpath.Title)
	if err != nil || st == nil {
		t.Fatalf("title status: %v %v", st, err)
	}
	if st.Status != types.FieldUserEntered {
		t.Fatalf("title status = %q, want user_entered", st.Status)
	}

	spans, err := f.spans.GetByRecipeAndField(dbc, recipe.ID, fieldpath.Title)
	if err != nil {
		t.Fatalf("spans: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("got %d title spans, want 1", len(spans))
	}
	if spans[0].SourceMethod != types.SourceMethodUser {
		t.Fatalf("span method = %q", spans[0].SourceMethod)
	}
	if spans[0].ExtractedText != "Grandma's Banana Bread" {
		t.Fatalf("span text = %q", spans[0].ExtractedText)
	}
}

func TestPatchResolvesAmbiguousServings(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, nil)
	f.seedStatus(t, recipe.ID, fieldpath.Servings, types.FieldAmbiguous,
		"The card shows conflicting values for servings: \"4\" and \"6\". Which one is correct?")

	detail, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: fieldpath.Servings, Value: rawJSON(t, 4)}},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if detail.Recipe.Servings == nil || *detail.Recipe.Servings != 4 {
		t.Fatalf("servings = %v, want 4", detail.Recipe.Servings)
	}

	st, err := f.statuses.GetByRecipeAndField(dbc, recipe.ID, fieldpath.Servings)
	if err != nil || st == nil {
		t.Fatalf("servings status: %v %v", st, err)
	}
	if st.Status != types.FieldUserEntered {
		t.Fatalf("status = %q, want user_entered", st.Status)
	}
	if st.Notes != "" {
		t.Fatalf("notes should be cleared, got %q", st.Notes)
	}
	for _, issue := range detail.Recipe.QualityIssues {
		if issue == "ambiguous field present" {
			t.Fatalf("ambiguity issue should be gone after resolution")
		}
	}
}

func TestPatchRejectsInvalidPath(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, nil)

	_, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: "nutrition.calories", Value: rawJSON(t, 250)}},
	})
	if !errors.Is(err, ErrInvalidFieldPath) {
		t.Fatalf("err = %v, want ErrInvalidFieldPath", err)
	}

	_, err = f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: fieldpath.ServingsEstimate, Value: rawJSON(t, 4)}},
	})
	if !errors.Is(err, ErrInvalidFieldPath) {
		t.Fatalf("estimate path err = %v, want ErrInvalidFieldPath", err)
	}
}

func TestPatchApproveEstimate(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	approve := true

	recipe, userID := f.seedRecipe(t, nil)
	if _, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{ApproveServingsEstimate: &approve}); !errors.Is(err, ErrNoEstimate) {
		t.Fatalf("err = %v, want ErrNoEstimate", err)
	}

	withEst, userID2 := f.seedRecipe(t, func(r *types.Recipe) {
		r.ServingsEstimate = &types.ServingsEstimate{Value: 4, Basis: "two chicken breasts"}
	})
	detail, err := f.svc.Patch(dbc, userID2, withEst.ID, PatchRequest{ApproveServingsEstimate: &approve})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if detail.Recipe.Servings != nil {
		t.Fatalf("approval must not promote the estimate into servings")
	}
	if detail.Recipe.ServingsEstimate == nil || !detail.Recipe.ServingsEstimate.ApprovedByUser {
		t.Fatalf("estimate not approved: %+v", detail.Recipe.ServingsEstimate)
	}
	if !detail.Recipe.HasServingsConfirmation() {
		t.Fatalf("approved estimate should satisfy the servings gate")
	}
}

func TestPatchRemovesIngredient(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, nil)
	f.seedStatus(t, recipe.ID, fieldpath.Ingredient(0), types.FieldExtracted, "")
	f.seedStatus(t, recipe.ID, fieldpath.Ingredient(1), types.FieldUserEntered, "")
	f.seedStatus(t, recipe.ID, fieldpath.Step(0), types.FieldExtracted, "")
	f.seedStatus(t, recipe.ID, fieldpath.Step(1), types.FieldExtracted, "")
	if _, err := f.spans.Create(dbc, []*types.SourceSpan{{
		RecipeID:      recipe.ID,
		FieldPath:     fieldpath.Ingredient(1),
		AssetID:       recipe.AssetID,
		ExtractedText: "3 ripe bananas",
		OCRConfidence: 1,
		SourceMethod:  types.SourceMethodUser,
	}}); err != nil {
		t.Fatalf("seed span: %v", err)
	}

	detail, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: fieldpath.Ingredient(0), Value: rawJSON(t, "")}},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if len(detail.Recipe.Ingredients) != 1 {
		t.Fatalf("got %d ingredients, want 1", len(detail.Recipe.Ingredients))
	}
	if detail.Recipe.Ingredients[0].OriginalText != "3 ripe bananas" {
		t.Fatalf("remaining ingredient = %q", detail.Recipe.Ingredients[0].OriginalText)
	}

	// The surviving element shifted into index 0 and its rows moved with it.
	st, err := f.statuses.GetByRecipeAndField(dbc, recipe.ID, fieldpath.Ingredient(0))
	if err != nil || st == nil {
		t.Fatalf("shifted status: %v %v", st, err)
	}
	if st.Status != types.FieldUserEntered {
		t.Fatalf("shifted status = %q, want user_entered", st.Status)
	}
	spans, err := f.spans.GetByRecipeAndField(dbc, recipe.ID, fieldpath.Ingredient(0))
	if err != nil {
		t.Fatalf("shifted spans: %v", err)
	}
	if len(spans) != 1 || spans[0].ExtractedText != "3 ripe bananas" {
		t.Fatalf("shifted spans = %+v", spans)
	}

	// The list shrank, so the row addressing the old last index is gone.
	st, err = f.statuses.GetByRecipeAndField(dbc, recipe.ID, fieldpath.Ingredient(1))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != nil {
		t.Fatalf("stale status row survived: %+v", st)
	}

	f.assertFieldRowsMatchContent(t, dbc, detail.Recipe)
}

func TestPatchRemovesStepKeepsLaterRows(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, func(r *types.Recipe) {
		r.Steps = types.Steps{
			{Text: "Preheat the oven."},
			{Text: "Mash the bananas."},
			{Text: "Bake 60 minutes."},
		}
	})
	f.seedStatus(t, recipe.ID, fieldpath.Ingredient(0), types.FieldExtracted, "")
	f.seedStatus(t, recipe.ID, fieldpath.Ingredient(1), types.FieldExtracted, "")
	for i := 0; i < 3; i++ {
		f.seedStatus(t, recipe.ID, fieldpath.Step(i), types.FieldExtracted, "")
	}

	detail, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: fieldpath.Step(1), Value: rawJSON(t, "")}},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if len(detail.Recipe.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(detail.Recipe.Steps))
	}
	if detail.Recipe.Steps[1].Text != "Bake 60 minutes." {
		t.Fatalf("step 1 = %q", detail.Recipe.Steps[1].Text)
	}

	f.assertFieldRowsMatchContent(t, dbc, detail.Recipe)
}

func TestVerifyReportsUnmetGates(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, func(r *types.Recipe) {
		r.Steps = nil
	})

	_, err := f.svc.Verify(dbc, userID, recipe.ID)
	var vErr *VerifyValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want VerifyValidationError", err)
	}
	want := []string{"steps", "servings_confirmation", "times_confirmation"}
	if !reflect.DeepEqual(vErr.Unmet, want) {
		t.Fatalf("unmet = %v, want %v", vErr.Unmet, want)
	}

	// Add a step; the checklist shrinks.
	if _, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		Fields: []FieldEdit{{Path: fieldpath.Step(0), Value: rawJSON(t, "Bake until golden.")}},
	}); err != nil {
		t.Fatalf("Patch step: %v", err)
	}
	_, err = f.svc.Verify(dbc, userID, recipe.ID)
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want VerifyValidationError", err)
	}
	want = []string{"servings_confirmation", "times_confirmation"}
	if !reflect.DeepEqual(vErr.Unmet, want) {
		t.Fatalf("unmet = %v, want %v", vErr.Unmet, want)
	}

	// Confirm both unknowns; verification succeeds.
	yes := true
	if _, err := f.svc.Patch(dbc, userID, recipe.ID, PatchRequest{
		ServingsConfirmedUnknown: &yes,
		TimesConfirmedUnknown:    &yes,
	}); err != nil {
		t.Fatalf("Patch confirmations: %v", err)
	}
	verified, err := f.svc.Verify(dbc, userID, recipe.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.Status != types.RecipeStatusVerified {
		t.Fatalf("status = %q, want verified", verified.Status)
	}
}

func TestVerifyPromotesFieldStatuses(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, func(r *types.Recipe) {
		r.ServingsConfirmedUnknown = true
		r.TimesConfirmedUnknown = true
	})
	f.seedStatus(t, recipe.ID, fieldpath.Title, types.FieldExtracted, "")
	f.seedStatus(t, recipe.ID, fieldpath.Ingredient(0), types.FieldUserEntered, "")
	f.seedStatus(t, recipe.ID, fieldpath.Tags, types.FieldAmbiguous, "Which tag applies?")

	if _, err := f.svc.Verify(dbc, userID, recipe.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	rows, err := f.statuses.GetByRecipeID(dbc, recipe.ID)
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	byPath := map[string]*types.FieldStatus{}
	for _, st := range rows {
		byPath[st.FieldPath] = st
	}
	if got := byPath[fieldpath.Title].Status; got != types.FieldVerified {
		t.Fatalf("title status = %q, want verified", got)
	}
	if got := byPath[fieldpath.Ingredient(0)].Status; got != types.FieldVerified {
		t.Fatalf("ingredient status = %q, want verified", got)
	}
	// Ambiguous rows do not gate verification and are left as-is.
	if got := byPath[fieldpath.Tags].Status; got != types.FieldAmbiguous {
		t.Fatalf("tags status = %q, want ambiguous", got)
	}
}

func TestReextractRejectedWhilePipelineBusy(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, userID := f.seedRecipe(t, nil)

	job, err := f.svc.Reextract(dbc, userID, recipe.ID)
	if err != nil {
		t.Fatalf("Reextract: %v", err)
	}
	if job.JobType != types.JobTypeRecipeExtract || job.Status != types.JobStatusQueued {
		t.Fatalf("job = %+v", job)
	}

	if _, err := f.svc.Reextract(dbc, userID, recipe.ID); !errors.Is(err, ErrPipelineBusy) {
		t.Fatalf("second enqueue err = %v, want ErrPipelineBusy", err)
	}
}

func TestGetRequiresOwnership(t *testing.T) {
	f := newSvcFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	recipe, _ := f.seedRecipe(t, nil)

	if _, err := f.svc.Get(dbc, uuid.New(), recipe.ID); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("err = %v, want ErrRecipeNotFound", err)
	}
	if _, err := f.svc.Get(dbc, recipe.UserID, uuid.New()); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("err = %v, want ErrRecipeNotFound", err)
	}
}
