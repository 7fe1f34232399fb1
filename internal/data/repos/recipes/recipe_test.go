package recipes

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/recipenow/recipenow-backend/internal/data/repos/testutil"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
)

func TestRecipeRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewRecipeRepo(db, testutil.Logger(t))

	userID := uuid.New()
	asset := testutil.SeedAsset(t, ctx, tx, userID, "cccc3333")
	r := testutil.SeedRecipe(t, ctx, tx, userID, asset.ID)

	got, err := repo.GetByID(dbc, r.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.ID != r.ID {
		t.Fatalf("GetByID: expected %v got %v", r.ID, got)
	}

	got.Title = "Banana Bread"
	got.Ingredients = types.Ingredients{
		{OriginalText: "2 cups flour", NameNorm: "flour"},
		{OriginalText: "1 tsp baking soda", NameNorm: "baking soda"},
	}
	got.Steps = types.Steps{{Text: "Mix dry ingredients."}}
	got.Tags = types.StringList{"baking"}
	if err := repo.Update(dbc, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	byAsset, err := repo.GetByAssetID(dbc, asset.ID)
	if err != nil {
		t.Fatalf("GetByAssetID: %v", err)
	}
	if byAsset == nil || byAsset.Title != "Banana Bread" {
		t.Fatalf("GetByAssetID: got %+v", byAsset)
	}
	if len(byAsset.Ingredients) != 2 || byAsset.Ingredients[0].OriginalText != "2 cups flour" {
		t.Fatalf("ingredients round trip: %+v", byAsset.Ingredients)
	}

	list, err := repo.ListByUser(dbc, userID, []string{types.RecipeStatusDraft})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByUser: err=%v len=%d", err, len(list))
	}
	list, err = repo.ListByUser(dbc, userID, []string{types.RecipeStatusVerified})
	if err != nil || len(list) != 0 {
		t.Fatalf("ListByUser (verified): err=%v len=%d", err, len(list))
	}

	if err := repo.UpdateFields(dbc, r.ID, map[string]interface{}{"status": types.RecipeStatusNeedsReview}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ = repo.GetByID(dbc, r.ID)
	if got.Status != types.RecipeStatusNeedsReview {
		t.Fatalf("UpdateFields not applied: %+v", got)
	}
}

func TestSourceSpanRepoReplaceForField(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewSourceSpanRepo(db, testutil.Logger(t))

	userID := uuid.New()
	asset := testutil.SeedAsset(t, ctx, tx, userID, "dddd4444")
	r := testutil.SeedRecipe(t, ctx, tx, userID, asset.ID)

	orig := &types.SourceSpan{
		ID:            uuid.New(),
		RecipeID:      r.ID,
		FieldPath:     fieldpath.Title,
		AssetID:       asset.ID,
		BBox:          types.BBox{X: 10, Y: 10, W: 200, H: 24},
		OCRConfidence: 0.8,
		ExtractedText: "Banana Bread",
		SourceMethod:  types.SourceMethodOCR,
	}
	if _, err := repo.Create(dbc, []*types.SourceSpan{orig}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	replacement := &types.SourceSpan{
		ID:            uuid.New(),
		RecipeID:      r.ID,
		FieldPath:     fieldpath.Title,
		AssetID:       asset.ID,
		BBox:          types.BBox{X: 8, Y: 8, W: 220, H: 28},
		OCRConfidence: 0.95,
		ExtractedText: "Banana Bread",
		SourceMethod:  types.SourceMethodVision,
		Evidence:      &types.Evidence{OCRLineIDs: []uuid.UUID{uuid.New()}},
	}
	if err := repo.ReplaceForField(dbc, r.ID, fieldpath.Title, []*types.SourceSpan{replacement}); err != nil {
		t.Fatalf("ReplaceForField: %v", err)
	}

	spans, err := repo.GetByRecipeAndField(dbc, r.ID, fieldpath.Title)
	if err != nil {
		t.Fatalf("GetByRecipeAndField: %v", err)
	}
	if len(spans) != 1 || spans[0].ID != replacement.ID {
		t.Fatalf("ReplaceForField: expected sole replacement, got %d spans", len(spans))
	}
	if spans[0].SourceMethod != types.SourceMethodVision {
		t.Fatalf("source method: got %q", spans[0].SourceMethod)
	}
	if spans[0].Evidence == nil || len(spans[0].Evidence.OCRLineIDs) != 1 {
		t.Fatalf("evidence round trip: %+v", spans[0].Evidence)
	}

	all, err := repo.GetByRecipeID(dbc, r.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("GetByRecipeID: err=%v len=%d", err, len(all))
	}

	if err := repo.DeleteByRecipeID(dbc, r.ID); err != nil {
		t.Fatalf("DeleteByRecipeID: %v", err)
	}
	all, err = repo.GetByRecipeID(dbc, r.ID)
	if err != nil || len(all) != 0 {
		t.Fatalf("GetByRecipeID after delete: err=%v len=%d", err, len(all))
	}
}

func TestFieldStatusRepoUpsert(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewFieldStatusRepo(db, testutil.Logger(t))

	userID := uuid.New()
	asset := testutil.SeedAsset(t, ctx, tx, userID, "eeee5555")
	r := testutil.SeedRecipe(t, ctx, tx, userID, asset.ID)

	rows := []*types.FieldStatus{
		{ID: uuid.New(), RecipeID: r.ID, FieldPath: fieldpath.Title, Status: types.FieldExtracted},
		{ID: uuid.New(), RecipeID: r.ID, FieldPath: fieldpath.Servings, Status: types.FieldMissing},
	}
	if err := repo.Upsert(dbc, rows); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Second write for the same field replaces in place, no duplicate row.
	if err := repo.Upsert(dbc, []*types.FieldStatus{
		{ID: uuid.New(), RecipeID: r.ID, FieldPath: fieldpath.Servings, Status: types.FieldAmbiguous, Notes: "serves 4 or 6?"},
	}); err != nil {
		t.Fatalf("Upsert (conflict): %v", err)
	}

	all, err := repo.GetByRecipeID(dbc, r.ID)
	if err != nil {
		t.Fatalf("GetByRecipeID: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetByRecipeID: expected 2 rows, got %d", len(all))
	}

	servings, err := repo.GetByRecipeAndField(dbc, r.ID, fieldpath.Servings)
	if err != nil {
		t.Fatalf("GetByRecipeAndField: %v", err)
	}
	if servings == nil || servings.Status != types.FieldAmbiguous || servings.Notes == "" {
		t.Fatalf("upsert conflict result: %+v", servings)
	}
}
