package assets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/recipenow/recipenow-backend/internal/data/repos/testutil"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
)

func TestMediaAssetRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewMediaAssetRepo(db, testutil.Logger(t))

	userID := uuid.New()
	a := testutil.SeedAsset(t, ctx, tx, userID, "aaaa1111")

	got, err := repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Fatalf("GetByID: expected %v got %v", a.ID, got)
	}

	// Content-hash dedup lookup.
	bySHA, err := repo.GetByUserAndSHA(dbc, userID, "aaaa1111")
	if err != nil {
		t.Fatalf("GetByUserAndSHA: %v", err)
	}
	if bySHA == nil || bySHA.ID != a.ID {
		t.Fatalf("GetByUserAndSHA: expected %v got %v", a.ID, bySHA)
	}
	// Same hash under a different user is a different asset space.
	otherUser, err := repo.GetByUserAndSHA(dbc, uuid.New(), "aaaa1111")
	if err != nil {
		t.Fatalf("GetByUserAndSHA (other user): %v", err)
	}
	if otherUser != nil {
		t.Fatalf("GetByUserAndSHA (other user): expected nil got %v", otherUser)
	}

	if err := repo.UpdateFields(dbc, a.ID, map[string]interface{}{
		"ocr_status":       types.OCRStatusCompleted,
		"rotation_applied": 90,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.OCRStatus != types.OCRStatusCompleted || got.RotationApplied != 90 {
		t.Fatalf("UpdateFields not applied: %+v", got)
	}

	list, err := repo.ListByUser(dbc, userID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByUser: err=%v len=%d", err, len(list))
	}

	if err := repo.SoftDeleteByIDs(dbc, []uuid.UUID{a.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	got, err = repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("GetByID after delete: expected nil got %v", got)
	}
}

func TestOCRLineRepoDocumentOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewOCRLineRepo(db, testutil.Logger(t))

	a := testutil.SeedAsset(t, ctx, tx, uuid.New(), "bbbb2222")

	// Seeded out of insertion order on purpose; line_index wins.
	second := testutil.SeedOCRLine(t, ctx, tx, a.ID, 1, "2 cups flour", types.BBox{X: 10, Y: 48, W: 150, H: 20})
	first := testutil.SeedOCRLine(t, ctx, tx, a.ID, 0, "Banana Bread", types.BBox{X: 10, Y: 10, W: 200, H: 24})
	third := testutil.SeedOCRLine(t, ctx, tx, a.ID, 2, "1 tsp baking soda", types.BBox{X: 10, Y: 72, W: 170, H: 20})

	lines, err := repo.GetByAssetID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByAssetID: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("GetByAssetID: expected 3 lines, got %d", len(lines))
	}
	wantOrder := []uuid.UUID{first.ID, second.ID, third.ID}
	for i, l := range lines {
		if l.ID != wantOrder[i] {
			t.Fatalf("GetByAssetID: line %d out of order: got %v want %v", i, l.ID, wantOrder[i])
		}
	}
	if lines[0].BBox.W != 200 {
		t.Fatalf("bbox round trip: got %+v", lines[0].BBox)
	}

	// Re-ingest replaces lines wholesale.
	if err := repo.DeleteByAssetID(dbc, a.ID); err != nil {
		t.Fatalf("DeleteByAssetID: %v", err)
	}
	lines, err = repo.GetByAssetID(dbc, a.ID)
	if err != nil || len(lines) != 0 {
		t.Fatalf("GetByAssetID after delete: err=%v len=%d", err, len(lines))
	}
}
