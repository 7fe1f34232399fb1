package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/data/repos/testutil"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Save(_ context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newAssetFixture(t *testing.T) (AssetService, *memStore, repos.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store := newMemStore()
	assets := repos.NewMediaAssetRepo(db, log)
	lines := repos.NewOCRLineRepo(db, log)
	jobs := repos.NewJobRunRepo(db, log)
	pipeline := NewPipelineService(jobs, NopNotifier{}, log)
	return NewAssetService(store, assets, lines, pipeline, log), store, jobs
}

func TestUploadStoresAndEnqueues(t *testing.T) {
	svc, store, _ := newAssetFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	userID := uuid.New()

	res, err := svc.Upload(dbc, userID, "card.jpg", bytes.NewReader([]byte("jpeg-bytes")), "grandma's box")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Deduplicated {
		t.Fatalf("first upload flagged as duplicate")
	}
	if res.Asset.Type != types.AssetTypeImage {
		t.Fatalf("type = %q", res.Asset.Type)
	}
	if res.Asset.OCRStatus != types.OCRStatusPending {
		t.Fatalf("ocr status = %q", res.Asset.OCRStatus)
	}
	if res.Job == nil || res.Job.JobType != types.JobTypeRecipeIngest {
		t.Fatalf("job = %+v", res.Job)
	}
	store.mu.Lock()
	stored := len(store.objects)
	store.mu.Unlock()
	if stored != 1 {
		t.Fatalf("stored %d objects, want 1", stored)
	}
}

func TestUploadDeduplicatesSameBytes(t *testing.T) {
	svc, store, _ := newAssetFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	userID := uuid.New()
	payload := []byte("the same photo twice")

	first, err := svc.Upload(dbc, userID, "card.png", bytes.NewReader(payload), "")
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := svc.Upload(dbc, userID, "renamed.png", bytes.NewReader(payload), "")
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if !second.Deduplicated {
		t.Fatalf("identical bytes not deduplicated")
	}
	if second.Asset.ID != first.Asset.ID {
		t.Fatalf("dedup returned a different asset")
	}
	if second.Job != nil {
		t.Fatalf("dedup should not enqueue a new pipeline")
	}

	// A different user uploading the same bytes gets their own asset.
	other, err := svc.Upload(dbc, uuid.New(), "card.png", bytes.NewReader(payload), "")
	if err != nil {
		t.Fatalf("other user upload: %v", err)
	}
	if other.Deduplicated {
		t.Fatalf("dedup must be scoped per user")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.objects) != 2 {
		t.Fatalf("stored %d objects, want 2", len(store.objects))
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	svc, _, _ := newAssetFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	_, err := svc.Upload(dbc, uuid.New(), "recipe.docx", bytes.NewReader([]byte("doc")), "")
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("err = %v, want ErrUnsupportedMedia", err)
	}
}

func TestReingestBlockedWhileBusy(t *testing.T) {
	svc, _, _ := newAssetFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	userID := uuid.New()

	res, err := svc.Upload(dbc, userID, "card.jpg", bytes.NewReader([]byte("busy-photo")), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// The ingest job from the upload is still queued.
	if _, err := svc.Reingest(dbc, userID, res.Asset.ID); !errors.Is(err, ErrPipelineBusy) {
		t.Fatalf("err = %v, want ErrPipelineBusy", err)
	}
}
