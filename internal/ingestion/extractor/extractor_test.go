package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/recipenow/recipenow-backend/internal/clients/openai"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type fakeModel struct {
	calls   int
	outputs []map[string]any
	errs    []error
}

func (f *fakeModel) GenerateJSONWithImages(ctx context.Context, system, user string, images []openai.ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.outputs) {
		return f.outputs[i], nil
	}
	return nil, errors.New("no canned response")
}

func testExtractor(t *testing.T, model visionModel) *StructuredExtractor {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewStructuredExtractor(model, log)
}

func testLines(ids ...uuid.UUID) map[uuid.UUID]*types.OCRLine {
	out := make(map[uuid.UUID]*types.OCRLine, len(ids))
	for i, id := range ids {
		out[id] = &types.OCRLine{
			ID:         id,
			LineIndex:  i,
			Text:       "line",
			BBox:       types.BBox{X: 10, Y: float64(20 * i), W: 100, H: 15},
			Confidence: 0.9,
		}
	}
	return out
}

func linesSlice(byID map[uuid.UUID]*types.OCRLine) []*types.OCRLine {
	out := make([]*types.OCRLine, 0, len(byID))
	for _, ln := range byID {
		out = append(out, ln)
	}
	return out
}

func fieldObj(text string, ids ...string) map[string]any {
	ev := make([]any, len(ids))
	for i, id := range ids {
		ev[i] = id
	}
	return map[string]any{"text": text, "evidence_ocr_line_ids": ev, "confidence": 0.8}
}

func emptyOutput() map[string]any {
	return map[string]any{
		"title": nil, "servings": nil, "prep_time": nil, "cook_time": nil,
		"total_time": nil, "ingredients": []any{}, "steps": []any{}, "tags": []any{},
		"servings_estimate": nil, "unreadable_regions": []any{},
	}
}

func TestExtractDowngradesFieldsWithoutResolvableEvidence(t *testing.T) {
	id := uuid.New()
	byID := testLines(id)

	out := emptyOutput()
	out["title"] = fieldObj("Banana Bread", id.String())
	// Unknown and garbage evidence ids must not support a value.
	out["servings"] = fieldObj("Serves 4", uuid.New().String())
	out["prep_time"] = fieldObj("10 minutes", "not-a-uuid")

	model := &fakeModel{outputs: []map[string]any{out}}
	res, err := testExtractor(t, model).Extract(context.Background(), []byte("img"), linesSlice(byID))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Title.IsPresent() || res.Title.Text != "Banana Bread" {
		t.Fatalf("expected title present, got %+v", res.Title)
	}
	if !res.Servings.IsAbsent() {
		t.Fatalf("servings with unknown evidence must be absent, got %+v", res.Servings)
	}
	if !res.PrepTime.IsAbsent() {
		t.Fatalf("prep_time with garbage evidence must be absent, got %+v", res.PrepTime)
	}
}

func TestExtractKeepsEstimateSeparate(t *testing.T) {
	id := uuid.New()
	byID := testLines(id)

	out := emptyOutput()
	out["servings_estimate"] = map[string]any{"value": 4.0, "confidence": 0.6, "basis": "quantities suggest 4 portions"}

	model := &fakeModel{outputs: []map[string]any{out}}
	res, err := testExtractor(t, model).Extract(context.Background(), []byte("img"), linesSlice(byID))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.Servings.IsAbsent() {
		t.Fatalf("explicit servings must stay absent, got %+v", res.Servings)
	}
	if !res.ServingsEstimate.IsEstimate() {
		t.Fatalf("expected estimate, got %+v", res.ServingsEstimate)
	}
	if v := res.ServingsEstimate.IntValue(); v == nil || *v != 4 {
		t.Fatalf("expected estimate value 4, got %v", v)
	}
	if res.ServingsEstimate.EstimateBasis == "" {
		t.Fatalf("estimate must carry its basis")
	}
}

func TestExtractRetriesMalformedOnce(t *testing.T) {
	id := uuid.New()
	byID := testLines(id)
	good := emptyOutput()
	good["title"] = fieldObj("Scones", id.String())

	model := &fakeModel{
		errs:    []error{&openai.MalformedOutputError{Reason: "bad json"}},
		outputs: []map[string]any{nil, good},
	}
	res, err := testExtractor(t, model).Extract(context.Background(), []byte("img"), linesSlice(byID))
	if err != nil {
		t.Fatalf("Extract after retry: %v", err)
	}
	if model.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", model.calls)
	}
	if res.Title.Text != "Scones" {
		t.Fatalf("unexpected title: %+v", res.Title)
	}
}

func TestExtractFailsAfterRetryBudget(t *testing.T) {
	model := &fakeModel{errs: []error{
		&openai.MalformedOutputError{Reason: "bad json"},
		&openai.MalformedOutputError{Reason: "still bad"},
	}}
	_, err := testExtractor(t, model).Extract(context.Background(), []byte("img"), nil)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if model.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", model.calls)
	}
}

func TestExtractTransportErrorsAreNotRetriedHere(t *testing.T) {
	boom := errors.New("connection refused")
	model := &fakeModel{errs: []error{boom}}
	_, err := testExtractor(t, model).Extract(context.Background(), []byte("img"), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error surfaced, got %v", err)
	}
	if model.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", model.calls)
	}
}

func TestBuildSpanUnionsEvidenceInDocumentOrder(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	byID := map[uuid.UUID]*types.OCRLine{
		id1: {ID: id1, LineIndex: 1, Text: "second", BBox: types.BBox{X: 10, Y: 40, W: 80, H: 15}, Confidence: 0.8},
		id2: {ID: id2, LineIndex: 0, Text: "first", BBox: types.BBox{X: 20, Y: 10, W: 60, H: 15}, Confidence: 0.6},
	}
	recipeID, assetID := uuid.New(), uuid.New()

	// Evidence cited out of order plus one unresolvable id.
	f := Present("first second", nil, []uuid.UUID{id1, uuid.New(), id2}, 0.9)
	span := BuildSpan(recipeID, assetID, "title", f, byID)
	if span == nil {
		t.Fatalf("expected span")
	}
	if span.ExtractedText != "first second" {
		t.Fatalf("text not in document order: %q", span.ExtractedText)
	}
	want := types.BBox{X: 10, Y: 10, W: 80, H: 45}
	if span.BBox != want {
		t.Fatalf("bbox union mismatch: got %+v want %+v", span.BBox, want)
	}
	if span.SourceMethod != types.SourceMethodVision {
		t.Fatalf("expected vision-api span, got %q", span.SourceMethod)
	}
	if span.Evidence == nil || len(span.Evidence.OCRLineIDs) != 2 {
		t.Fatalf("expected 2 resolved evidence ids, got %+v", span.Evidence)
	}
	if got := span.OCRConfidence; got < 0.69 || got > 0.71 {
		t.Fatalf("expected mean confidence 0.7, got %v", got)
	}
}

func TestBuildSpanNilWhenNothingResolves(t *testing.T) {
	f := Present("ghost", nil, []uuid.UUID{uuid.New()}, 0.9)
	if span := BuildSpan(uuid.New(), uuid.New(), "title", f, nil); span != nil {
		t.Fatalf("expected nil span for unresolvable evidence, got %+v", span)
	}
	if span := BuildSpan(uuid.New(), uuid.New(), "title", Absent(), nil); span != nil {
		t.Fatalf("expected nil span for absent field, got %+v", span)
	}
}
