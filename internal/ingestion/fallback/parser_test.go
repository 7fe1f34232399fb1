package fallback

import (
	"testing"

	"github.com/google/uuid"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

func testParser(t *testing.T) *Parser {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewParser(log)
}

func cardLines(texts ...string) []*types.OCRLine {
	out := make([]*types.OCRLine, len(texts))
	for i, text := range texts {
		out[i] = &types.OCRLine{
			ID:         uuid.New(),
			LineIndex:  i,
			Text:       text,
			BBox:       types.BBox{X: 10, Y: float64(20 * i), W: 200, H: 16},
			Confidence: 0.85,
		}
	}
	return out
}

func TestParseTypicalCard(t *testing.T) {
	res := testParser(t).Parse(cardLines(
		"Grandma's Banana Bread",
		"Serves 8",
		"Prep time: 15 min",
		"Bake time: 1 hr",
		"Ingredients",
		"2 cups flour",
		"3 ripe bananas",
		"1/2 cup sugar",
		"Directions",
		"1. Preheat oven to 350.",
		"2. Mash bananas and mix with sugar",
		"until smooth.",
	))

	if res.Title == nil || res.Title.Text != "Grandma's Banana Bread" {
		t.Fatalf("title: %+v", res.Title)
	}
	if len(res.Servings) != 1 || res.Servings[0].Value == nil || *res.Servings[0].Value != 8 {
		t.Fatalf("servings: %+v", res.Servings)
	}
	if res.PrepTime == nil || *res.PrepTime.Value != 15 {
		t.Fatalf("prep time: %+v", res.PrepTime)
	}
	if res.CookTime == nil || *res.CookTime.Value != 60 {
		t.Fatalf("bake time should map to cook: %+v", res.CookTime)
	}
	if len(res.Ingredients) != 3 {
		t.Fatalf("expected 3 ingredients, got %+v", res.Ingredients)
	}
	if res.Ingredients[1].Text != "3 ripe bananas" {
		t.Fatalf("ingredient order: %+v", res.Ingredients)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %+v", res.Steps)
	}
	if res.Steps[1].Text != "Mash bananas and mix with sugar until smooth." {
		t.Fatalf("step continuation not joined: %q", res.Steps[1].Text)
	}
	if len(res.Steps[1].Lines) != 2 {
		t.Fatalf("continuation line not tracked as evidence: %+v", res.Steps[1].Lines)
	}
}

func TestParseEnumerationWithoutHeaders(t *testing.T) {
	res := testParser(t).Parse(cardLines(
		"Quick Pickles",
		"1 cup vinegar",
		"2 tsp salt",
		"1) Boil the brine.",
		"2) Pour over cucumbers.",
	))
	if res.Title == nil || res.Title.Text != "Quick Pickles" {
		t.Fatalf("title: %+v", res.Title)
	}
	if len(res.Ingredients) != 2 || len(res.Steps) != 2 {
		t.Fatalf("ingredients=%d steps=%d", len(res.Ingredients), len(res.Steps))
	}
	if res.Steps[0].Text != "Boil the brine." {
		t.Fatalf("enumeration not stripped: %q", res.Steps[0].Text)
	}
}

func TestParseNeverInventsValues(t *testing.T) {
	res := testParser(t).Parse(cardLines(
		"Mystery Casserole",
		"A family favorite for cold evenings",
	))
	if len(res.Servings) != 0 || res.PrepTime != nil || res.CookTime != nil || res.TotalTime != nil {
		t.Fatalf("invented metadata: %+v", res)
	}
	if len(res.Ingredients) != 0 || len(res.Steps) != 0 {
		t.Fatalf("invented structure: %+v", res)
	}
}

func TestParseKeepsConflictingServings(t *testing.T) {
	res := testParser(t).Parse(cardLines(
		"Serves 4",
		"Makes 6",
	))
	if len(res.Servings) != 2 {
		t.Fatalf("expected both servings readings, got %+v", res.Servings)
	}
	if *res.Servings[0].Value != 4 || *res.Servings[1].Value != 6 {
		t.Fatalf("servings values: %+v", res.Servings)
	}
}

func TestParseBakeInsideStepsIsNotMetadata(t *testing.T) {
	res := testParser(t).Parse(cardLines(
		"Directions",
		"1. Mix everything.",
		"Bake 45 minutes until golden.",
	))
	if res.CookTime != nil {
		t.Fatalf("step sentence misread as cook time: %+v", res.CookTime)
	}
	if len(res.Steps) != 1 || res.Steps[0].Text != "Mix everything. Bake 45 minutes until golden." {
		t.Fatalf("steps: %+v", res.Steps)
	}
}

func TestCandidateSpanCarriesOCRMethod(t *testing.T) {
	lines := cardLines("2 cups flour")
	res := testParser(t).Parse(lines)
	if len(res.Ingredients) != 1 {
		t.Fatalf("ingredients: %+v", res.Ingredients)
	}
	recipeID, assetID := uuid.New(), uuid.New()
	span := res.Ingredients[0].Span(recipeID, assetID, "ingredients[0].original_text")
	if span == nil {
		t.Fatalf("expected span")
	}
	if span.SourceMethod != types.SourceMethodOCR {
		t.Fatalf("expected ocr method, got %q", span.SourceMethod)
	}
	if span.ExtractedText != "2 cups flour" {
		t.Fatalf("span text: %q", span.ExtractedText)
	}
	if span.Evidence == nil || len(span.Evidence.OCRLineIDs) != 1 || span.Evidence.OCRLineIDs[0] != lines[0].ID {
		t.Fatalf("span evidence: %+v", span.Evidence)
	}
}
