package fallback

import (
	"github.com/google/uuid"

	types "github.com/recipenow/recipenow-backend/internal/domain"
)

// Span materializes the candidate's contributing lines into a source span.
// Fallback spans always carry the ocr source method so merged drafts show
// which values came from heuristics rather than the vision extractor.
func (c *Candidate) Span(recipeID, assetID uuid.UUID, fieldPath string) *types.SourceSpan {
	if c == nil || len(c.Lines) == 0 {
		return nil
	}
	box := c.Lines[0].BBox
	confSum := 0.0
	ids := make([]uuid.UUID, 0, len(c.Lines))
	for i, ln := range c.Lines {
		if i > 0 {
			box = box.Union(ln.BBox)
		}
		confSum += ln.Confidence
		ids = append(ids, ln.ID)
	}
	return &types.SourceSpan{
		RecipeID:      recipeID,
		AssetID:       assetID,
		FieldPath:     fieldPath,
		Page:          c.Lines[0].Page,
		BBox:          box,
		OCRConfidence: confSum / float64(len(c.Lines)),
		ExtractedText: c.Text,
		SourceMethod:  types.SourceMethodOCR,
		Evidence:      &types.Evidence{OCRLineIDs: ids},
	}
}
