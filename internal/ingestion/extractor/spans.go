package extractor

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/recipenow/recipenow-backend/internal/domain"
)

// BuildSpan materializes a field's evidence into a source span: the union of
// the cited OCR line boxes, their text concatenated in document order, and the
// mean recognition confidence. Returns nil when no evidence resolves, in which
// case the field is unsupported and must not be spanned at all.
func BuildSpan(recipeID, assetID uuid.UUID, fieldPath string, f Field, byID map[uuid.UUID]*types.OCRLine) *types.SourceSpan {
	if !f.IsPresent() {
		return nil
	}

	var resolved []*types.OCRLine
	var ids []uuid.UUID
	for _, id := range f.Evidence {
		ln, ok := byID[id]
		if !ok {
			continue
		}
		resolved = append(resolved, ln)
		ids = append(ids, id)
	}
	if len(resolved) == 0 {
		return nil
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].Page != resolved[j].Page {
			return resolved[i].Page < resolved[j].Page
		}
		return resolved[i].LineIndex < resolved[j].LineIndex
	})

	box := resolved[0].BBox
	confSum := 0.0
	texts := make([]string, 0, len(resolved))
	for i, ln := range resolved {
		if i > 0 {
			box = box.Union(ln.BBox)
		}
		confSum += ln.Confidence
		texts = append(texts, ln.Text)
	}

	return &types.SourceSpan{
		RecipeID:      recipeID,
		AssetID:       assetID,
		FieldPath:     fieldPath,
		Page:          resolved[0].Page,
		BBox:          box,
		OCRConfidence: confSum / float64(len(resolved)),
		ExtractedText: strings.Join(texts, " "),
		SourceMethod:  types.SourceMethodVision,
		Evidence:      &types.Evidence{OCRLineIDs: ids},
	}
}
