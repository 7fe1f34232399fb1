// Package extractor turns a corrected card photo plus its OCR lines into
// structured recipe fields with per-field evidence.
package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/recipenow/recipenow-backend/internal/clients/openai"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// ErrExtractionFailed marks a model output that stayed malformed after the
// retry budget. The pipeline records it and continues with the fallback
// parser; it never aborts the run.
var ErrExtractionFailed = errors.New("extractor: model output unusable")

// Result is the boundary-validated model output. Every field either carries
// resolvable OCR evidence or is absent; the servings estimate is kept apart
// from the card-read servings value and is never promoted automatically.
type Result struct {
	Title            Field
	Servings         Field
	ServingsEstimate Field
	PrepTime         Field
	CookTime         Field
	TotalTime        Field
	Ingredients      []Field
	Steps            []Field
	Tags             []Field

	UnreadableRegions []types.BBox
}

type visionModel interface {
	GenerateJSONWithImages(ctx context.Context, system string, user string, images []openai.ImageInput, schemaName string, schema map[string]any) (map[string]any, error)
}

type StructuredExtractor struct {
	log   *logger.Logger
	model visionModel

	// One extra attempt when the model returns malformed JSON.
	MalformedRetries int
	ImageDetail      string
}

func NewStructuredExtractor(model visionModel, log *logger.Logger) *StructuredExtractor {
	return &StructuredExtractor{
		log:              log.With("service", "StructuredExtractor"),
		model:            model,
		MalformedRetries: 1,
		ImageDetail:      "high",
	}
}

const systemPrompt = `You transcribe recipe cards. Read ONLY what is printed or written on the card image.
Rules:
- Never invent or guess values. A field you cannot read from the card is null.
- Every non-null field must list the ids of the OCR lines it was read from in evidence_ocr_line_ids. Use the ids exactly as given.
- servings is only non-null when a serving count is printed on the card. If you can infer a likely serving count from quantities instead, put it in servings_estimate with its basis, and leave servings null.
- Times go in prep_time, cook_time, total_time with value as minutes when the card states a duration.
- List regions you cannot read in unreadable_regions as [x, y, w, h] pixel boxes.`

func (e *StructuredExtractor) Extract(ctx context.Context, img []byte, lines []*types.OCRLine) (*Result, error) {
	byID := make(map[uuid.UUID]*types.OCRLine, len(lines))
	var sb strings.Builder
	for _, ln := range lines {
		byID[ln.ID] = ln
		fmt.Fprintf(&sb, "%s\t%s\n", ln.ID, ln.Text)
	}
	user := "OCR lines (id<TAB>text), in reading order:\n" + sb.String()

	images := []openai.ImageInput{{
		ImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		Detail:   e.ImageDetail,
	}}

	var raw map[string]any
	var err error
	for attempt := 0; attempt <= e.MalformedRetries; attempt++ {
		raw, err = e.model.GenerateJSONWithImages(ctx, systemPrompt, user, images, "recipe_card", resultSchema())
		if err == nil {
			break
		}
		if !openai.IsMalformedOutput(err) {
			return nil, err
		}
		e.log.Warn("malformed extractor output", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	return e.decode(raw, byID), nil
}

// decode validates the model output at the boundary. Evidence ids that do not
// resolve to known OCR lines are dropped; a field left without evidence is
// downgraded to absent rather than trusted.
func (e *StructuredExtractor) decode(raw map[string]any, byID map[uuid.UUID]*types.OCRLine) *Result {
	res := &Result{
		Title:     e.decodeField(raw["title"], byID),
		Servings:  e.decodeField(raw["servings"], byID),
		PrepTime:  e.decodeField(raw["prep_time"], byID),
		CookTime:  e.decodeField(raw["cook_time"], byID),
		TotalTime: e.decodeField(raw["total_time"], byID),
	}
	res.ServingsEstimate = decodeEstimate(raw["servings_estimate"])
	res.Ingredients = e.decodeList(raw["ingredients"], byID)
	res.Steps = e.decodeList(raw["steps"], byID)
	res.Tags = e.decodeList(raw["tags"], byID)
	res.UnreadableRegions = decodeRegions(raw["unreadable_regions"])
	return res
}

func (e *StructuredExtractor) decodeList(v any, byID map[uuid.UUID]*types.OCRLine) []Field {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Field, 0, len(items))
	for _, item := range items {
		f := e.decodeField(item, byID)
		if f.IsPresent() {
			out = append(out, f)
		}
	}
	return out
}

func (e *StructuredExtractor) decodeField(v any, byID map[uuid.UUID]*types.OCRLine) Field {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return Absent()
	}
	text, _ := obj["text"].(string)
	if strings.TrimSpace(text) == "" {
		return Absent()
	}

	var evidence []uuid.UUID
	if ids, ok := obj["evidence_ocr_line_ids"].([]any); ok {
		for _, raw := range ids {
			s, _ := raw.(string)
			id, err := uuid.Parse(strings.TrimSpace(s))
			if err != nil {
				e.log.Debug("dropping unparseable evidence id", "id", s)
				continue
			}
			if _, known := byID[id]; !known {
				e.log.Debug("dropping unknown evidence id", "id", id)
				continue
			}
			evidence = append(evidence, id)
		}
	}
	if len(evidence) == 0 {
		return Absent()
	}

	conf, _ := obj["confidence"].(float64)
	var value *float64
	if n, ok := obj["value"].(float64); ok {
		value = &n
	}
	return Present(text, value, evidence, conf)
}

func decodeEstimate(v any) Field {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return Absent()
	}
	value, ok := obj["value"].(float64)
	if !ok || value <= 0 {
		return Absent()
	}
	conf, _ := obj["confidence"].(float64)
	basis, _ := obj["basis"].(string)
	return Estimate(value, conf, basis)
}

func decodeRegions(v any) []types.BBox {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []types.BBox
	for _, item := range items {
		arr, ok := item.([]any)
		if !ok || len(arr) != 4 {
			continue
		}
		nums := make([]float64, 4)
		valid := true
		for i, n := range arr {
			f, ok := n.(float64)
			if !ok {
				valid = false
				break
			}
			nums[i] = f
		}
		if !valid {
			continue
		}
		out = append(out, types.BBox{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]})
	}
	return out
}
