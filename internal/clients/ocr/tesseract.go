package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// TesseractEngine runs recognition in-process through gosseract. A fresh
// client per call keeps the engine safe for concurrent jobs.
type TesseractEngine struct {
	log           *logger.Logger
	languages     []string
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine(log *logger.Logger, languages ...string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{
		log:           log.With("engine", "tesseract"),
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) ExtractLines(ctx context.Context, img []byte) ([]Line, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("tesseract set image: %w", err)
	}
	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("tesseract set languages: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract bounding boxes: %w", err)
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, Line{
			Page: 0,
			Text: text,
			BBox: types.BBox{
				X: float64(b.Box.Min.X),
				Y: float64(b.Box.Min.Y),
				W: float64(b.Box.Dx()),
				H: float64(b.Box.Dy()),
			},
			Confidence: b.Confidence / 100.0,
		})
	}
	SortLinesDocumentOrder(lines)
	return lines, nil
}

func (e *TesseractEngine) ScoreText(ctx context.Context, img []byte, strategy string) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	prepared, err := Binarize(img, strategy)
	if err != nil {
		return 0, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(prepared); err != nil {
		return 0, fmt.Errorf("tesseract set image: %w", err)
	}
	if err := c.SetLanguage(e.languages...); err != nil {
		return 0, fmt.Errorf("tesseract set languages: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return 0, fmt.Errorf("tesseract bounding boxes: %w", err)
	}
	if len(boxes) == 0 {
		return 0, nil
	}
	var sum float64
	n := 0
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}
