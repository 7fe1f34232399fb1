// Package ocr abstracts the text recognition engines the ingest pipeline can
// run against a photographed recipe card.
package ocr

import (
	"context"
	"errors"

	types "github.com/recipenow/recipenow-backend/internal/domain"
)

// Binarization strategies applied before confidence scoring. Glossy cards and
// uneven lighting respond differently, so orientation voting tries all three.
const (
	BinarizeNone     = "none"
	BinarizeOtsu     = "otsu"
	BinarizeAdaptive = "adaptive"
)

var Strategies = []string{BinarizeNone, BinarizeOtsu, BinarizeAdaptive}

// ErrOrientationUnsupported marks engines that cannot score orientation
// candidates. The estimator treats such engines as abstaining.
var ErrOrientationUnsupported = errors.New("ocr: engine does not score orientation")

// Line is one recognized text line in the pixel space of the image handed to
// the engine. Confidence is normalized to 0..1.
type Line struct {
	Page       int
	Text       string
	BBox       types.BBox
	Confidence float64
}

type Engine interface {
	Name() string
	// ExtractLines recognizes text lines in reading order.
	ExtractLines(ctx context.Context, img []byte) ([]Line, error)
	// ScoreText returns a mean recognition confidence for the image as
	// presented, on Tesseract's 0..100 scale. Orientation voting compares
	// these scores across rotation candidates.
	ScoreText(ctx context.Context, img []byte, strategy string) (float64, error)
}
