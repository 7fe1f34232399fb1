package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/fogleman/gg"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// Per-method stroke colors, chosen apart so mixed provenance reads at a glance.
var overlayColors = map[string][3]float64{
	types.SourceMethodOCR:    {0.20, 0.55, 0.95},
	types.SourceMethodVision: {0.95, 0.55, 0.15},
	types.SourceMethodUser:   {0.25, 0.75, 0.35},
}

type OverlayService interface {
	// Render draws the recipe's provenance boxes over its card photo and
	// returns a PNG. fieldPath narrows to one field; empty draws everything.
	Render(dbc dbctx.Context, userID, recipeID uuid.UUID, fieldPath string) ([]byte, error)
}

type overlayService struct {
	log     *logger.Logger
	assets  AssetService
	recipes RecipeService
}

func NewOverlayService(assets AssetService, recipes RecipeService, baseLog *logger.Logger) OverlayService {
	return &overlayService{
		log:     baseLog.With("service", "OverlayService"),
		assets:  assets,
		recipes: recipes,
	}
}

func (s *overlayService) Render(dbc dbctx.Context, userID, recipeID uuid.UUID, fieldPath string) ([]byte, error) {
	detail, err := s.recipes.Get(dbc, userID, recipeID)
	if err != nil {
		return nil, err
	}
	spans := detail.Spans
	if fieldPath != "" {
		if !fieldpath.Valid(fieldPath) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFieldPath, fieldPath)
		}
		filtered := spans[:0:0]
		for _, sp := range spans {
			if sp.FieldPath == fieldPath {
				filtered = append(filtered, sp)
			}
		}
		spans = filtered
	}

	rc, _, err := s.assets.OpenImage(dbc, userID, detail.Recipe.AssetID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode card image: %w", err)
	}

	return renderOverlay(img, spans), nil
}

func renderOverlay(img image.Image, spans []*types.SourceSpan) []byte {
	dc := gg.NewContextForImage(img)

	// Stroke width scales with the photo so boxes stay visible on large scans.
	lw := float64(dc.Width()) / 400
	if lw < 2 {
		lw = 2
	}

	for _, sp := range spans {
		if sp.BBox.IsZero() {
			continue
		}
		c, ok := overlayColors[sp.SourceMethod]
		if !ok {
			c = overlayColors[types.SourceMethodOCR]
		}
		dc.SetRGBA(c[0], c[1], c[2], 0.15)
		dc.DrawRectangle(sp.BBox.X, sp.BBox.Y, sp.BBox.W, sp.BBox.H)
		dc.Fill()
		dc.SetRGB(c[0], c[1], c[2])
		dc.SetLineWidth(lw)
		dc.DrawRectangle(sp.BBox.X, sp.BBox.Y, sp.BBox.W, sp.BBox.H)
		dc.Stroke()
	}

	var buf bytes.Buffer
	_ = dc.EncodePNG(&buf)
	return buf.Bytes()
}
