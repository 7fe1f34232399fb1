package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/recipenow/recipenow-backend/internal/clients/ocr"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// VisionEngine implements ocr.Engine against the Cloud Vision document text
// API. Paragraphs map to lines; the API already returns them in reading
// order. Orientation scoring is not offered: each score would be a billed
// call, so the engine abstains and the estimator falls back to 0 degrees.
type VisionEngine struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
}

func NewVisionEngine(log *logger.Logger) (*VisionEngine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("engine", "gcp.Vision")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	vClient, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &VisionEngine{log: slog, visionClient: vClient}, nil
}

func (e *VisionEngine) Close() error {
	if e == nil || e.visionClient == nil {
		return nil
	}
	return e.visionClient.Close()
}

func (e *VisionEngine) Name() string { return "gcp_vision" }

func (e *VisionEngine) ExtractLines(ctx context.Context, img []byte) ([]ocr.Line, error) {
	if len(img) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
		},
	}

	br := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}
	resp, err := e.visionClient.BatchAnnotateImages(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	fta := r0.FullTextAnnotation
	if fta == nil {
		return nil, nil
	}

	var lines []ocr.Line
	for pageIdx, pg := range fta.Pages {
		if pg == nil {
			continue
		}
		for _, blk := range pg.Blocks {
			if blk == nil {
				continue
			}
			for _, para := range blk.Paragraphs {
				if para == nil {
					continue
				}
				text := paragraphText(para)
				if text == "" {
					continue
				}
				lines = append(lines, ocr.Line{
					Page:       pageIdx,
					Text:       text,
					BBox:       bboxFromPoly(para.BoundingBox),
					Confidence: float64(para.Confidence),
				})
			}
		}
	}
	ocr.SortLinesDocumentOrder(lines)
	return lines, nil
}

func (e *VisionEngine) ScoreText(ctx context.Context, img []byte, strategy string) (float64, error) {
	return 0, ocr.ErrOrientationUnsupported
}

func paragraphText(para *visionpb.Paragraph) string {
	var sb strings.Builder
	for _, w := range para.Words {
		if w == nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		for _, sym := range w.Symbols {
			if sym == nil {
				continue
			}
			sb.WriteString(sym.Text)
		}
	}
	return strings.TrimSpace(collapseWhitespace(sb.String()))
}

func bboxFromPoly(bp *visionpb.BoundingPoly) types.BBox {
	if bp == nil || len(bp.Vertices) == 0 {
		return types.BBox{}
	}
	minX, minY := float64(bp.Vertices[0].X), float64(bp.Vertices[0].Y)
	maxX, maxY := minX, minY
	for _, v := range bp.Vertices[1:] {
		if v == nil {
			continue
		}
		x, y := float64(v.X), float64(v.Y)
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	return types.BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
