// Package rotation picks the corrective rotation for a photographed card by
// confidence voting across binarization strategies.
package rotation

import (
	"context"
	"errors"

	"github.com/recipenow/recipenow-backend/internal/clients/ocr"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

var Angles = []int{0, 90, 180, 270}

// Vote is one strategy's pick: the angle whose rotated image scored best and
// the margin over the runner-up, on the engine's 0..100 confidence scale.
type Vote struct {
	Angle      int
	Confidence float64
	Strategy   string
}

type Estimator struct {
	log    *logger.Logger
	engine ocr.Engine

	// Votes with a margin below Threshold are discarded as inconclusive.
	Threshold float64
	// Scoring runs on a downscaled copy; the full-size image is only rotated
	// once the winning angle is known.
	ScoreMaxEdge int
}

func NewEstimator(engine ocr.Engine, log *logger.Logger) *Estimator {
	return &Estimator{
		log:          log.With("service", "RotationEstimator"),
		engine:       engine,
		Threshold:    3.0,
		ScoreMaxEdge: 1200,
	}
}

// Estimate returns the corrected image and the rotation applied. Any failure
// degrades to the uncorrected image at 0 degrees; the pipeline never aborts
// on orientation problems.
func (e *Estimator) Estimate(ctx context.Context, img []byte) (corrected []byte, angle int, votes []Vote) {
	small, err := ocr.Downscale(img, e.ScoreMaxEdge)
	if err != nil {
		e.log.Warn("orientation scoring image decode failed, keeping original", "error", err)
		return img, 0, nil
	}

	for _, strategy := range ocr.Strategies {
		v, err := e.voteForStrategy(ctx, small, strategy)
		if err != nil {
			if errors.Is(err, ocr.ErrOrientationUnsupported) {
				e.log.Debug("engine abstains from orientation voting", "engine", e.engine.Name())
				return img, 0, nil
			}
			e.log.Warn("orientation vote failed", "strategy", strategy, "error", err)
			continue
		}
		votes = append(votes, v)
	}

	angle = PickAngle(votes, e.Threshold)
	if angle == 0 {
		return img, 0, votes
	}

	corrected, err = ocr.Rotate(img, angle)
	if err != nil {
		e.log.Warn("rotation transform failed, keeping original", "angle", angle, "error", err)
		return img, 0, votes
	}
	return corrected, angle, votes
}

func (e *Estimator) voteForStrategy(ctx context.Context, img []byte, strategy string) (Vote, error) {
	best, runnerUp := -1.0, -1.0
	bestAngle := 0
	for _, a := range Angles {
		rotated, err := ocr.Rotate(img, a)
		if err != nil {
			return Vote{}, err
		}
		score, err := e.engine.ScoreText(ctx, rotated, strategy)
		if err != nil {
			return Vote{}, err
		}
		if score > best {
			runnerUp = best
			best = score
			bestAngle = a
		} else if score > runnerUp {
			runnerUp = score
		}
	}
	if runnerUp < 0 {
		runnerUp = 0
	}
	return Vote{Angle: bestAngle, Confidence: best - runnerUp, Strategy: strategy}, nil
}

// PickAngle discards votes below threshold, then majority-votes among the
// survivors. Ties and an empty survivor set both resolve to 0 degrees.
func PickAngle(votes []Vote, threshold float64) int {
	counts := map[int]int{}
	for _, v := range votes {
		if v.Confidence < threshold {
			continue
		}
		counts[v.Angle]++
	}
	if len(counts) == 0 {
		return 0
	}
	bestAngle, bestCount, tied := 0, 0, false
	for angle, n := range counts {
		switch {
		case n > bestCount:
			bestAngle, bestCount, tied = angle, n, false
		case n == bestCount:
			tied = true
		}
	}
	if tied {
		return 0
	}
	return bestAngle
}
