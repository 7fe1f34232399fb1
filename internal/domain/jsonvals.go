package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// BBox is an axis-aligned box in corrected-image pixels, serialized as
// [x, y, w, h] to match the wire format of the OCR collaborator.
type BBox struct {
	X float64
	Y float64
	W float64
	H float64
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.W, b.H})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr [4]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	b.X, b.Y, b.W, b.H = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Union returns the smallest box covering both. The zero box is treated as
// absent so unions can be folded from it.
func (b BBox) Union(o BBox) BBox {
	if b.IsZero() {
		return o
	}
	if o.IsZero() {
		return b
	}
	x0 := min(b.X, o.X)
	y0 := min(b.Y, o.Y)
	x1 := max(b.X+b.W, o.X+o.W)
	y1 := max(b.Y+b.H, o.Y+o.H)
	return BBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (b BBox) IsZero() bool {
	return b.X == 0 && b.Y == 0 && b.W == 0 && b.H == 0
}

type Ingredient struct {
	OriginalText string   `json:"original_text"`
	NameNorm     string   `json:"name_norm,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	Optional     bool     `json:"optional,omitempty"`
}

type Ingredients []Ingredient

type Step struct {
	Text string `json:"text"`
}

type Steps []Step

type Times struct {
	PrepMin  *int `json:"prep_min,omitempty"`
	CookMin  *int `json:"cook_min,omitempty"`
	TotalMin *int `json:"total_min,omitempty"`
}

func (t Times) IsZero() bool {
	return t.PrepMin == nil && t.CookMin == nil && t.TotalMin == nil
}

// ServingsEstimate is a derived value: it never auto-promotes into the
// explicit servings field and counts only once the user approves it.
type ServingsEstimate struct {
	Value          int     `json:"value"`
	Confidence     float64 `json:"confidence,omitempty"`
	Basis          string  `json:"basis,omitempty"`
	ApprovedByUser bool    `json:"approved_by_user"`
}

type StringList []string

// Evidence carries the OCR line ids a vision-api span derives from.
type Evidence struct {
	OCRLineIDs []uuid.UUID `json:"ocr_line_ids,omitempty"`
}
