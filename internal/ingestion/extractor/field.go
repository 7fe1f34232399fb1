package extractor

import "github.com/google/uuid"

// Field kinds. A field is either read off the card with evidence, inferred as
// an estimate, or absent. Estimates never carry evidence and are never merged
// into the recipe value itself.
const (
	KindPresent  = "present"
	KindEstimate = "estimate"
	KindAbsent   = "absent"
)

// Field is one extracted value with its provenance. Present fields keep the
// verbatim card text plus the OCR line ids backing it; numeric fields also
// carry the parsed value.
type Field struct {
	Kind       string
	Text       string
	Value      *float64
	Evidence   []uuid.UUID
	Confidence float64

	// Estimate only.
	EstimateBasis string
}

func Present(text string, value *float64, evidence []uuid.UUID, confidence float64) Field {
	return Field{Kind: KindPresent, Text: text, Value: value, Evidence: evidence, Confidence: confidence}
}

func Estimate(value float64, confidence float64, basis string) Field {
	v := value
	return Field{Kind: KindEstimate, Value: &v, Confidence: confidence, EstimateBasis: basis}
}

func Absent() Field {
	return Field{Kind: KindAbsent}
}

func (f Field) IsPresent() bool  { return f.Kind == KindPresent }
func (f Field) IsEstimate() bool { return f.Kind == KindEstimate }
func (f Field) IsAbsent() bool   { return f.Kind == KindAbsent || f.Kind == "" }

// IntValue rounds the numeric value, or returns nil.
func (f Field) IntValue() *int {
	if f.Value == nil {
		return nil
	}
	v := int(*f.Value + 0.5)
	return &v
}
