// Package merge reconciles candidate values for a recipe field across
// extraction sources without ever overwriting higher-precedence data.
package merge

import (
	"fmt"
	"strings"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// Candidate is one proposed value for a field path. Source is the span source
// method of whatever produced it; Value carries the typed payload the caller
// will apply if the candidate wins.
type Candidate struct {
	FieldPath string
	Source    string
	Text      string
	Value     any
	Span      *types.SourceSpan
}

// Decision is the outcome for one field path. Ambiguity yields no winner and
// a user-facing question instead; callers must not pick a side.
type Decision struct {
	FieldPath  string
	Winner     *Candidate
	Status     string
	Question   string
	Candidates []Candidate
}

// Precedence returns the rank of a source method; higher wins. User input
// always beats machine extraction, and the structured extractor beats layout
// heuristics.
func Precedence(source string) int {
	switch source {
	case types.SourceMethodUser:
		return 3
	case types.SourceMethodVision:
		return 2
	case types.SourceMethodOCR:
		return 1
	default:
		return 0
	}
}

type Policy struct {
	log *logger.Logger
}

func NewPolicy(log *logger.Logger) *Policy {
	return &Policy{log: log.With("service", "MergePolicy")}
}

// Decide picks the winning candidate for one field path. Only the highest
// populated precedence level is considered; two mutually exclusive values at
// that level make the field ambiguous rather than letting either win.
func (p *Policy) Decide(fieldPath string, candidates []Candidate) Decision {
	d := Decision{FieldPath: fieldPath, Candidates: candidates}

	best := 0
	for _, c := range candidates {
		if r := Precedence(c.Source); r > best {
			best = r
		}
	}
	if best == 0 {
		d.Status = types.FieldMissing
		return d
	}

	var level []Candidate
	for _, c := range candidates {
		if Precedence(c.Source) == best {
			level = append(level, c)
		}
	}

	distinct := distinctTexts(level)
	if len(distinct) > 1 {
		d.Status = types.FieldAmbiguous
		d.Question = ambiguityQuestion(fieldPath, distinct)
		p.log.Debug("ambiguous field", "field_path", fieldPath, "candidates", distinct)
		return d
	}

	winner := level[0]
	d.Winner = &winner
	if winner.Source == types.SourceMethodUser {
		d.Status = types.FieldUserEntered
	} else {
		d.Status = types.FieldExtracted
	}
	return d
}

func distinctTexts(candidates []Candidate) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range candidates {
		key := comparableKey(c.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c.Text)
	}
	return out
}

func comparableKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func ambiguityQuestion(fieldPath string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("The card shows conflicting values for %s: %s. Which one is correct?",
		fieldPath, strings.Join(quoted, " or "))
}
