// Package fallback recovers recipe structure from raw OCR lines with layout
// heuristics when structured extraction is unavailable or comes back empty.
// It only ever reports text that exists on the card.
package fallback

import (
	"regexp"
	"strconv"
	"strings"

	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// Candidate is one heuristic finding with the OCR lines it was read from.
// Numeric fields also carry the parsed value.
type Candidate struct {
	Text  string
	Value *float64
	Lines []*types.OCRLine
}

// Result holds every heuristic finding. Servings keeps all matches so a card
// that states two conflicting counts surfaces both instead of silently
// preferring the first.
type Result struct {
	Title       *Candidate
	Servings    []Candidate
	PrepTime    *Candidate
	CookTime    *Candidate
	TotalTime   *Candidate
	Ingredients []Candidate
	Steps       []Candidate
}

var (
	sectionRe = regexp.MustCompile(`(?i)^\s*(ingredients?|directions?|instructions?|method|steps?|preparation)\b[:.]?\s*$`)

	// Leading quantity token, optionally followed by a unit.
	quantityRe = regexp.MustCompile(`(?i)^\s*(?:[-•*]\s*)?(\d+(?:[./]\d+)?(?:\s+\d/\d)?|[¼½¾⅓⅔⅛⅜⅝⅞])\s*` +
		`(cups?|tbsps?|tablespoons?|tsps?|teaspoons?|oz|ounces?|lbs?|pounds?|grams?|g|kg|ml|l|liters?|litres?|pinch(?:es)?|dash(?:es)?|cloves?|cans?|sticks?|slices?|pieces?|large|medium|small)?\b`)

	bulletRe = regexp.MustCompile(`^\s*[-•*]\s+\S`)

	enumeratedRe = regexp.MustCompile(`^\s*\d+\s*[.)]\s+\S`)

	servingsRe = regexp.MustCompile(`(?i)\b(?:serves|servings?|makes|yields?)\b[:\s]*(\d+)`)

	timeLabelRe = regexp.MustCompile(`(?i)^\s*(prep(?:aration)?|cook(?:ing)?|total|bak(?:e|ing))\s*(?:time)?\b\s*[:\-]?\s*(.+)$`)

	hoursRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:h|hrs?|hours?)\b`)
	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*(?:m|mins?|minutes?)\b`)
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionIngredients
	sectionSteps
)

type Parser struct {
	log *logger.Logger
}

func NewParser(log *logger.Logger) *Parser {
	return &Parser{log: log.With("service", "FallbackParser")}
}

// Parse walks the lines in document order. Section headers switch mode;
// enumerated lines start steps, quantity-led lines become ingredients, and
// metadata lines (servings, times) are captured wherever they appear. The
// first plain line before any structured block becomes the title candidate.
func (p *Parser) Parse(lines []*types.OCRLine) *Result {
	res := &Result{}
	section := sectionNone
	sawStructure := false

	for _, ln := range lines {
		text := strings.TrimSpace(ln.Text)
		if text == "" {
			continue
		}

		if m := sectionRe.FindStringSubmatch(text); m != nil {
			if strings.HasPrefix(strings.ToLower(m[1]), "ingredient") {
				section = sectionIngredients
			} else {
				section = sectionSteps
			}
			sawStructure = true
			continue
		}

		if c := parseServings(text, ln); c != nil {
			res.Servings = append(res.Servings, *c)
			continue
		}
		// Inside the steps block a line like "Bake 45 minutes until golden"
		// is an instruction, not a time annotation.
		if label, c := parseTime(text, ln); c != nil && section != sectionSteps {
			switch label {
			case "prep":
				if res.PrepTime == nil {
					res.PrepTime = c
				}
			case "cook":
				if res.CookTime == nil {
					res.CookTime = c
				}
			case "total":
				if res.TotalTime == nil {
					res.TotalTime = c
				}
			}
			continue
		}

		switch {
		case enumeratedRe.MatchString(text):
			res.Steps = append(res.Steps, Candidate{Text: stripEnumeration(text), Lines: []*types.OCRLine{ln}})
			section = sectionSteps
			sawStructure = true
		case section == sectionSteps && len(res.Steps) > 0 && !looksLikeIngredient(text):
			// Continuation of the previous step across a line break.
			last := &res.Steps[len(res.Steps)-1]
			last.Text += " " + text
			last.Lines = append(last.Lines, ln)
		case looksLikeIngredient(text) && section != sectionSteps:
			res.Ingredients = append(res.Ingredients, Candidate{Text: text, Lines: []*types.OCRLine{ln}})
			sawStructure = true
		case section == sectionSteps:
			res.Steps = append(res.Steps, Candidate{Text: text, Lines: []*types.OCRLine{ln}})
		case !sawStructure && res.Title == nil:
			res.Title = &Candidate{Text: text, Lines: []*types.OCRLine{ln}}
		}
	}
	return res
}

func looksLikeIngredient(text string) bool {
	if enumeratedRe.MatchString(text) {
		return false
	}
	return quantityRe.MatchString(text) || bulletRe.MatchString(text)
}

func stripEnumeration(text string) string {
	loc := enumeratedRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	trimmed := regexp.MustCompile(`^\s*\d+\s*[.)]\s+`).ReplaceAllString(text, "")
	return strings.TrimSpace(trimmed)
}

func parseServings(text string, ln *types.OCRLine) *Candidate {
	m := servingsRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil
	}
	v := float64(n)
	return &Candidate{Text: text, Value: &v, Lines: []*types.OCRLine{ln}}
}

// parseTime returns the normalized label ("prep", "cook", "total") and the
// duration in minutes, or nil when the line is not a time annotation.
func parseTime(text string, ln *types.OCRLine) (string, *Candidate) {
	m := timeLabelRe.FindStringSubmatch(text)
	if m == nil {
		return "", nil
	}
	minutes := parseDurationMinutes(m[2])
	if minutes == nil {
		return "", nil
	}
	label := strings.ToLower(m[1])
	switch {
	case strings.HasPrefix(label, "prep"):
		label = "prep"
	case strings.HasPrefix(label, "cook"), strings.HasPrefix(label, "bak"):
		label = "cook"
	default:
		label = "total"
	}
	v := float64(*minutes)
	return label, &Candidate{Text: text, Value: &v, Lines: []*types.OCRLine{ln}}
}

func parseDurationMinutes(text string) *int {
	total := 0
	if m := hoursRe.FindStringSubmatch(text); m != nil {
		if h, err := strconv.ParseFloat(m[1], 64); err == nil {
			total += int(h * 60)
		}
	}
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			total += n
		}
	}
	if total <= 0 {
		return nil
	}
	return &total
}
