// Package fieldpath defines the closed vocabulary of recipe field paths used
// by spans, field statuses, merge candidates, and the PATCH surface.
package fieldpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	Title            = "title"
	Servings         = "servings"
	ServingsEstimate = "servings_estimate"
	TimesPrep        = "times.prep_min"
	TimesCook        = "times.cook_min"
	TimesTotal       = "times.total_min"
	Tags             = "tags"
)

// Ingredient returns the path for the i-th ingredient's source text.
func Ingredient(i int) string {
	return fmt.Sprintf("ingredients[%d].original_text", i)
}

// Step returns the path for the i-th instruction step.
func Step(i int) string {
	return fmt.Sprintf("steps[%d].text", i)
}

var (
	scalarPaths = map[string]bool{
		Title:            true,
		Servings:         true,
		ServingsEstimate: true,
		TimesPrep:        true,
		TimesCook:        true,
		TimesTotal:       true,
		Tags:             true,
	}
	ingredientRe = regexp.MustCompile(`^ingredients\[(\d+)\]\.original_text$`)
	stepRe       = regexp.MustCompile(`^steps\[(\d+)\]\.text$`)
)

// Valid reports whether p belongs to the closed path vocabulary.
func Valid(p string) bool {
	if scalarPaths[p] {
		return true
	}
	return ingredientRe.MatchString(p) || stepRe.MatchString(p)
}

// Index extracts the element index from an ingredient or step path.
// ok is false for scalar paths and malformed input.
func Index(p string) (idx int, ok bool) {
	var m []string
	switch {
	case strings.HasPrefix(p, "ingredients["):
		m = ingredientRe.FindStringSubmatch(p)
	case strings.HasPrefix(p, "steps["):
		m = stepRe.FindStringSubmatch(p)
	}
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// IsIngredient reports whether p addresses an ingredient element.
func IsIngredient(p string) bool { return ingredientRe.MatchString(p) }

// IsStep reports whether p addresses a step element.
func IsStep(p string) bool { return stepRe.MatchString(p) }
