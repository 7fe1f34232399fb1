// Package normalize canonicalizes a merged draft in place. It only reshapes
// derived data; verbatim card text is never rewritten.
package normalize

import (
	"regexp"
	"strings"

	types "github.com/recipenow/recipenow-backend/internal/domain"
)

const (
	IssueNoTitle        = "no title"
	IssueNoIngredients  = "no ingredients"
	IssueNoSteps        = "no steps"
	IssueAmbiguousField = "ambiguous field present"
)

var leadingQuantityRe = regexp.MustCompile(`(?i)^\s*(?:[-•*]\s*)?(?:\d+(?:[./]\d+)?(?:\s+\d/\d)?|[¼½¾⅓⅔⅛⅜⅝⅞])\s*` +
	`(?:cups?|tbsps?|tablespoons?|tsps?|teaspoons?|oz|ounces?|lbs?|pounds?|grams?|g|kg|ml|l|liters?|litres?|pinch(?:es)?|dash(?:es)?|cloves?|cans?|sticks?|slices?|pieces?|large|medium|small)?\s*(?:of\s+)?`)

// Recipe canonicalizes the draft and returns its quality issues. Duplicate
// ingredients collapse on a case and whitespace insensitive key of the
// original text, keeping the first occurrence verbatim. Times must be
// positive minutes or absent. Status moves to needs_review whenever issues
// remain, back to draft when they clear; verified recipes are left alone.
func Recipe(r *types.Recipe, statuses []*types.FieldStatus) []string {
	r.Ingredients = DedupIngredients(r.Ingredients)
	r.Times = coerceTimes(r.Times)
	r.Tags = canonicalTags(r.Tags)

	issues := collectIssues(r, statuses)
	r.QualityIssues = issues

	if r.Status != types.RecipeStatusVerified {
		if len(issues) > 0 {
			r.Status = types.RecipeStatusNeedsReview
		} else {
			r.Status = types.RecipeStatusDraft
		}
	}
	return issues
}

// DedupIngredients is also applied at merge time so span indices line up with
// the final list; running it twice is a no-op.
func DedupIngredients(in types.Ingredients) types.Ingredients {
	seen := map[string]bool{}
	out := make(types.Ingredients, 0, len(in))
	for _, ing := range in {
		key := foldKey(ing.OriginalText)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if ing.NameNorm == "" {
			ing.NameNorm = nameNorm(ing.OriginalText)
		}
		out = append(out, ing)
	}
	return out
}

func foldKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// nameNorm strips the leading quantity and unit so "2 cups flour" and
// "1 cup flour" both normalize to "flour".
func nameNorm(original string) string {
	stripped := leadingQuantityRe.ReplaceAllString(original, "")
	norm := foldKey(stripped)
	if norm == "" {
		return foldKey(original)
	}
	return norm
}

func coerceTimes(t types.Times) types.Times {
	return types.Times{
		PrepMin:  positiveOrNil(t.PrepMin),
		CookMin:  positiveOrNil(t.CookMin),
		TotalMin: positiveOrNil(t.TotalMin),
	}
}

func positiveOrNil(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func canonicalTags(tags types.StringList) types.StringList {
	seen := map[string]bool{}
	out := make(types.StringList, 0, len(tags))
	for _, tag := range tags {
		t := foldKey(tag)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func collectIssues(r *types.Recipe, statuses []*types.FieldStatus) types.StringList {
	issues := types.StringList{}
	if strings.TrimSpace(r.Title) == "" {
		issues = append(issues, IssueNoTitle)
	}
	if len(r.Ingredients) == 0 {
		issues = append(issues, IssueNoIngredients)
	}
	if len(r.Steps) == 0 {
		issues = append(issues, IssueNoSteps)
	}
	for _, st := range statuses {
		if st.Status == types.FieldAmbiguous {
			issues = append(issues, IssueAmbiguousField)
			break
		}
	}
	return issues
}
