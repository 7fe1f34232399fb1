package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/ingestion/normalize"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

var (
	ErrRecipeNotFound   = errors.New("recipe not found")
	ErrInvalidFieldPath = errors.New("invalid field path")
	ErrNoEstimate       = errors.New("no servings estimate to approve")
)

// VerifyValidationError lists the gates a recipe has not cleared yet, in
// checklist order, so clients can render the remaining work.
type VerifyValidationError struct {
	Unmet []string
}

func (e *VerifyValidationError) Error() string {
	return "verification requirements unmet: " + strings.Join(e.Unmet, ", ")
}

// RecipeDetail is the full read model: the draft plus the per-field state and
// provenance rows the UI needs to render status chips and highlight boxes.
type RecipeDetail struct {
	Recipe   *types.Recipe        `json:"recipe"`
	Statuses []*types.FieldStatus `json:"field_statuses"`
	Spans    []*types.SourceSpan  `json:"source_spans"`
}

// FieldEdit targets one field path. Value is decoded per path: strings for
// title/ingredients/steps, numbers (or null) for servings and times, a string
// array for tags.
type FieldEdit struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type PatchRequest struct {
	Fields []FieldEdit `json:"fields,omitempty"`
	// Confirmation toggles for the "card never says" cases.
	ServingsConfirmedUnknown *bool `json:"servings_confirmed_unknown,omitempty"`
	TimesConfirmedUnknown    *bool `json:"times_confirmed_unknown,omitempty"`
	// ApproveServingsEstimate marks the derived estimate as user-approved.
	// It never copies the estimate into the explicit servings field.
	ApproveServingsEstimate *bool `json:"approve_servings_estimate,omitempty"`
}

func (p PatchRequest) isEmpty() bool {
	return len(p.Fields) == 0 &&
		p.ServingsConfirmedUnknown == nil &&
		p.TimesConfirmedUnknown == nil &&
		p.ApproveServingsEstimate == nil
}

type RecipeService interface {
	Get(dbc dbctx.Context, userID, recipeID uuid.UUID) (*RecipeDetail, error)
	List(dbc dbctx.Context, userID uuid.UUID, statuses []string) ([]*types.Recipe, error)
	// Patch applies user edits atomically: field values, user_entered statuses,
	// and user provenance spans all land in one transaction.
	Patch(dbc dbctx.Context, userID, recipeID uuid.UUID, req PatchRequest) (*RecipeDetail, error)
	// Verify promotes the recipe to verified when every gate holds, or returns
	// a *VerifyValidationError naming the unmet gates.
	Verify(dbc dbctx.Context, userID, recipeID uuid.UUID) (*types.Recipe, error)
	Delete(dbc dbctx.Context, userID, recipeID uuid.UUID) error
	Spans(dbc dbctx.Context, userID, recipeID uuid.UUID, fieldPath string) ([]*types.SourceSpan, error)
	// DeleteSpans drops provenance rows for one field path, or all of them when
	// fieldPath is empty. Field values and statuses are untouched.
	DeleteSpans(dbc dbctx.Context, userID, recipeID uuid.UUID, fieldPath string) error
	// Reextract re-runs the extract stage against the stored OCR lines.
	Reextract(dbc dbctx.Context, userID, recipeID uuid.UUID) (*types.JobRun, error)
}

type recipeService struct {
	log      *logger.Logger
	db       *gorm.DB
	recipes  repos.RecipeRepo
	spans    repos.SourceSpanRepo
	statuses repos.FieldStatusRepo
	pipeline PipelineService
}

func NewRecipeService(db *gorm.DB, recipes repos.RecipeRepo, spans repos.SourceSpanRepo, statuses repos.FieldStatusRepo, pipeline PipelineService, baseLog *logger.Logger) RecipeService {
	return &recipeService{
		log:      baseLog.With("service", "RecipeService"),
		db:       db,
		recipes:  recipes,
		spans:    spans,
		statuses: statuses,
		pipeline: pipeline,
	}
}

func (s *recipeService) load(dbc dbctx.Context, userID, recipeID uuid.UUID) (*types.Recipe, error) {
	recipe, err := s.recipes.GetByID(dbc, recipeID)
	if err != nil {
		return nil, err
	}
	if recipe == nil || recipe.UserID != userID {
		return nil, ErrRecipeNotFound
	}
	return recipe, nil
}

func (s *recipeService) detail(dbc dbctx.Context, recipe *types.Recipe) (*RecipeDetail, error) {
	statuses, err := s.statuses.GetByRecipeID(dbc, recipe.ID)
	if err != nil {
		return nil, err
	}
	spans, err := s.spans.GetByRecipeID(dbc, recipe.ID)
	if err != nil {
		return nil, err
	}
	return &RecipeDetail{Recipe: recipe, Statuses: statuses, Spans: spans}, nil
}

func (s *recipeService) Get(dbc dbctx.Context, userID, recipeID uuid.UUID) (*RecipeDetail, error) {
	recipe, err := s.load(dbc, userID, recipeID)
	if err != nil {
		return nil, err
	}
	return s.detail(dbc, recipe)
}

func (s *recipeService) List(dbc dbctx.Context, userID uuid.UUID, statuses []string) ([]*types.Recipe, error) {
	return s.recipes.ListByUser(dbc, userID, statuses)
}

func (s *recipeService) Patch(dbc dbctx.Context, userID, recipeID uuid.UUID, req PatchRequest) (*RecipeDetail, error) {
	if req.isEmpty() {
		return s.Get(dbc, userID, recipeID)
	}

	var out *RecipeDetail
	err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		recipe, err := s.load(txc, userID, recipeID)
		if err != nil {
			return err
		}

		ingBefore := len(recipe.Ingredients)

		edited := make([]editedField, 0, len(req.Fields))
		for _, edit := range req.Fields {
			ef, err := applyEdit(recipe, edit)
			if err != nil {
				return err
			}
			edited = append(edited, ef)
		}

		if req.ApproveServingsEstimate != nil {
			if recipe.ServingsEstimate == nil {
				return ErrNoEstimate
			}
			recipe.ServingsEstimate.ApprovedByUser = *req.ApproveServingsEstimate
		}
		if req.ServingsConfirmedUnknown != nil {
			recipe.ServingsConfirmedUnknown = *req.ServingsConfirmedUnknown
		}
		if req.TimesConfirmedUnknown != nil {
			recipe.TimesConfirmedUnknown = *req.TimesConfirmedUnknown
		}

		for _, ef := range edited {
			if ef.removed {
				// Removed element: its own rows go away, and the rows for every
				// later element move down one index with the element they
				// describe.
				if err := s.statuses.DeleteByRecipeAndFields(txc, recipe.ID, []string{ef.path}); err != nil {
					return err
				}
				if err := s.spans.ReplaceForField(txc, recipe.ID, ef.path, nil); err != nil {
					return err
				}
				pathFor := fieldpath.Ingredient
				if fieldpath.IsStep(ef.path) {
					pathFor = fieldpath.Step
				}
				if err := s.shiftListRows(txc, recipe.ID, pathFor, ef.index, ef.listLen); err != nil {
					return err
				}
				continue
			}
			if err := s.statuses.Upsert(txc, []*types.FieldStatus{{
				RecipeID:  recipe.ID,
				FieldPath: ef.path,
				Status:    types.FieldUserEntered,
			}}); err != nil {
				return err
			}
			span := &types.SourceSpan{
				RecipeID:      recipe.ID,
				FieldPath:     ef.path,
				AssetID:       recipe.AssetID,
				ExtractedText: ef.text,
				OCRConfidence: 1,
				SourceMethod:  types.SourceMethodUser,
			}
			if ef.text == "" {
				// Cleared field: provenance rows go away with the value.
				if err := s.spans.ReplaceForField(txc, recipe.ID, ef.path, nil); err != nil {
					return err
				}
			} else if err := s.spans.ReplaceForField(txc, recipe.ID, ef.path, []*types.SourceSpan{span}); err != nil {
				return err
			}
		}

		// Statuses are re-read after the upserts so the normalize pass sees
		// the resolved state of any previously ambiguous field.
		statusRows, err := s.statuses.GetByRecipeID(txc, recipe.ID)
		if err != nil {
			return err
		}
		normalize.Recipe(recipe, statusRows)

		if err := s.recipes.Update(txc, recipe); err != nil {
			return err
		}

		// Dedup during normalize can shrink the ingredient list; drop rows
		// addressing indices that no longer exist.
		if after := len(recipe.Ingredients); after < ingBefore {
			var stale []string
			for i := after; i < ingBefore; i++ {
				stale = append(stale, fieldpath.Ingredient(i))
			}
			if err := s.statuses.DeleteByRecipeAndFields(txc, recipe.ID, stale); err != nil {
				return err
			}
			for _, p := range stale {
				if err := s.spans.ReplaceForField(txc, recipe.ID, p, nil); err != nil {
					return err
				}
			}
		}

		out, err = s.detail(txc, recipe)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type editedField struct {
	path string
	text string
	// removed marks a deleted list element; index and listLen describe the
	// list at the moment of removal so the surviving rows can be renumbered.
	removed bool
	index   int
	listLen int
}

// applyEdit mutates one field in place and returns the display text persisted
// on the user provenance span. An empty text means the field was cleared.
func applyEdit(recipe *types.Recipe, edit FieldEdit) (editedField, error) {
	ef := editedField{path: edit.Path}
	if !fieldpath.Valid(edit.Path) {
		return ef, fmt.Errorf("%w: %q", ErrInvalidFieldPath, edit.Path)
	}

	switch edit.Path {
	case fieldpath.Title:
		var v string
		if err := json.Unmarshal(edit.Value, &v); err != nil {
			return ef, fmt.Errorf("title: %w", err)
		}
		recipe.Title = strings.TrimSpace(v)
		ef.text = recipe.Title
		return ef, nil

	case fieldpath.Servings:
		v, err := decodeOptionalInt(edit.Value, "servings")
		if err != nil {
			return ef, err
		}
		recipe.Servings = v
		ef.text = renderInt(v)
		return ef, nil

	case fieldpath.ServingsEstimate:
		return ef, fmt.Errorf("%w: %q is not directly editable", ErrInvalidFieldPath, edit.Path)

	case fieldpath.TimesPrep:
		v, err := decodeOptionalInt(edit.Value, "prep time")
		if err != nil {
			return ef, err
		}
		recipe.Times.PrepMin = v
		ef.text = renderInt(v)
		return ef, nil

	case fieldpath.TimesCook:
		v, err := decodeOptionalInt(edit.Value, "cook time")
		if err != nil {
			return ef, err
		}
		recipe.Times.CookMin = v
		ef.text = renderInt(v)
		return ef, nil

	case fieldpath.TimesTotal:
		v, err := decodeOptionalInt(edit.Value, "total time")
		if err != nil {
			return ef, err
		}
		recipe.Times.TotalMin = v
		ef.text = renderInt(v)
		return ef, nil

	case fieldpath.Tags:
		var v []string
		if err := json.Unmarshal(edit.Value, &v); err != nil {
			return ef, fmt.Errorf("tags: %w", err)
		}
		recipe.Tags = v
		ef.text = strings.Join(v, ", ")
		return ef, nil
	}

	idx, _ := fieldpath.Index(edit.Path)
	var v string
	if err := json.Unmarshal(edit.Value, &v); err != nil {
		return ef, fmt.Errorf("%s: %w", edit.Path, err)
	}
	v = strings.TrimSpace(v)
	ef.text = v

	switch {
	case fieldpath.IsIngredient(edit.Path):
		switch {
		case idx < len(recipe.Ingredients):
			if v == "" {
				ef.removed = true
				ef.index = idx
				ef.listLen = len(recipe.Ingredients)
				recipe.Ingredients = append(recipe.Ingredients[:idx], recipe.Ingredients[idx+1:]...)
				return ef, nil
			}
			// A user rewrite replaces the element; the derived fields are
			// recomputed from the new text during normalize.
			recipe.Ingredients[idx] = types.Ingredient{OriginalText: v}
		case idx == len(recipe.Ingredients):
			if v == "" {
				return ef, fmt.Errorf("%s: empty ingredient", edit.Path)
			}
			recipe.Ingredients = append(recipe.Ingredients, types.Ingredient{OriginalText: v})
		default:
			return ef, fmt.Errorf("%s: index out of range", edit.Path)
		}
		return ef, nil

	case fieldpath.IsStep(edit.Path):
		switch {
		case idx < len(recipe.Steps):
			if v == "" {
				ef.removed = true
				ef.index = idx
				ef.listLen = len(recipe.Steps)
				recipe.Steps = append(recipe.Steps[:idx], recipe.Steps[idx+1:]...)
				return ef, nil
			}
			recipe.Steps[idx] = types.Step{Text: v}
		case idx == len(recipe.Steps):
			if v == "" {
				return ef, fmt.Errorf("%s: empty step", edit.Path)
			}
			recipe.Steps = append(recipe.Steps, types.Step{Text: v})
		default:
			return ef, fmt.Errorf("%s: index out of range", edit.Path)
		}
		return ef, nil
	}

	return ef, fmt.Errorf("%w: %q", ErrInvalidFieldPath, edit.Path)
}

// shiftListRows renumbers status and provenance rows after a list removal:
// rows at [removedIdx+1, lengthBefore) move down one index so they keep
// addressing the element they were written for.
func (s *recipeService) shiftListRows(txc dbctx.Context, recipeID uuid.UUID, pathFor func(int) string, removedIdx, lengthBefore int) error {
	for i := removedIdx + 1; i < lengthBefore; i++ {
		from, to := pathFor(i), pathFor(i-1)

		st, err := s.statuses.GetByRecipeAndField(txc, recipeID, from)
		if err != nil {
			return err
		}
		if err := s.statuses.DeleteByRecipeAndFields(txc, recipeID, []string{from}); err != nil {
			return err
		}
		if st != nil {
			if err := s.statuses.Upsert(txc, []*types.FieldStatus{{
				RecipeID:  recipeID,
				FieldPath: to,
				Status:    st.Status,
				Notes:     st.Notes,
			}}); err != nil {
				return err
			}
		}

		spans, err := s.spans.GetByRecipeAndField(txc, recipeID, from)
		if err != nil {
			return err
		}
		if err := s.spans.ReplaceForField(txc, recipeID, from, nil); err != nil {
			return err
		}
		for _, sp := range spans {
			sp.ID = uuid.Nil
			sp.FieldPath = to
		}
		if err := s.spans.ReplaceForField(txc, recipeID, to, spans); err != nil {
			return err
		}
	}
	return nil
}

func decodeOptionalInt(raw json.RawMessage, what string) (*int, error) {
	var v *int
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if v != nil && *v <= 0 {
		return nil, fmt.Errorf("%s: must be positive", what)
	}
	return v, nil
}

func renderInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

// Verify gate names, in the order they are checked and reported.
const (
	GateTitle                = "title"
	GateIngredients          = "ingredients"
	GateSteps                = "steps"
	GateServingsConfirmation = "servings_confirmation"
	GateTimesConfirmation    = "times_confirmation"
)

func unmetGates(recipe *types.Recipe) []string {
	var unmet []string
	if strings.TrimSpace(recipe.Title) == "" {
		unmet = append(unmet, GateTitle)
	}
	if len(recipe.Ingredients) == 0 {
		unmet = append(unmet, GateIngredients)
	}
	if len(recipe.Steps) == 0 {
		unmet = append(unmet, GateSteps)
	}
	if !recipe.HasServingsConfirmation() {
		unmet = append(unmet, GateServingsConfirmation)
	}
	if !recipe.HasTimesConfirmation() {
		unmet = append(unmet, GateTimesConfirmation)
	}
	return unmet
}

func (s *recipeService) Verify(dbc dbctx.Context, userID, recipeID uuid.UUID) (*types.Recipe, error) {
	var out *types.Recipe
	err := s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		recipe, err := s.load(txc, userID, recipeID)
		if err != nil {
			return err
		}
		if unmet := unmetGates(recipe); len(unmet) > 0 {
			return &VerifyValidationError{Unmet: unmet}
		}

		recipe.Status = types.RecipeStatusVerified
		if err := s.recipes.Update(txc, recipe); err != nil {
			return err
		}

		statusRows, err := s.statuses.GetByRecipeID(txc, recipe.ID)
		if err != nil {
			return err
		}
		var promoted []*types.FieldStatus
		for _, st := range statusRows {
			if st.Status == types.FieldVerified {
				continue
			}
			if !types.CanTransitionField(st.Status, types.FieldVerified) {
				// Ambiguous and missing rows stay; they describe fields the
				// user left unresolved but that do not gate verification.
				continue
			}
			st.Status = types.FieldVerified
			st.Notes = ""
			promoted = append(promoted, st)
		}
		if err := s.statuses.Upsert(txc, promoted); err != nil {
			return err
		}

		out = recipe
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("recipe verified", "recipe_id", recipeID, "user_id", userID)
	return out, nil
}

func (s *recipeService) Delete(dbc dbctx.Context, userID, recipeID uuid.UUID) error {
	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		recipe, err := s.load(txc, userID, recipeID)
		if err != nil {
			return err
		}
		if err := s.spans.DeleteByRecipeID(txc, recipe.ID); err != nil {
			return err
		}
		if err := s.statuses.DeleteByRecipeID(txc, recipe.ID); err != nil {
			return err
		}
		return s.recipes.SoftDeleteByIDs(txc, []uuid.UUID{recipe.ID})
	})
}

func (s *recipeService) Spans(dbc dbctx.Context, userID, recipeID uuid.UUID, fieldPath string) ([]*types.SourceSpan, error) {
	recipe, err := s.load(dbc, userID, recipeID)
	if err != nil {
		return nil, err
	}
	if fieldPath == "" {
		return s.spans.GetByRecipeID(dbc, recipe.ID)
	}
	if !fieldpath.Valid(fieldPath) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFieldPath, fieldPath)
	}
	return s.spans.GetByRecipeAndField(dbc, recipe.ID, fieldPath)
}

func (s *recipeService) DeleteSpans(dbc dbctx.Context, userID, recipeID uuid.UUID, fieldPath string) error {
	recipe, err := s.load(dbc, userID, recipeID)
	if err != nil {
		return err
	}
	if fieldPath == "" {
		return s.spans.DeleteByRecipeID(dbc, recipe.ID)
	}
	if !fieldpath.Valid(fieldPath) {
		return fmt.Errorf("%w: %q", ErrInvalidFieldPath, fieldPath)
	}
	return s.spans.ReplaceForField(dbc, recipe.ID, fieldPath, nil)
}

func (s *recipeService) Reextract(dbc dbctx.Context, userID, recipeID uuid.UUID) (*types.JobRun, error) {
	recipe, err := s.load(dbc, userID, recipeID)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Enqueue(dbc, userID, types.JobTypeRecipeExtract, recipe.AssetID, nil)
}
