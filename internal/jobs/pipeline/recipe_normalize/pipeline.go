package recipe_normalize

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/recipenow/recipenow-backend/internal/domain/fieldpath"
	"github.com/recipenow/recipenow-backend/internal/ingestion/normalize"
	jobrt "github.com/recipenow/recipenow-backend/internal/jobs/runtime"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	recipeID, ok := jc.PayloadUUID("recipe_id")
	if !ok || recipeID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing recipe_id"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	recipe, err := p.recipes.GetByID(dbc, recipeID)
	if err != nil {
		jc.Fail("load_recipe", err)
		return nil
	}
	if recipe == nil || recipe.UserID != jc.Job.OwnerUserID {
		jc.Fail("load_recipe", fmt.Errorf("recipe %s not found", recipeID))
		return nil
	}

	statuses, err := p.statuses.GetByRecipeID(dbc, recipeID)
	if err != nil {
		jc.Fail("load_statuses", err)
		return nil
	}

	jc.Progress("normalize", 50, "Canonicalizing draft")
	ingBefore := len(recipe.Ingredients)
	issues := normalize.Recipe(recipe, statuses)

	err = p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if err := p.recipes.Update(txc, recipe); err != nil {
			return err
		}
		// Dedup can shrink the ingredient list; rows addressing indices past
		// the new length are stale.
		for i := len(recipe.Ingredients); i < ingBefore; i++ {
			stale := fieldpath.Ingredient(i)
			if err := p.statuses.DeleteByRecipeAndFields(txc, recipe.ID, []string{stale}); err != nil {
				return err
			}
			if err := p.spans.ReplaceForField(txc, recipe.ID, stale, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"recipe_id":      recipeID.String(),
		"quality_issues": issues,
		"status":         recipe.Status,
	})
	return nil
}
