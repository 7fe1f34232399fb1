package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recipenow/recipenow-backend/internal/pkg/ctxutil"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/services"
)

type RecipeHandler struct {
	log     *logger.Logger
	recipes services.RecipeService
	overlay services.OverlayService
}

func NewRecipeHandler(recipes services.RecipeService, overlay services.OverlayService, baseLog *logger.Logger) *RecipeHandler {
	return &RecipeHandler{
		log:     baseLog.With("Handler", "RecipeHandler"),
		recipes: recipes,
		overlay: overlay,
	}
}

func (h *RecipeHandler) List(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	rows, err := h.recipes.List(dbctx.Context{Ctx: c.Request.Context()}, userID, c.QueryArray("status"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"recipes": rows})
}

func (h *RecipeHandler) Get(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	detail, err := h.recipes.Get(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, detail)
}

func (h *RecipeHandler) Patch(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req services.PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	detail, err := h.recipes.Patch(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID, req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, detail)
}

func (h *RecipeHandler) Verify(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	recipe, err := h.recipes.Verify(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, recipe)
}

func (h *RecipeHandler) Delete(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.recipes.Delete(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Spans lists provenance rows, optionally narrowed by ?field_path=.
func (h *RecipeHandler) Spans(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	spans, err := h.recipes.Spans(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID, c.Query("field_path"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"spans": spans})
}

// DeleteSpans drops provenance rows, optionally narrowed by ?field_path=.
func (h *RecipeHandler) DeleteSpans(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.recipes.DeleteSpans(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID, c.Query("field_path")); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Overlay renders the provenance boxes over the card photo as a PNG.
func (h *RecipeHandler) Overlay(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	png, err := h.overlay.Render(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID, c.Query("field_path"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *RecipeHandler) Reextract(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	recipeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.recipes.Reextract(dbctx.Context{Ctx: c.Request.Context()}, userID, recipeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}
