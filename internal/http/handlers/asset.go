package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/recipenow/recipenow-backend/internal/pkg/ctxutil"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/services"
)

type AssetHandler struct {
	log    *logger.Logger
	assets services.AssetService
}

func NewAssetHandler(assets services.AssetService, baseLog *logger.Logger) *AssetHandler {
	return &AssetHandler{log: baseLog.With("Handler", "AssetHandler"), assets: assets}
}

// Upload accepts a multipart card photo and kicks off the ingest pipeline.
// Re-uploads of identical bytes return the existing asset with 200 instead
// of 201.
func (h *AssetHandler) Upload(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())

	fh, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("missing file field: %w", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	defer f.Close()

	res, err := h.assets.Upload(
		dbctx.Context{Ctx: c.Request.Context()},
		userID,
		fh.Filename,
		f,
		c.PostForm("source_label"),
	)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Deduplicated {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *AssetHandler) List(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	rows, err := h.assets.List(dbctx.Context{Ctx: c.Request.Context()}, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"assets": rows})
}

func (h *AssetHandler) Get(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	assetID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	asset, err := h.assets.Get(dbctx.Context{Ctx: c.Request.Context()}, userID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, asset)
}

// Lines returns the recognized OCR lines for an asset in document order.
func (h *AssetHandler) Lines(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	assetID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	lines, err := h.assets.Lines(dbctx.Context{Ctx: c.Request.Context()}, userID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"lines": lines})
}

// Image streams the stored photo, rotation-corrected when ingest produced a
// corrected render.
func (h *AssetHandler) Image(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	assetID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rc, _, err := h.assets.OpenImage(dbctx.Context{Ctx: c.Request.Context()}, userID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

func (h *AssetHandler) Reingest(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	assetID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.assets.Reingest(dbctx.Context{Ctx: c.Request.Context()}, userID, assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (h *AssetHandler) Delete(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	assetID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.assets.Delete(dbctx.Context{Ctx: c.Request.Context()}, userID, assetID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}
