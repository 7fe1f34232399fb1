package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recipenow/recipenow-backend/internal/pkg/ctxutil"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/services"
)

type JobHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
}

func NewJobHandler(pipeline services.PipelineService, baseLog *logger.Logger) *JobHandler {
	return &JobHandler{log: baseLog.With("Handler", "JobHandler"), pipeline: pipeline}
}

func (h *JobHandler) Get(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.pipeline.GetJob(dbctx.Context{Ctx: c.Request.Context()}, userID, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("job %s not found", jobID))
		return
	}
	RespondOK(c, job)
}

// Cancel marks a queued or running job canceled. The running stage is not
// interrupted; its writes are discarded by the canceled-status guard.
func (h *JobHandler) Cancel(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.pipeline.Cancel(dbctx.Context{Ctx: c.Request.Context()}, userID, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("job %s not found", jobID))
		return
	}
	RespondOK(c, job)
}

// LatestForAsset returns the newest pipeline run for an asset so clients can
// poll a single endpoint while a card works through the stages.
func (h *JobHandler) LatestForAsset(c *gin.Context) {
	userID := ctxutil.GetUserID(c.Request.Context())
	assetID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.pipeline.LatestForAsset(dbctx.Context{Ctx: c.Request.Context()}, userID, assetID, c.Query("job_type"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("no runs for asset %s", assetID))
		return
	}
	RespondOK(c, job)
}
