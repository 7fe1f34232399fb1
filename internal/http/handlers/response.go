package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recipenow/recipenow-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	// Unmet lists the failed verification gates when code is "unverifiable".
	Unmet []string `json:"unmet,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service error vocabulary onto HTTP statuses so
// every handler reports the same way.
func RespondServiceError(c *gin.Context, err error) {
	var vErr *services.VerifyValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{Error: APIError{
			Message: vErr.Error(),
			Code:    "unverifiable",
			Unmet:   vErr.Unmet,
		}})
	case errors.Is(err, services.ErrRecipeNotFound),
		errors.Is(err, services.ErrAssetNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrPipelineBusy):
		RespondError(c, http.StatusConflict, "pipeline_busy", err)
	case errors.Is(err, services.ErrJobFinished):
		RespondError(c, http.StatusConflict, "job_finished", err)
	case errors.Is(err, services.ErrInvalidFieldPath),
		errors.Is(err, services.ErrNoEstimate),
		errors.Is(err, services.ErrUnsupportedMedia):
		RespondError(c, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, services.ErrUploadTooLarge):
		RespondError(c, http.StatusRequestEntityTooLarge, "too_large", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
