package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/agent"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/market"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps the engine's error taxonomy onto HTTP statuses.
func Fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, repository.ErrTooManyPicks),
		errors.Is(err, repository.ErrDuplicatePick),
		errors.Is(err, repository.ErrPickOutsideCycle),
		errors.Is(err, agent.ErrInvalidConfig),
		errors.Is(err, agent.ErrUnknownStrategy):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, market.ErrCycleSettled):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, agent.ErrMissingExplanation):
		Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
