package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/document"
	"github.com/doclens/doclens/pkg/mindmap"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/service"
	"github.com/doclens/doclens/pkg/store"
	"github.com/doclens/doclens/pkg/synthesis"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrMapGenerating),
		errors.Is(err, document.ErrNoDocument),
		errors.Is(err, document.ErrNoRenderer),
		errors.Is(err, mindmap.ErrNoMap),
		errors.Is(err, mindmap.ErrNoContextMenu):
		return http.StatusConflict
	case errors.Is(err, store.ErrConversationNotFound),
		errors.Is(err, service.ErrCommandNotFound),
		errors.Is(err, mindmap.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBuiltinCommand):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrTransport), errors.Is(err, synthesis.ErrNoImageModel):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.FullPath(), "error", err, "stack", apperr.Stack(err))
	}
	c.JSON(status, models.Response{Code: status, Message: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request: " + err.Error()})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: data})
}
