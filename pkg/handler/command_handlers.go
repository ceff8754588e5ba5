package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/service"
)

// CommandHandler provides HTTP handlers for the analysis command library
type CommandHandler struct {
	Svc    *service.CommandService
	Logger *slog.Logger
}

func NewCommandHandler(svc *service.CommandService, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{Svc: svc, Logger: logger}
}

func (h *CommandHandler) RegisterRoutes(r *gin.RouterGroup) {
	cmds := r.Group("/commands")
	{
		cmds.GET("", h.List)
		cmds.POST("", h.Create)
		cmds.PUT("/reorder", h.Reorder)
		cmds.GET("/:id", h.Get)
		cmds.PUT("/:id", h.Update)
		cmds.DELETE("/:id", h.Delete)
	}
	r.GET("/remix/suggestions", h.RemixSuggestions)
}

func listResponse(cmds []*models.AnalysisCommand) models.CommandListResponse {
	resp := make([]models.AnalysisCommand, 0, len(cmds))
	for _, cc := range cmds {
		resp = append(resp, *cc)
	}
	return models.CommandListResponse{Commands: resp, Total: len(resp)}
}

// List handles listing all commands in display order
func (h *CommandHandler) List(c *gin.Context) {
	ok(c, listResponse(h.Svc.List()))
}

// Get handles retrieving a single command
func (h *CommandHandler) Get(c *gin.Context) {
	cc, err := h.Svc.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
		return
	}
	ok(c, cc)
}

// Create handles adding a new command
func (h *CommandHandler) Create(c *gin.Context) {
	var req models.CreateCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cc, err := h.Svc.Create(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Created", Data: cc})
}

// Update handles modifying an existing command
func (h *CommandHandler) Update(c *gin.Context) {
	var req models.UpdateCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cc, err := h.Svc.Update(c.Param("id"), &req)
	if err != nil {
		status := http.StatusBadRequest
		if statusFor(err) == http.StatusNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, models.Response{Code: status, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Updated", Data: cc})
}

// Delete handles removing a user command. Built-in commands stay.
func (h *CommandHandler) Delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Param("id")); err != nil {
		fail(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Deleted"})
}

// Reorder handles changing the order of commands
func (h *CommandHandler) Reorder(c *gin.Context) {
	var req models.ReorderCommandsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmds, err := h.Svc.Reorder(req.IDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Reordered", Data: listResponse(cmds)})
}

// RemixSuggestions returns the preset remix instructions
func (h *CommandHandler) RemixSuggestions(c *gin.Context) {
	ok(c, models.DefaultRemixSuggestions())
}
