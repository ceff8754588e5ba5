package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/service"
)

// DrillDownHandler serves the node inspection drawer.
type DrillDownHandler struct {
	Drill  *service.DrillDownService
	Maps   *service.MapService
	Logger *slog.Logger
}

func NewDrillDownHandler(drill *service.DrillDownService, maps *service.MapService, logger *slog.Logger) *DrillDownHandler {
	return &DrillDownHandler{Drill: drill, Maps: maps, Logger: logger}
}

func (h *DrillDownHandler) RegisterRoutes(r *gin.RouterGroup) {
	d := r.Group("/drilldown")
	{
		d.GET("", h.Get)
		d.POST("/inspect", h.Inspect)
		d.POST("/project", h.Project)
	}
}

type inspectRequest struct {
	NodeID string `json:"nodeId" binding:"required"`
}

// GET /api/drilldown
func (h *DrillDownHandler) Get(c *gin.Context) {
	ok(c, h.Drill.State())
}

// Inspect selects a node and waits for both drill-down phases
// POST /api/drilldown/inspect
func (h *DrillDownHandler) Inspect(c *gin.Context) {
	var req inspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := h.Maps.Engine().Click(req.NodeID)
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, h.Drill.Inspect(c.Request.Context(), in))
}

// Project closes the map and continues the inspected concept in the chat
// POST /api/drilldown/project
func (h *DrillDownHandler) Project(c *gin.Context) {
	msg, err := h.Drill.ProjectIntoChat(c.Request.Context())
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, msg)
}
