package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/mindmap"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/service"
)

// MindMapHandler exposes the mind map panel and its node interactions.
type MindMapHandler struct {
	Maps   *service.MapService
	Drill  *service.DrillDownService
	Logger *slog.Logger
}

func NewMindMapHandler(maps *service.MapService, drill *service.DrillDownService, logger *slog.Logger) *MindMapHandler {
	return &MindMapHandler{Maps: maps, Drill: drill, Logger: logger}
}

func (h *MindMapHandler) RegisterRoutes(r *gin.RouterGroup) {
	m := r.Group("/mindmap")
	{
		m.GET("", h.Get)
		m.POST("/generate", h.Generate)
		m.POST("/close", h.Close)
		m.PUT("/search", h.Search)
		m.POST("/pan", h.Pan)
		m.POST("/zoom", h.Zoom)
		m.POST("/chat", h.StartChat)
		m.DELETE("/context-menu", h.CloseContextMenu)

		m.POST("/nodes/:id/click", h.Click)
		m.POST("/nodes/:id/double-click", h.DoubleClick)
		m.POST("/nodes/:id/expand", h.Expand)
		m.POST("/nodes/:id/context-menu", h.OpenContextMenu)
	}
}

type mindMapResponse struct {
	service.MapState
	Snapshot mindmap.Snapshot `json:"snapshot"`
}

type generateMapRequest struct {
	RootConcept string `json:"rootConcept"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type panRequest struct {
	DX           float64 `json:"dx"`
	DY           float64 `json:"dy"`
	ClientWidth  float64 `json:"clientWidth"`
	ClientHeight float64 `json:"clientHeight"`
}

type zoomRequest struct {
	DeltaY float64 `json:"deltaY"`
}

type startChatRequest struct {
	Mode db.ContextType `json:"mode" binding:"required"`
}

// Get returns the panel state and the current map
// GET /api/mindmap
func (h *MindMapHandler) Get(c *gin.Context) {
	ok(c, mindMapResponse{MapState: h.Maps.State(), Snapshot: h.Maps.Engine().Snapshot()})
}

// Generate builds the document mind map
// POST /api/mindmap/generate
func (h *MindMapHandler) Generate(c *gin.Context) {
	var req generateMapRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	snap, err := h.Maps.GenerateMap(c.Request.Context(), req.RootConcept)
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, mindMapResponse{MapState: h.Maps.State(), Snapshot: snap})
}

// POST /api/mindmap/close
func (h *MindMapHandler) Close(c *gin.Context) {
	h.Maps.Close()
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Closed"})
}

// PUT /api/mindmap/search
func (h *MindMapHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, h.Maps.Engine().SetSearch(req.Query))
}

// POST /api/mindmap/pan
func (h *MindMapHandler) Pan(c *gin.Context) {
	var req panRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, h.Maps.Engine().Pan(req.DX, req.DY, req.ClientWidth, req.ClientHeight))
}

// POST /api/mindmap/zoom
func (h *MindMapHandler) Zoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, h.Maps.Engine().Zoom(req.DeltaY))
}

// Click selects a node and opens the drill-down drawer for it. The drawer
// fills in asynchronously; progress is published as drilldown.updated.
// POST /api/mindmap/nodes/:id/click
func (h *MindMapHandler) Click(c *gin.Context) {
	in, err := h.Maps.Engine().Click(c.Param("id"))
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	if h.Drill != nil {
		ctx := context.WithoutCancel(c.Request.Context())
		go h.Drill.Inspect(ctx, in)
	}
	ok(c, in)
}

// DoubleClick requests expansion of a node
// POST /api/mindmap/nodes/:id/double-click
func (h *MindMapHandler) DoubleClick(c *gin.Context) {
	if err := h.Maps.Engine().DoubleClick(c.Param("id")); err != nil {
		fail(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusAccepted, models.Response{Code: 200, Message: "Expansion requested"})
}

// Expand grafts generated children under a node and waits for the result
// POST /api/mindmap/nodes/:id/expand
func (h *MindMapHandler) Expand(c *gin.Context) {
	added, err := h.Maps.Expand(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, gin.H{"added": added, "snapshot": h.Maps.Engine().Snapshot()})
}

// POST /api/mindmap/nodes/:id/context-menu
func (h *MindMapHandler) OpenContextMenu(c *gin.Context) {
	if err := h.Maps.Engine().OpenContextMenu(c.Param("id")); err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, h.Maps.Engine().Snapshot())
}

// DELETE /api/mindmap/context-menu
func (h *MindMapHandler) CloseContextMenu(c *gin.Context) {
	h.Maps.Engine().CloseContextMenu()
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Closed"})
}

// StartChat builds a chat context for the context-menu node. The caller sends
// it to /api/conversations/:id/context.
// POST /api/mindmap/chat
func (h *MindMapHandler) StartChat(c *gin.Context) {
	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	payload, err := h.Maps.Engine().StartChat(c.Request.Context(), req.Mode)
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, payload)
}
