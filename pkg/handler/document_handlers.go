package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/document"
	"github.com/doclens/doclens/pkg/models"
)

// DocumentHandler tracks the document open in the viewer. Pages are
// rendered by the view; the backend only needs the name, page count and
// current page.
type DocumentHandler struct {
	Doc    *document.Session
	Logger *slog.Logger
}

func NewDocumentHandler(doc *document.Session, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{Doc: doc, Logger: logger}
}

func (h *DocumentHandler) RegisterRoutes(r *gin.RouterGroup) {
	d := r.Group("/document")
	{
		d.GET("", h.Get)
		d.POST("", h.Load)
		d.PUT("/page", h.SetPage)
		d.PUT("/scale", h.SetScale)
	}
}

type loadDocumentRequest struct {
	FileName  string `json:"fileName" binding:"required"`
	PageCount int    `json:"pageCount"`
}

type setPageRequest struct {
	Page int `json:"page" binding:"required"`
}

type setScaleRequest struct {
	Scale float64 `json:"scale" binding:"required"`
}

// GET /api/document
func (h *DocumentHandler) Get(c *gin.Context) {
	info, loaded := h.Doc.Info()
	if !loaded {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: document.ErrNoDocument.Error()})
		return
	}
	ok(c, info)
}

// POST /api/document
func (h *DocumentHandler) Load(c *gin.Context) {
	var req loadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Doc.Load(req.FileName, req.PageCount, nil); err != nil {
		fail(c, h.Logger, err)
		return
	}
	h.Logger.Info("Document loaded", "file", req.FileName, "pages", req.PageCount)
	info, _ := h.Doc.Info()
	ok(c, info)
}

// PUT /api/document/page
func (h *DocumentHandler) SetPage(c *gin.Context) {
	var req setPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Doc.SetPage(req.Page); err != nil {
		fail(c, h.Logger, err)
		return
	}
	info, _ := h.Doc.Info()
	ok(c, info)
}

// PUT /api/document/scale
func (h *DocumentHandler) SetScale(c *gin.Context) {
	var req setScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.Doc.SetScale(req.Scale)
	info, _ := h.Doc.Info()
	ok(c, info)
}
