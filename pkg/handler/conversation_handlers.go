// Conversation HTTP handlers - chat, region analysis and remix with SSE streaming
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/document"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/service"
)

// ConversationHandler handles conversation and messaging requests.
type ConversationHandler struct {
	Ctrl    *service.ConversationController
	Doc     *document.Session
	Emitter *event.Emitter
	Logger  *slog.Logger
}

func NewConversationHandler(ctrl *service.ConversationController, doc *document.Session, emitter *event.Emitter, logger *slog.Logger) *ConversationHandler {
	if emitter == nil {
		emitter = event.Global()
	}
	return &ConversationHandler{Ctrl: ctrl, Doc: doc, Emitter: emitter, Logger: logger}
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.GET("", h.List)
		conversations.POST("", h.Create)
		conversations.GET("/active", h.GetActive)
		conversations.GET("/:id", h.Get)
		conversations.PATCH("/:id", h.Rename)
		conversations.DELETE("/:id", h.Delete)
		conversations.POST("/:id/select", h.Select)

		conversations.POST("/:id/messages", h.SendMessage)
		conversations.POST("/:id/regions/analyze", h.AnalyzeRegion)
		conversations.POST("/:id/regions/remix", h.RemixRegion)
		conversations.POST("/:id/deep-dive", h.DeepDive)
		conversations.POST("/:id/context", h.SendWithContext)
		conversations.POST("/:id/compare", h.Compare)
	}
}

type conversationListResponse struct {
	Conversations []db.Conversation `json:"conversations"`
	ActiveID      string            `json:"activeId,omitempty"`
	Total         int               `json:"total"`
}

type conversationResponse struct {
	*db.Conversation
	State service.ConversationState `json:"state"`
}

type createConversationRequest struct {
	FileName string `json:"fileName"`
}

type renameConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
	Page  int    `json:"page"`
}

type regionRequest struct {
	Region db.Region `json:"region"`
	Prompt string    `json:"prompt"`
	// Image is a data: URI captured by the view. When empty the region is
	// rendered from the loaded document.
	Image string `json:"image"`
	Page  int    `json:"page"`
}

type deepDiveRequest struct {
	Concept string `json:"concept" binding:"required"`
}

type compareRequest struct {
	Concepts []string `json:"concepts" binding:"required"`
}

// streamFrame is one SSE data frame of a streamed reply.
type streamFrame struct {
	Type      string      `json:"type"` // "delta" or "message"
	MessageID string      `json:"messageId,omitempty"`
	Content   string      `json:"content,omitempty"`
	Done      bool        `json:"done,omitempty"`
	IsError   bool        `json:"isError,omitempty"`
	Message   *db.Message `json:"message,omitempty"`
}

// List returns all conversations, most recently updated first
// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	convs := h.Ctrl.Conversations()
	resp := conversationListResponse{Conversations: convs, Total: len(convs)}
	if active, found := h.Ctrl.Active(); found {
		resp.ActiveID = active.ID
	}
	ok(c, resp)
}

// Create starts a new conversation and makes it active
// POST /api/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	conv := h.Ctrl.NewConversation(c.Request.Context(), strings.TrimSpace(req.FileName))
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Created", Data: conv})
}

// GetActive returns the active conversation
// GET /api/conversations/active
func (h *ConversationHandler) GetActive(c *gin.Context) {
	conv, found := h.Ctrl.Active()
	if !found {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "no active conversation"})
		return
	}
	ok(c, conversationResponse{Conversation: conv, State: h.Ctrl.State(conv.ID)})
}

// Get returns one conversation with its messages
// GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.Ctrl.Get(c.Param("id"))
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, conversationResponse{Conversation: conv, State: h.Ctrl.State(conv.ID)})
}

// Rename updates the conversation title
// PATCH /api/conversations/:id
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req renameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := h.Ctrl.Rename(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, conv)
}

// Delete removes a conversation
// DELETE /api/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.Ctrl.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Deleted"})
}

// Select makes a conversation active
// POST /api/conversations/:id/select
func (h *ConversationHandler) Select(c *gin.Context) {
	if err := h.Ctrl.Select(c.Param("id")); err != nil {
		fail(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Selected"})
}

// SendMessage asks a question about the document
// POST /api/conversations/:id/messages[?stream=true]
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.reply(c, func(ctx context.Context) (*db.Message, error) {
		return h.Ctrl.SendMessage(ctx, req.Text, req.Image, req.Page)
	})
}

// AnalyzeRegion asks about a selected page region
// POST /api/conversations/:id/regions/analyze[?stream=true]
func (h *ConversationHandler) AnalyzeRegion(c *gin.Context) {
	capture, valid := h.bindCapture(c)
	if !valid {
		return
	}
	h.reply(c, func(ctx context.Context) (*db.Message, error) {
		return h.Ctrl.AnalyzeRegion(ctx, capture)
	})
}

// RemixRegion produces a visual reinterpretation of a selected region
// POST /api/conversations/:id/regions/remix
func (h *ConversationHandler) RemixRegion(c *gin.Context) {
	capture, valid := h.bindCapture(c)
	if !valid {
		return
	}
	h.reply(c, func(ctx context.Context) (*db.Message, error) {
		return h.Ctrl.RemixRegion(ctx, capture)
	})
}

// DeepDive asks for an in-depth explanation of a concept
// POST /api/conversations/:id/deep-dive[?stream=true]
func (h *ConversationHandler) DeepDive(c *gin.Context) {
	var req deepDiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.reply(c, func(ctx context.Context) (*db.Message, error) {
		return h.Ctrl.DeepDive(ctx, req.Concept)
	})
}

// SendWithContext starts a chat scoped to a mind-map concept
// POST /api/conversations/:id/context[?stream=true]
func (h *ConversationHandler) SendWithContext(c *gin.Context) {
	var req db.ChatContextPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.reply(c, func(ctx context.Context) (*db.Message, error) {
		return h.Ctrl.SendWithContext(ctx, req)
	})
}

// Compare asks for a comparison of several concepts
// POST /api/conversations/:id/compare
func (h *ConversationHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.reply(c, func(ctx context.Context) (*db.Message, error) {
		return h.Ctrl.Compare(ctx, req.Concepts)
	})
}

func (h *ConversationHandler) bindCapture(c *gin.Context) (document.RegionCapture, bool) {
	var req regionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return document.RegionCapture{}, false
	}
	if req.Image == "" {
		if h.Doc == nil {
			fail(c, h.Logger, document.ErrNoDocument)
			return document.RegionCapture{}, false
		}
		capture, err := h.Doc.Capture(c.Request.Context(), req.Region, req.Prompt)
		if err != nil {
			fail(c, h.Logger, err)
			return document.RegionCapture{}, false
		}
		return capture, true
	}
	page := req.Page
	if page == 0 && h.Doc != nil {
		if info, loaded := h.Doc.Info(); loaded {
			page = info.CurrentPage
		}
	}
	return document.RegionCapture{
		Image:  req.Image,
		Page:   page,
		Region: req.Region,
		Prompt: strings.TrimSpace(req.Prompt),
	}, true
}

// reply makes the path conversation active and runs op. With stream=true the
// placeholder updates are forwarded as SSE frames while op runs.
func (h *ConversationHandler) reply(c *gin.Context, op func(ctx context.Context) (*db.Message, error)) {
	convID := c.Param("id")
	if err := h.Ctrl.Select(convID); err != nil {
		fail(c, h.Logger, err)
		return
	}
	if wantsStream(c) {
		h.streamReply(c, convID, op)
		return
	}
	msg, err := op(c.Request.Context())
	if err != nil {
		fail(c, h.Logger, err)
		return
	}
	ok(c, msg)
}

func wantsStream(c *gin.Context) bool {
	return c.Query("stream") == "true" || strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

type replyResult struct {
	msg *db.Message
	err error
}

func (h *ConversationHandler) streamReply(c *gin.Context, convID string, op func(ctx context.Context) (*db.Message, error)) {
	updates := make(chan event.MessageUpdatedEvent, 256)
	unsubscribe := h.Emitter.On(event.MessageUpdated, func(ev event.Event) {
		u, isUpdate := ev.(event.MessageUpdatedEvent)
		if !isUpdate || u.ConversationID != convID {
			return
		}
		// Content is cumulative, so a dropped frame is repaired by the next one.
		select {
		case updates <- u:
		default:
		}
	})
	defer unsubscribe()

	// The reply is persisted even if the client goes away.
	ctx := context.WithoutCancel(c.Request.Context())
	done := make(chan replyResult, 1)
	go func() {
		msg, err := op(ctx)
		done <- replyResult{msg: msg, err: err}
	}()

	w := c.Writer
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	write := func(frame streamFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		w.Flush()
	}
	delta := func(u event.MessageUpdatedEvent) streamFrame {
		return streamFrame{Type: "delta", MessageID: u.MessageID, Content: u.Content, Done: u.Done, IsError: u.IsError}
	}

	for {
		select {
		case u := <-updates:
			start()
			write(delta(u))
		case res := <-done:
			if res.err != nil && !started {
				fail(c, h.Logger, res.err)
				return
			}
			start()
			for drained := false; !drained; {
				select {
				case u := <-updates:
					write(delta(u))
				default:
					drained = true
				}
			}
			if res.err != nil {
				c.SSEvent("error", gin.H{"error": res.err.Error()})
			} else {
				write(streamFrame{Type: "message", Message: res.msg})
			}
			fmt.Fprintf(w, "data: [DONE]\n\n")
			w.Flush()
			return
		case <-c.Request.Context().Done():
			h.Logger.Debug("Stream client disconnected", "conversationID", convID)
			return
		}
	}
}
