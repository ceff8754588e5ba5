package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/document"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/store"
	"github.com/doclens/doclens/pkg/synthesis"
	"github.com/doclens/doclens/pkg/utils"
)

type ConversationState string

const (
	StateIdle             ConversationState = "idle"
	StateAwaitingResponse ConversationState = "awaiting_response"
)

const (
	StreamErrorText  = "Error communicating with AI."
	RemixPlaceholder = "Remixing perspective..."
	RemixDoneText    = "Here is the remixed visual interpretation:"
	RemixErrorText   = "Failed to remix image."
	CompareErrorText = "Failed to compare concepts."

	regionDefaultPrompt     = "Analyze this region."
	remixDefaultRequest     = "Generate visual alternative"
	remixDefaultInstruction = "Analyze and transform this visually"
)

var ErrBusy = errors.New("a response is already in progress")

// pending is one in-flight reply. It is identified by pointer: once it is
// removed from the inflight map every later update for it is dropped.
type pending struct {
	convID        string
	placeholderID string
	// placeholderIdx is the placeholder's position in the conversation.
	// Messages are only appended while a reply is in flight.
	placeholderIdx int
	cancel         context.CancelFunc
}

type turn struct {
	*pending
	ctx     context.Context
	history []db.Message
	doc     *synthesis.DocumentContext
}

// ConversationController owns the conversation collection and the active
// conversation. Every mutation is serialized by mu and written through the
// store; views read snapshots or listen to events.
type ConversationController struct {
	mu       sync.Mutex
	convs    map[string]*db.Conversation
	version  uint64
	activeID string
	inflight map[string]*pending

	client  *synthesis.Client
	store   *store.ConversationStore
	doc     *document.Session
	emitter *event.Emitter
	now     func() time.Time
	logger  *slog.Logger
	bg      sync.WaitGroup
}

// NewConversationController creates an empty controller. doc may be nil.
func NewConversationController(client *synthesis.Client, st *store.ConversationStore, doc *document.Session, emitter *event.Emitter) *ConversationController {
	if emitter == nil {
		emitter = event.Global()
	}
	return &ConversationController{
		convs:    make(map[string]*db.Conversation),
		inflight: make(map[string]*pending),
		client:   client,
		store:    st,
		doc:      doc,
		emitter:  emitter,
		now:      time.Now,
		logger:   utils.GetLogger(),
	}
}

// Load replaces the collection with the stored conversations and selects the
// most recent one.
func (c *ConversationController) Load(ctx context.Context) error {
	list, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for id := range c.inflight {
		c.orphanLocked(id)
	}
	c.convs = make(map[string]*db.Conversation, len(list))
	for i := range list {
		c.convs[list[i].ID] = list[i].Clone()
	}
	c.activeID = ""
	if len(list) > 0 {
		c.activeID = list[0].ID
	}
	c.version++
	active := c.activeID
	c.mu.Unlock()

	c.logger.Info("Conversations loaded", "count", len(list), "active", active)
	return nil
}

// Wait blocks until background title requests have finished.
func (c *ConversationController) Wait() {
	c.bg.Wait()
}

// Version increases on every change to the collection.
func (c *ConversationController) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Conversations returns copies of all conversations, most recently updated first.
func (c *ConversationController) Conversations() []db.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]db.Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		out = append(out, *conv.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a copy of one conversation.
func (c *ConversationController) Get(id string) (*db.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.convs[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// Active returns a copy of the active conversation.
func (c *ConversationController) Active() (*db.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.convs[c.activeID]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

func (c *ConversationController) State(id string) ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[id] != nil {
		return StateAwaitingResponse
	}
	return StateIdle
}

// NewConversation creates a conversation and makes it active. An empty
// fileName falls back to the loaded document.
func (c *ConversationController) NewConversation(ctx context.Context, fileName string) *db.Conversation {
	if fileName == "" && c.doc != nil {
		fileName = c.doc.FileName()
	}
	c.mu.Lock()
	conv, evs := c.createLocked(ctx, fileName)
	out := conv.Clone()
	c.mu.Unlock()

	c.emit(evs...)
	return out
}

func (c *ConversationController) createLocked(ctx context.Context, fileName string) (*db.Conversation, []event.Event) {
	if c.activeID != "" {
		c.orphanLocked(c.activeID)
	}
	conv := db.NewConversation(fileName, c.now())
	c.convs[conv.ID] = conv
	c.activeID = conv.ID
	c.version++
	evs := []event.Event{
		event.ConversationCreatedEvent{ConversationID: conv.ID},
		event.ConversationActiveEvent{ConversationID: conv.ID},
	}
	return conv, append(evs, c.persistLocked(ctx, conv)...)
}

// Select makes id the active conversation. A reply still streaming into the
// previously active conversation is abandoned.
func (c *ConversationController) Select(id string) error {
	c.mu.Lock()
	if _, ok := c.convs[id]; !ok {
		c.mu.Unlock()
		return store.ErrConversationNotFound
	}
	if c.activeID == id {
		c.mu.Unlock()
		return nil
	}
	if c.activeID != "" {
		c.orphanLocked(c.activeID)
	}
	c.activeID = id
	c.version++
	c.mu.Unlock()

	c.emit(event.ConversationActiveEvent{ConversationID: id})
	return nil
}

// Delete removes a conversation, abandoning any reply in flight for it. When
// the active conversation is deleted the most recent remaining one becomes
// active.
func (c *ConversationController) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, ok := c.convs[id]; !ok {
		c.mu.Unlock()
		return store.ErrConversationNotFound
	}
	c.orphanLocked(id)
	delete(c.convs, id)
	evs := []event.Event{event.ConversationDeletedEvent{ConversationID: id}}
	if c.activeID == id {
		c.activeID = c.mostRecentLocked()
		evs = append(evs, event.ConversationActiveEvent{ConversationID: c.activeID})
	}
	c.version++
	if err := c.store.Delete(context.WithoutCancel(ctx), id); err != nil {
		c.logger.Warn("Failed to delete conversation from store", "conversationID", id, "error", err)
	}
	c.mu.Unlock()

	c.emit(evs...)
	return nil
}

// Rename sets the title of id and bumps its updatedAt.
func (c *ConversationController) Rename(ctx context.Context, id, title string) (*db.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("rename_conversation", "title is required")
	}
	c.mu.Lock()
	conv, ok := c.convs[id]
	if !ok {
		c.mu.Unlock()
		return nil, store.ErrConversationNotFound
	}
	conv.Title = title
	conv.Touch(c.now())
	c.version++
	evs := c.persistLocked(ctx, conv)
	out := conv.Clone()
	c.mu.Unlock()

	c.emit(append(evs, event.TitleUpdatedEvent{ConversationID: id, Title: title})...)
	return out, nil
}

func (c *ConversationController) mostRecentLocked() string {
	var best *db.Conversation
	for _, conv := range c.convs {
		if best == nil || conv.UpdatedAt > best.UpdatedAt || (conv.UpdatedAt == best.UpdatedAt && conv.ID < best.ID) {
			best = conv
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// SendMessage appends a user message and streams the reply into a
// placeholder. Stream failures become an error message, not an error return.
// page is omitted from the prompt when zero.
func (c *ConversationController) SendMessage(ctx context.Context, text, image string, page int) (*db.Message, error) {
	if strings.TrimSpace(text) == "" && image == "" {
		return nil, apperr.Validation("send_message", "message is empty")
	}
	user := db.NewMessage(db.RoleUser, text, c.now())
	if image != "" {
		user.Attachments = []db.Attachment{{Type: db.AttachmentTypeImage, Data: image}}
	}
	if page > 0 {
		user.Metadata = &db.MessageMetadata{PageNumber: &page}
	}

	t, err := c.begin(ctx, user, "", page)
	if err != nil {
		return nil, err
	}
	return c.stream(t, synthesis.AnswerRequest{
		History:  t.history,
		Query:    text,
		Image:    image,
		Document: t.doc,
	}, text), nil
}

// AnalyzeRegion asks about a captured page region.
func (c *ConversationController) AnalyzeRegion(ctx context.Context, capture document.RegionCapture) (*db.Message, error) {
	if err := capture.Validate(); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(capture.Prompt)
	if prompt == "" {
		prompt = regionDefaultPrompt
	}
	user := db.NewMessage(db.RoleUser, prompt, c.now())
	user.Attachments = []db.Attachment{{Type: db.AttachmentTypeImage, Data: capture.Image}}
	user.Metadata = regionMetadata(capture)

	t, err := c.begin(ctx, user, "", capture.Page)
	if err != nil {
		return nil, err
	}
	return c.stream(t, synthesis.AnswerRequest{
		History:  t.history,
		Query:    prompt,
		Image:    capture.Image,
		Document: t.doc,
	}, prompt), nil
}

// RemixRegion sends a captured region to the image model. The placeholder is
// replaced by the model's text and, when one came back, the edited image.
func (c *ConversationController) RemixRegion(ctx context.Context, capture document.RegionCapture) (*db.Message, error) {
	if err := capture.Validate(); err != nil {
		return nil, err
	}
	request, instruction := remixDefaultRequest, remixDefaultInstruction
	if p := strings.TrimSpace(capture.Prompt); p != "" {
		request, instruction = p, p
	}
	user := db.NewMessage(db.RoleUser, "Remix Request: "+request, c.now())
	user.Attachments = []db.Attachment{{Type: db.AttachmentTypeImage, Data: capture.Image}}
	user.Metadata = regionMetadata(capture)

	t, err := c.begin(ctx, user, RemixPlaceholder, capture.Page)
	if err != nil {
		return nil, err
	}
	defer c.finish(t)

	res, err := c.client.GenerateRemix(t.ctx, instruction, capture.Image, t.doc)
	if err != nil {
		c.logger.Error("Remix failed", "conversationID", t.convID, "error", err, "stack", apperr.Stack(err))
		msg, _ := c.apply(t, func(m *db.Message) {
			m.Content = RemixErrorText
			m.IsError = true
		}, true)
		return msg, nil
	}
	msg, _ := c.apply(t, func(m *db.Message) {
		m.Content = res.Text
		if strings.TrimSpace(m.Content) == "" {
			m.Content = RemixDoneText
		}
		m.Attachments = nil
		if res.Image != "" {
			m.Attachments = []db.Attachment{{Type: db.AttachmentTypeImage, Data: res.Image}}
		}
	}, true)
	return msg, nil
}

// DeepDive asks for an in-depth analysis of a mind-map concept.
func (c *ConversationController) DeepDive(ctx context.Context, concept string) (*db.Message, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return nil, apperr.Validation("deep_dive", "concept is empty")
	}
	prompt := fmt.Sprintf("Deep dive: Can you analyze the concept of %q specifically within the technical context of this document?", concept)
	return c.SendMessage(ctx, prompt, "", 0)
}

// SendWithContext starts a chat scoped to a mind-map concept. The payload is
// stored on the user message and sent as the focus of the request.
func (c *ConversationController) SendWithContext(ctx context.Context, payload db.ChatContextPayload) (*db.Message, error) {
	payload.SelectedConcept = strings.TrimSpace(payload.SelectedConcept)
	if payload.SelectedConcept == "" {
		return nil, apperr.Validation("send_with_context", "selected concept is empty")
	}
	if !payload.ContextType.Valid() {
		return nil, apperr.Validation("send_with_context", "unknown context type %q", payload.ContextType)
	}
	prompt := contextPrompt(payload)
	user := db.NewMessage(db.RoleUser, prompt, c.now())
	focus := payload
	user.Metadata = &db.MessageMetadata{ContextPayload: &focus}

	t, err := c.begin(ctx, user, "", 0)
	if err != nil {
		return nil, err
	}
	return c.stream(t, synthesis.AnswerRequest{
		History:  t.history,
		Query:    prompt,
		Document: t.doc,
		Focus:    &payload,
	}, prompt), nil
}

func contextPrompt(p db.ChatContextPayload) string {
	var b strings.Builder
	switch p.ContextType {
	case db.ContextStrict:
		fmt.Fprintf(&b, "Explain %q using only what this document says about it.", p.SelectedConcept)
	case db.ContextExpansive:
		fmt.Fprintf(&b, "Explain %q in depth, connecting the document's treatment to the wider field.", p.SelectedConcept)
	default:
		fmt.Fprintf(&b, "Explain %q based on this document, adding background where it helps.", p.SelectedConcept)
	}
	if p.NodeHierarchy != "" {
		fmt.Fprintf(&b, "\nHierarchy: %s", p.NodeHierarchy)
	}
	if len(p.RelatedConcepts) > 0 {
		fmt.Fprintf(&b, "\nRelated concepts: %s", strings.Join(p.RelatedConcepts, ", "))
	}
	return b.String()
}

// Compare appends a comparison request and a table answer marked as a comparison.
func (c *ConversationController) Compare(ctx context.Context, concepts []string) (*db.Message, error) {
	cleaned := make([]string, 0, len(concepts))
	for _, s := range concepts {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) < 2 {
		return nil, apperr.Validation("compare", "need at least two concepts, got %d", len(cleaned))
	}
	user := db.NewMessage(db.RoleUser, "Compare: "+strings.Join(cleaned, ", "), c.now())
	user.Metadata = &db.MessageMetadata{RelatedNodes: cleaned}

	t, err := c.begin(ctx, user, "", 0)
	if err != nil {
		return nil, err
	}
	defer c.finish(t)

	table, err := c.client.CompareConcepts(t.ctx, cleaned)
	msg, _ := c.apply(t, func(m *db.Message) {
		if err != nil {
			m.Content = CompareErrorText
			m.IsError = true
			return
		}
		m.Content = table
		m.Metadata = &db.MessageMetadata{IsComparison: true, RelatedNodes: cleaned}
	}, true)
	if err != nil {
		c.logger.Error("Comparison failed", "conversationID", t.convID, "error", err, "stack", apperr.Stack(err))
	}
	return msg, nil
}

func regionMetadata(capture document.RegionCapture) *db.MessageMetadata {
	page := capture.Page
	region := capture.Region
	return &db.MessageMetadata{
		PageNumber:        &page,
		RegionCoordinates: &region,
		OriginalPrompt:    capture.Prompt,
	}
}

// begin appends the user message and a model placeholder to the active
// conversation, creating one when none is active.
func (c *ConversationController) begin(ctx context.Context, user db.Message, placeholder string, page int) (*turn, error) {
	c.mu.Lock()
	var evs []event.Event
	conv, ok := c.convs[c.activeID]
	if !ok {
		fileName := ""
		if c.doc != nil {
			fileName = c.doc.FileName()
		}
		conv, evs = c.createLocked(ctx, fileName)
	}
	if c.inflight[conv.ID] != nil {
		c.mu.Unlock()
		c.emit(evs...)
		return nil, ErrBusy
	}

	history := make([]db.Message, len(conv.Messages))
	for i := range conv.Messages {
		history[i] = conv.Messages[i].Clone()
	}

	now := c.now()
	conv.Messages = append(conv.Messages, user)
	conv.Touch(now)
	evs = append(evs, c.persistLocked(ctx, conv)...)

	model := db.NewMessage(db.RoleModel, placeholder, now)
	conv.Messages = append(conv.Messages, model)
	conv.Touch(now)
	evs = append(evs, c.persistLocked(ctx, conv)...)
	c.version++

	streamCtx, cancel := context.WithCancel(ctx)
	p := &pending{convID: conv.ID, placeholderID: model.ID, placeholderIdx: len(conv.Messages) - 1, cancel: cancel}
	c.inflight[conv.ID] = p
	t := &turn{pending: p, ctx: streamCtx, history: history, doc: c.docContextLocked(conv, page)}
	c.mu.Unlock()

	evs = append(evs,
		event.ConversationUpdatedEvent{ConversationID: conv.ID},
		event.MessageUpdatedEvent{ConversationID: conv.ID, MessageID: model.ID, Content: placeholder},
	)
	c.emit(evs...)
	return t, nil
}

func (c *ConversationController) docContextLocked(conv *db.Conversation, page int) *synthesis.DocumentContext {
	title := ""
	if c.doc != nil {
		title = c.doc.FileName()
	}
	if title == "" {
		title = conv.FileName
	}
	if title == "" {
		return nil
	}
	return &synthesis.DocumentContext{Title: title, Page: page}
}

// stream reads the answer into the placeholder. Each chunk replaces the
// content with the accumulated text. It returns the final message, or nil
// when the reply was abandoned.
func (c *ConversationController) stream(t *turn, req synthesis.AnswerRequest, titleQuery string) *db.Message {
	defer c.finish(t)

	var full strings.Builder
	for chunk, err := range c.client.StreamAnswer(t.ctx, req) {
		if err != nil {
			c.logger.Error("Answer stream failed", "conversationID", t.convID, "error", err, "stack", apperr.Stack(err))
			msg, _ := c.apply(t, func(m *db.Message) {
				m.Content = StreamErrorText
				m.IsError = true
			}, true)
			return msg
		}
		full.WriteString(chunk)
		content := full.String()
		if _, ok := c.apply(t, func(m *db.Message) { m.Content = content }, false); !ok {
			return nil
		}
	}

	content := full.String()
	msg, ok := c.apply(t, func(m *db.Message) {
		m.Content = content
		if cites := synthesis.ParseCitations(content); len(cites) > 0 {
			if m.Metadata == nil {
				m.Metadata = &db.MessageMetadata{}
			}
			m.Metadata.Citations = cites
		}
	}, true)
	if ok {
		c.maybeGenerateTitle(t, titleQuery)
	}
	return msg
}

// apply mutates the placeholder of t unless t has been abandoned.
func (c *ConversationController) apply(t *turn, fn func(m *db.Message), done bool) (*db.Message, bool) {
	c.mu.Lock()
	if c.inflight[t.convID] != t.pending {
		c.mu.Unlock()
		return nil, false
	}
	conv, ok := c.convs[t.convID]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	idx := t.placeholderIdx
	if idx < 0 || idx >= len(conv.Messages) || conv.Messages[idx].ID != t.placeholderID {
		c.mu.Unlock()
		return nil, false
	}
	fn(&conv.Messages[idx])
	conv.Touch(c.now())
	c.version++
	evs := c.persistLocked(t.ctx, conv)
	msg := conv.Messages[idx].Clone()
	c.mu.Unlock()

	evs = append(evs, event.MessageUpdatedEvent{
		ConversationID: t.convID,
		MessageID:      msg.ID,
		Content:        msg.Content,
		Done:           done,
		IsError:        msg.IsError,
	})
	if done {
		evs = append(evs, event.ConversationUpdatedEvent{ConversationID: t.convID})
	}
	c.emit(evs...)
	return &msg, true
}

// finish clears the awaiting state of t. Runs on every path.
func (c *ConversationController) finish(t *turn) {
	c.mu.Lock()
	if c.inflight[t.convID] == t.pending {
		delete(c.inflight, t.convID)
	}
	c.mu.Unlock()
	t.cancel()
}

func (c *ConversationController) orphanLocked(convID string) {
	if p := c.inflight[convID]; p != nil {
		p.cancel()
		delete(c.inflight, convID)
		c.logger.Debug("Abandoned reply", "conversationID", convID, "messageID", p.placeholderID)
	}
}

// maybeGenerateTitle requests a title after the first exchange. The late
// title only touches the title and is dropped if the conversation is gone.
func (c *ConversationController) maybeGenerateTitle(t *turn, query string) {
	c.mu.Lock()
	conv, ok := c.convs[t.convID]
	first := ok && len(conv.Messages) == 2
	c.mu.Unlock()
	if !first || strings.TrimSpace(query) == "" {
		return
	}

	ctx := context.WithoutCancel(t.ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		title := c.client.GenerateTitle(ctx, query)

		c.mu.Lock()
		conv, ok := c.convs[t.convID]
		if !ok {
			c.mu.Unlock()
			return
		}
		conv.Title = title
		conv.Touch(c.now())
		c.version++
		evs := c.persistLocked(ctx, conv)
		c.mu.Unlock()

		c.emit(append(evs, event.TitleUpdatedEvent{ConversationID: t.convID, Title: title})...)
	}()
}

// persistLocked writes conv through the store. Failures are logged and
// never returned; a capacity failure is reported as an event.
func (c *ConversationController) persistLocked(ctx context.Context, conv *db.Conversation) []event.Event {
	err := c.store.Save(context.WithoutCancel(ctx), conv)
	if err == nil {
		return nil
	}
	c.logger.Warn("Failed to save conversation", "conversationID", conv.ID, "error", err)
	if errors.Is(err, apperr.ErrStorageCapacity) {
		return []event.Event{event.StorageDegradedEvent{ConversationID: conv.ID, Reason: err.Error()}}
	}
	return nil
}

func (c *ConversationController) emit(evs ...event.Event) {
	for _, ev := range evs {
		c.emitter.Emit(ev)
	}
}
