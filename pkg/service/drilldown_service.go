package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/mindmap"
	"github.com/doclens/doclens/pkg/synthesis"
	"github.com/doclens/doclens/pkg/utils"
)

const DrillDownErrorText = "Failed to load node intelligence."

// DrillDownState is the node inspection drawer.
type DrillDownState struct {
	Label      string                      `json:"label"`
	Path       []string                    `json:"path"`
	Details    *synthesis.DetailedNodeInfo `json:"details,omitempty"`
	Messages   []db.Message                `json:"messages"`
	IsFetching bool                        `json:"isFetching"`
}

func (s DrillDownState) clone() DrillDownState {
	out := s
	out.Path = append([]string(nil), s.Path...)
	if s.Details != nil {
		d := *s.Details
		out.Details = &d
	}
	out.Messages = make([]db.Message, len(s.Messages))
	for i := range s.Messages {
		out.Messages[i] = s.Messages[i].Clone()
	}
	return out
}

// DrillDownService inspects a clicked node in two phases: structured details,
// then a streamed explanation. A newer inspection abandons the older one.
type DrillDownService struct {
	mu    sync.Mutex
	gen   uint64
	state DrillDownState

	client        *synthesis.Client
	maps          *MapService
	conversations *ConversationController
	emitter       *event.Emitter
	now           func() time.Time
	logger        *slog.Logger
}

func NewDrillDownService(client *synthesis.Client, maps *MapService, conversations *ConversationController, emitter *event.Emitter) *DrillDownService {
	if emitter == nil {
		emitter = event.Global()
	}
	return &DrillDownService{
		state:         DrillDownState{Messages: []db.Message{}},
		client:        client,
		maps:          maps,
		conversations: conversations,
		emitter:       emitter,
		now:           time.Now,
		logger:        utils.GetLogger(),
	}
}

func (s *DrillDownService) State() DrillDownState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Inspect runs both phases for the clicked node and returns the final state.
// When a newer Inspect starts first, the returned state is the newer one's.
func (s *DrillDownService) Inspect(ctx context.Context, in mindmap.Interaction) DrillDownState {
	loading := db.NewMessage(db.RoleModel,
		fmt.Sprintf("Analyzing conceptual framework for **%s**...", in.Label), s.now())

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = DrillDownState{
		Label:      in.Label,
		Path:       append([]string(nil), in.Path...),
		Messages:   []db.Message{loading},
		IsFetching: true,
	}
	s.mu.Unlock()
	s.notify(in.Label, true)

	outline := ""
	if s.maps != nil {
		outline = s.maps.Outline()
	}
	details := s.client.FetchNodeDetails(ctx, in.Label, outline)
	if !s.update(gen, func(st *DrillDownState) { st.Details = &details }) {
		return s.State()
	}

	query := fmt.Sprintf("Explain the concept of %q within this document's specific hierarchy. Highlight its importance and technical nuances.", in.Label)
	focus := &db.ChatContextPayload{
		SelectedConcept: in.Label,
		ContextType:     db.ContextLiberal,
		NodeHierarchy:   strings.Join(in.Path, " > "),
	}

	var full strings.Builder
	for chunk, err := range s.client.StreamAnswer(ctx, synthesis.AnswerRequest{Query: query, Focus: focus}) {
		if err != nil {
			s.logger.Error("Node analysis failed", "node", in.Label, "error", err)
			failed := db.NewMessage(db.RoleModel, DrillDownErrorText, s.now())
			failed.IsError = true
			s.update(gen, func(st *DrillDownState) { st.Messages = []db.Message{failed} })
			break
		}
		full.WriteString(chunk)
		content := full.String()
		if !s.update(gen, func(st *DrillDownState) {
			msg := loading
			msg.Content = content
			st.Messages = []db.Message{msg}
		}) {
			return s.State()
		}
	}

	s.update(gen, func(st *DrillDownState) { st.IsFetching = false })
	return s.State()
}

// update applies fn if gen is still the current inspection.
func (s *DrillDownService) update(gen uint64, fn func(st *DrillDownState)) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	label, fetching := s.state.Label, s.state.IsFetching
	s.mu.Unlock()
	s.notify(label, fetching)
	return true
}

func (s *DrillDownService) notify(label string, fetching bool) {
	s.emitter.Emit(event.DrillDownUpdatedEvent{Label: label, IsFetching: fetching})
}

// ProjectIntoChat closes the map and continues the inspected concept as a
// deep dive in the active conversation.
func (s *DrillDownService) ProjectIntoChat(ctx context.Context) (*db.Message, error) {
	s.mu.Lock()
	label := s.state.Label
	s.mu.Unlock()
	if label == "" {
		return nil, apperr.Validation("project_into_chat", "no concept inspected")
	}
	if s.maps != nil {
		s.maps.Close()
	}
	s.emitter.Emit(event.ChatPanelOpenedEvent{})
	return s.conversations.DeepDive(ctx, label)
}
