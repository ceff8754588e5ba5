package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/doclens/doclens/pkg/document"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/mindmap"
	"github.com/doclens/doclens/pkg/synthesis"
	"github.com/doclens/doclens/pkg/utils"
)

var ErrMapGenerating = errors.New("mind map generation already in progress")

// MapState is what the map panel needs besides the engine snapshot.
type MapState struct {
	Open       bool   `json:"open"`
	Generating bool   `json:"generating"`
	Markdown   string `json:"markdown,omitempty"`
}

// MapService generates the document mind map, loads it into the engine and
// expands nodes on request.
type MapService struct {
	mu        sync.Mutex
	state     MapState
	expanding map[string]bool

	engine  *mindmap.Engine
	client  *synthesis.Client
	doc     *document.Session
	emitter *event.Emitter
	logger  *slog.Logger
}

func NewMapService(engine *mindmap.Engine, client *synthesis.Client, doc *document.Session, emitter *event.Emitter) *MapService {
	if emitter == nil {
		emitter = event.Global()
	}
	return &MapService{
		expanding: make(map[string]bool),
		engine:    engine,
		client:    client,
		doc:       doc,
		emitter:   emitter,
		logger:    utils.GetLogger(),
	}
}

func (s *MapService) Engine() *mindmap.Engine {
	return s.engine
}

func (s *MapService) State() MapState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outline returns the markdown of the loaded map.
func (s *MapService) Outline() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Markdown
}

// GenerateMap opens the map panel and loads a freshly generated outline of
// the document. A non-empty rootConcept asks for a map rooted at that concept.
func (s *MapService) GenerateMap(ctx context.Context, rootConcept string) (mindmap.Snapshot, error) {
	title := ""
	if s.doc != nil {
		title = s.doc.FileName()
	}
	if title == "" {
		return mindmap.Snapshot{}, document.ErrNoDocument
	}

	s.mu.Lock()
	if s.state.Generating {
		s.mu.Unlock()
		return mindmap.Snapshot{}, ErrMapGenerating
	}
	s.state.Generating = true
	s.state.Open = true
	s.mu.Unlock()
	s.emitter.Emit(event.MapOpenedEvent{})

	defer func() {
		s.mu.Lock()
		s.state.Generating = false
		s.mu.Unlock()
		s.emitter.Emit(event.MapUpdatedEvent{})
	}()

	markdown := s.client.GenerateMindMap(ctx, title, rootConcept)
	g, err := mindmap.ParseOutline(markdown, title)
	if err != nil {
		s.logger.Warn("Generated outline could not be parsed", "document", title, "error", err)
		return mindmap.Snapshot{}, err
	}
	s.engine.Load(ctx, g)

	s.mu.Lock()
	s.state.Markdown = markdown
	s.mu.Unlock()

	s.logger.Info("Mind map generated", "document", title, "root", rootConcept, "nodes", g.Len())
	return s.engine.Snapshot(), nil
}

// Expand grafts a generated sub-outline under nodeID and returns the number
// of nodes added. A node already being expanded is left alone.
func (s *MapService) Expand(ctx context.Context, nodeID string) (int, error) {
	node, err := s.engine.Node(nodeID)
	if err != nil {
		return 0, err
	}
	title := ""
	if s.doc != nil {
		title = s.doc.FileName()
	}
	if title == "" {
		return 0, document.ErrNoDocument
	}

	s.mu.Lock()
	if s.expanding[nodeID] {
		s.mu.Unlock()
		return 0, nil
	}
	s.expanding[nodeID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.expanding, nodeID)
		s.mu.Unlock()
	}()

	markdown := s.client.GenerateMindMap(ctx, title, node.Label)
	sub, err := mindmap.ParseOutline(markdown, node.Label)
	if err != nil {
		return 0, err
	}
	added, err := s.engine.Graft(ctx, nodeID, sub)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Node expanded", "node", node.Label, "added", added)
	return added, nil
}

// HandleExpandRequests expands nodes on every ExpandRequested event until
// the returned function is called.
func (s *MapService) HandleExpandRequests(ctx context.Context) func() {
	return s.emitter.On(event.ExpandRequested, func(ev event.Event) {
		req, ok := ev.(event.ExpandRequestedEvent)
		if !ok {
			return
		}
		go func() {
			if _, err := s.Expand(ctx, req.NodeID); err != nil {
				s.logger.Warn("Node expansion failed", "node", req.Label, "error", err)
			}
		}()
	})
}

// Close hides the map panel. The map stays loaded for the next open.
func (s *MapService) Close() {
	s.mu.Lock()
	s.state.Open = false
	s.mu.Unlock()
	s.engine.CloseContextMenu()
	s.emitter.Emit(event.MapClosedEvent{})
}
