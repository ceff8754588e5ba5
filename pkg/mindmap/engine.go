package mindmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/utils"
)

// RelatedConceptLimit caps relatedConcepts in a chat launch payload.
const RelatedConceptLimit = 5

var ErrNoContextMenu = errors.New("no context menu open")

// Interaction describes a click on a node.
type Interaction struct {
	Type   string   `json:"type"`
	NodeID string   `json:"nodeId"`
	Label  string   `json:"label"`
	Path   []string `json:"path"`
}

// Snapshot is a consistent copy of the engine state for rendering.
type Snapshot struct {
	Nodes       []Node               `json:"nodes"`
	ViewBox     ViewBox              `json:"viewBox"`
	SelectedID  string               `json:"selectedId,omitempty"`
	ContextNode string               `json:"contextNodeId,omitempty"`
	Search      string               `json:"search"`
	Styles      map[string]NodeStyle `json:"styles"`
}

// Engine holds the interactive state of one mind map. All methods are safe
// for concurrent use; events are emitted after the lock is released.
type Engine struct {
	mu          sync.Mutex
	graph       *Graph
	view        ViewBox
	selected    string
	contextNode string
	search      string
	styles      map[string]NodeStyle

	emitter *event.Emitter
	index   *ConceptIndex
	logger  *slog.Logger
}

type EngineOption func(*Engine)

// WithConceptIndex enables related concept suggestions.
func WithConceptIndex(idx *ConceptIndex) EngineOption {
	return func(e *Engine) { e.index = idx }
}

func NewEngine(emitter *event.Emitter, opts ...EngineOption) *Engine {
	if emitter == nil {
		emitter = event.Global()
	}
	e := &Engine{
		view:    DefaultViewBox(),
		styles:  map[string]NodeStyle{},
		emitter: emitter,
		logger:  utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the map, lays it out and resets view, selection and search.
func (e *Engine) Load(ctx context.Context, g *Graph) {
	if g == nil {
		e.Clear()
		return
	}
	g.Layout()
	e.mu.Lock()
	e.graph = g
	e.view = DefaultViewBox()
	e.selected = ""
	e.contextNode = ""
	e.search = ""
	e.refreshLocked()
	nodes := g.Nodes()
	e.mu.Unlock()

	if e.index != nil {
		if err := e.index.Reset(); err != nil {
			e.logger.Warn("Failed to reset concept index", "error", err)
		} else {
			e.indexNodes(ctx, nodes)
		}
	}
	e.emitter.Emit(event.MapUpdatedEvent{})
}

// Clear drops the loaded map.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.graph = nil
	e.selected = ""
	e.contextNode = ""
	e.styles = map[string]NodeStyle{}
	e.mu.Unlock()
	e.emitter.Emit(event.MapUpdatedEvent{})
}

func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph != nil
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		ViewBox:     e.view,
		SelectedID:  e.selected,
		ContextNode: e.contextNode,
		Search:      e.search,
		Styles:      make(map[string]NodeStyle, len(e.styles)),
		Nodes:       []Node{},
	}
	for id, st := range e.styles {
		s.Styles[id] = st
	}
	if e.graph != nil {
		s.Nodes = e.graph.Nodes()
	}
	return s
}

// Node returns a copy of a node of the loaded map.
func (e *Engine) Node(id string) (Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return Node{}, ErrNoMap
	}
	n, ok := e.graph.Node(id)
	if !ok {
		return Node{}, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	return n, nil
}

// Click selects id exclusively and emits NodeClicked.
func (e *Engine) Click(id string) (Interaction, error) {
	e.mu.Lock()
	n, path, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return Interaction{}, err
	}
	e.selected = id
	e.contextNode = ""
	e.mu.Unlock()

	in := Interaction{Type: "click", NodeID: id, Label: n.Label, Path: path}
	e.emitter.Emit(event.NodeClickedEvent{NodeID: id, Label: n.Label, Path: path})
	return in, nil
}

// DoubleClick asks for the node to be expanded.
func (e *Engine) DoubleClick(id string) error {
	e.mu.Lock()
	n, _, err := e.lookupLocked(id)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emitter.Emit(event.ExpandRequestedEvent{NodeID: id, Label: n.Label})
	return nil
}

// OpenContextMenu selects id and remembers it as the chat launch target.
func (e *Engine) OpenContextMenu(id string) error {
	e.mu.Lock()
	_, _, err := e.lookupLocked(id)
	if err == nil {
		e.selected = id
		e.contextNode = id
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emitter.Emit(event.MapUpdatedEvent{})
	return nil
}

func (e *Engine) CloseContextMenu() {
	e.mu.Lock()
	e.contextNode = ""
	e.mu.Unlock()
}

// StartChat builds a chat context for the context-menu node, closes the menu
// and emits ChatLaunchRequested.
func (e *Engine) StartChat(ctx context.Context, mode db.ContextType) (db.ChatContextPayload, error) {
	if !mode.Valid() {
		return db.ChatContextPayload{}, apperr.Validation("start_chat", "unknown context type %q", mode)
	}
	e.mu.Lock()
	if e.contextNode == "" {
		e.mu.Unlock()
		return db.ChatContextPayload{}, ErrNoContextMenu
	}
	n, path, err := e.lookupLocked(e.contextNode)
	if err != nil {
		e.mu.Unlock()
		return db.ChatContextPayload{}, err
	}
	hierarchy, _ := e.graph.Hierarchy(n.ID)
	e.contextNode = ""
	e.mu.Unlock()

	payload := db.ChatContextPayload{
		SelectedConcept: n.Label,
		ContextType:     mode,
		NodeHierarchy:   hierarchy,
	}
	if e.index != nil {
		related, err := e.index.Related(ctx, n, RelatedConceptLimit)
		if err != nil {
			e.logger.Warn("Related concept lookup failed", "concept", n.Label, "error", err)
		}
		payload.RelatedConcepts = related
	}
	e.logger.Debug("Chat launched from map", "concept", n.Label, "mode", mode, "depth", len(path)-1)
	e.emitter.Emit(event.ChatLaunchRequestedEvent{Payload: payload})
	return payload, nil
}

// SetSearch updates the search query and recomputes highlights.
func (e *Engine) SetSearch(query string) map[string]NodeStyle {
	e.mu.Lock()
	e.search = query
	e.refreshLocked()
	styles := e.styles
	e.mu.Unlock()
	e.emitter.Emit(event.MapUpdatedEvent{})
	return styles
}

func (e *Engine) Pan(dxPx, dyPx, clientW, clientH float64) ViewBox {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = e.view.Pan(dxPx, dyPx, clientW, clientH)
	return e.view
}

func (e *Engine) Zoom(deltaY float64) ViewBox {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = e.view.Zoom(deltaY)
	return e.view
}

// Graft expands parentID with the children of sub's root and returns the
// number of nodes added.
func (e *Engine) Graft(ctx context.Context, parentID string, sub *Graph) (int, error) {
	e.mu.Lock()
	if e.graph == nil {
		e.mu.Unlock()
		return 0, ErrNoMap
	}
	added, err := e.graph.Graft(parentID, sub)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	e.graph.Layout()
	e.refreshLocked()
	nodes := make([]Node, 0, len(added))
	for _, id := range added {
		n, _ := e.graph.Node(id)
		nodes = append(nodes, n)
	}
	e.mu.Unlock()

	e.indexNodes(ctx, nodes)
	e.emitter.Emit(event.MapUpdatedEvent{})
	return len(added), nil
}

func (e *Engine) indexNodes(ctx context.Context, nodes []Node) {
	if e.index == nil || len(nodes) == 0 {
		return
	}
	if err := e.index.Add(ctx, nodes); err != nil {
		e.logger.Warn("Failed to index concepts", "count", len(nodes), "error", err)
	}
}

// refreshLocked recomputes highlight styles for the current node set.
func (e *Engine) refreshLocked() {
	if e.graph == nil {
		e.styles = map[string]NodeStyle{}
		return
	}
	e.styles = Highlight(e.search, e.graph.Nodes())
}

func (e *Engine) lookupLocked(id string) (Node, []string, error) {
	if e.graph == nil {
		return Node{}, nil, ErrNoMap
	}
	n, ok := e.graph.Node(id)
	if !ok {
		return Node{}, nil, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	path, err := e.graph.Path(id)
	if err != nil {
		return Node{}, nil, err
	}
	return n, path, nil
}
