// Package mindmap turns a markdown outline into an interactive concept tree:
// parsing, layout, pan/zoom, selection, expansion and search highlighting.
package mindmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNoMap        = errors.New("no mind map loaded")
)

// Node is one concept in the tree. X and Y are layout coordinates.
type Node struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Depth       int      `json:"depth"`
	ParentID    string   `json:"parentId,omitempty"`
	Children    []string `json:"children"`
	IsExpanded  bool     `json:"isExpanded,omitempty"`
	Relation    string   `json:"relation,omitempty"`
}

func (n *Node) clone() Node {
	c := *n
	c.Children = append([]string{}, n.Children...)
	return c
}

// Graph is a rooted tree indexed by node id. Child order is insertion order.
// A Graph is not safe for concurrent use; Engine serializes access.
type Graph struct {
	nodes  map[string]*Node
	rootID string
}

// NewGraph creates a graph holding a single root node.
func NewGraph(rootLabel string) *Graph {
	g := &Graph{nodes: make(map[string]*Node)}
	root := &Node{ID: uuid.NewString(), Label: rootLabel, Children: []string{}}
	g.nodes[root.ID] = root
	g.rootID = root.ID
	return g
}

func (g *Graph) RootID() string { return g.rootID }

func (g *Graph) Len() int { return len(g.nodes) }

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// AddChild appends a new child under parentID and returns its id.
func (g *Graph) AddChild(parentID, label, description, relation string) (string, error) {
	parent, ok := g.nodes[parentID]
	if !ok {
		return "", fmt.Errorf("add child to %s: %w", parentID, ErrNodeNotFound)
	}
	n := &Node{
		ID:          uuid.NewString(),
		Label:       label,
		Description: description,
		Depth:       parent.Depth + 1,
		ParentID:    parent.ID,
		Children:    []string{},
		Relation:    relation,
	}
	g.nodes[n.ID] = n
	parent.Children = append(parent.Children, n.ID)
	return n.ID, nil
}

// Graft copies the children of sub's root, with their subtrees, under
// parentID. Copied nodes get fresh ids and depths relative to the parent.
// The parent is marked expanded when at least one node was added. It returns
// the ids of the added nodes in depth-first order.
func (g *Graph) Graft(parentID string, sub *Graph) ([]string, error) {
	if _, ok := g.nodes[parentID]; !ok {
		return nil, fmt.Errorf("graft under %s: %w", parentID, ErrNodeNotFound)
	}
	if sub == nil {
		return nil, nil
	}
	var added []string
	var copyTree func(srcID, dstParent string) error
	copyTree = func(srcID, dstParent string) error {
		src := sub.nodes[srcID]
		id, err := g.AddChild(dstParent, src.Label, src.Description, src.Relation)
		if err != nil {
			return err
		}
		added = append(added, id)
		for _, c := range src.Children {
			if err := copyTree(c, id); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range sub.nodes[sub.rootID].Children {
		if err := copyTree(c, parentID); err != nil {
			return added, err
		}
	}
	if len(added) > 0 {
		g.nodes[parentID].IsExpanded = true
	}
	return added, nil
}

// Path returns the labels from the root down to id.
func (g *Graph) Path(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("path of %s: %w", id, ErrNodeNotFound)
	}
	var path []string
	for n != nil {
		path = append(path, n.Label)
		if n.ParentID == "" {
			break
		}
		n = g.nodes[n.ParentID]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Hierarchy renders the path as "root > ... > label".
func (g *Graph) Hierarchy(id string) (string, error) {
	path, err := g.Path(id)
	if err != nil {
		return "", err
	}
	return strings.Join(path, " > "), nil
}

// Nodes returns copies of all nodes in depth-first pre-order from the root.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	g.walk(g.rootID, func(n *Node) { out = append(out, n.clone()) })
	return out
}

func (g *Graph) walk(id string, fn func(*Node)) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	fn(n)
	for _, c := range n.Children {
		g.walk(c, fn)
	}
}

// Validate checks the tree invariant: one root, every non-root node has an
// existing parent that lists it exactly once, depths increase by one and
// every node is reachable from the root.
func (g *Graph) Validate() error {
	root, ok := g.nodes[g.rootID]
	if !ok {
		return errors.New("root missing")
	}
	if root.ParentID != "" || root.Depth != 0 {
		return fmt.Errorf("root %s has parent %q depth %d", root.ID, root.ParentID, root.Depth)
	}
	for id, n := range g.nodes {
		if id != n.ID {
			return fmt.Errorf("node indexed as %s has id %s", id, n.ID)
		}
		seen := make(map[string]bool, len(n.Children))
		for _, c := range n.Children {
			child, ok := g.nodes[c]
			if !ok {
				return fmt.Errorf("node %s lists missing child %s", id, c)
			}
			if seen[c] {
				return fmt.Errorf("node %s lists child %s twice", id, c)
			}
			seen[c] = true
			if child.ParentID != id {
				return fmt.Errorf("child %s of %s has parent %s", c, id, child.ParentID)
			}
			if child.Depth != n.Depth+1 {
				return fmt.Errorf("child %s depth %d under depth %d", c, child.Depth, n.Depth)
			}
		}
		if id == g.rootID {
			continue
		}
		parent, ok := g.nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("node %s has missing parent %s", id, n.ParentID)
		}
		listed := false
		for _, c := range parent.Children {
			if c == id {
				listed = true
				break
			}
		}
		if !listed {
			return fmt.Errorf("node %s not listed by parent %s", id, n.ParentID)
		}
	}
	reached := 0
	g.walk(g.rootID, func(*Node) { reached++ })
	if reached != len(g.nodes) {
		return fmt.Errorf("%d of %d nodes reachable from root", reached, len(g.nodes))
	}
	return nil
}
