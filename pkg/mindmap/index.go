package mindmap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const conceptCollection = "concepts"

// ConceptIndex is an in-memory vector index over node labels and
// descriptions, used to suggest related concepts for a chat launch.
type ConceptIndex struct {
	mu    sync.Mutex
	db    *chromem.DB
	col   *chromem.Collection
	embed chromem.EmbeddingFunc
}

// NewConceptIndex creates an empty index using embed for every document and query.
func NewConceptIndex(embed chromem.EmbeddingFunc) (*ConceptIndex, error) {
	if embed == nil {
		return nil, fmt.Errorf("concept index: embedding function is nil")
	}
	ci := &ConceptIndex{embed: embed}
	if err := ci.reset(); err != nil {
		return nil, err
	}
	return ci, nil
}

func (ci *ConceptIndex) reset() error {
	ci.db = chromem.NewDB()
	col, err := ci.db.CreateCollection(conceptCollection, nil, ci.embed)
	if err != nil {
		return fmt.Errorf("concept index: create collection: %w", err)
	}
	ci.col = col
	return nil
}

// Reset drops every indexed concept.
func (ci *ConceptIndex) Reset() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.reset()
}

// Add indexes nodes. Re-adding a node id replaces it.
func (ci *ConceptIndex) Add(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(nodes))
	for _, n := range nodes {
		docs = append(docs, chromem.Document{
			ID:       n.ID,
			Content:  conceptText(n),
			Metadata: map[string]string{"label": n.Label},
		})
	}
	ci.mu.Lock()
	col := ci.col
	ci.mu.Unlock()
	return col.AddDocuments(ctx, docs, 1)
}

// Related returns up to n labels nearest to node, excluding the node itself
// and duplicates of its label.
func (ci *ConceptIndex) Related(ctx context.Context, node Node, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ci.mu.Lock()
	col := ci.col
	ci.mu.Unlock()

	k := min(n+1, col.Count())
	if k == 0 {
		return nil, nil
	}
	results, err := col.Query(ctx, conceptText(node), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("concept index: query: %w", err)
	}
	seen := map[string]bool{strings.ToLower(node.Label): true}
	out := make([]string, 0, n)
	for _, r := range results {
		if r.ID == node.ID {
			continue
		}
		label := r.Metadata["label"]
		if label == "" || seen[strings.ToLower(label)] {
			continue
		}
		seen[strings.ToLower(label)] = true
		out = append(out, label)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func conceptText(n Node) string {
	if n.Description == "" {
		return n.Label
	}
	return n.Label + ": " + n.Description
}
