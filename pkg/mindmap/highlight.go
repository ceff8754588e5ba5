package mindmap

import "strings"

const (
	OpacityMatch  = 1.0
	OpacityDimmed = 0.15
)

// NodeStyle is the search highlight state of one node.
type NodeStyle struct {
	Opacity    float64 `json:"opacity"`
	Emphasized bool    `json:"emphasized"`
}

// Highlight matches query case-insensitively against node labels. Matches
// are emphasized at full opacity and the rest dimmed. An empty query shows
// every node at full opacity without emphasis.
func Highlight(query string, nodes []Node) map[string]NodeStyle {
	styles := make(map[string]NodeStyle, len(nodes))
	term := strings.ToLower(query)
	for _, n := range nodes {
		if term == "" {
			styles[n.ID] = NodeStyle{Opacity: OpacityMatch}
			continue
		}
		if strings.Contains(strings.ToLower(n.Label), term) {
			styles[n.ID] = NodeStyle{Opacity: OpacityMatch, Emphasized: true}
		} else {
			styles[n.ID] = NodeStyle{Opacity: OpacityDimmed}
		}
	}
	return styles
}
