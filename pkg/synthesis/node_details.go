package synthesis

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
)

type NodeType string

const (
	NodeConcept     NodeType = "concept"
	NodeExample     NodeType = "example"
	NodeApplication NodeType = "application"
)

type RelationType string

const (
	RelationExtends     RelationType = "extends"
	RelationDependsOn   RelationType = "depends_on"
	RelationContradicts RelationType = "contradicts"
	RelationRelated     RelationType = "related"
	RelationApplication RelationType = "application"
)

// ParseRelationType maps a relation label to a RelationType, falling back to related.
func ParseRelationType(s string) RelationType {
	switch RelationType(strings.ToLower(strings.TrimSpace(s))) {
	case RelationExtends:
		return RelationExtends
	case RelationDependsOn:
		return RelationDependsOn
	case RelationContradicts:
		return RelationContradicts
	case RelationApplication:
		return RelationApplication
	default:
		return RelationRelated
	}
}

type Relationship struct {
	Target string       `json:"target"`
	Type   RelationType `json:"type"`
	Score  float64      `json:"score"`
}

// DetailedNodeInfo is the structured grounding data for one mind-map node.
type DetailedNodeInfo struct {
	Label         string         `json:"label"`
	Definition    string         `json:"definition"`
	Examples      []string       `json:"examples"`
	Type          NodeType       `json:"type"`
	Confidence    float64        `json:"confidence"`
	Evidence      []db.Citation  `json:"evidence"`
	Relationships []Relationship `json:"relationships"`
}

// DefaultNodeInfo is returned whenever node details cannot be fetched.
func DefaultNodeInfo(label string) DetailedNodeInfo {
	return DetailedNodeInfo{
		Label:         label,
		Definition:    "N/A",
		Examples:      []string{},
		Type:          NodeConcept,
		Confidence:    0,
		Evidence:      []db.Citation{},
		Relationships: []Relationship{},
	}
}

type rawNodeDetails struct {
	Definition string   `json:"definition"`
	Examples   []string `json:"examples"`
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Evidence   []struct {
		Page       float64  `json:"page"`
		Snippet    string   `json:"snippet"`
		Confidence *float64 `json:"confidence"`
	} `json:"evidence"`
	Relationships []struct {
		Target string  `json:"target"`
		Type   string  `json:"type"`
		Score  float64 `json:"score"`
	} `json:"relationships"`
}

// parseNodeDetails decodes a node detail response. Surrounding prose is
// tolerated; anything that is not a JSON object is a parse error.
func parseNodeDetails(label, text string) (DetailedNodeInfo, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return DetailedNodeInfo{}, apperr.Parse("fetch_node_details", "no json object in response", nil)
	}

	var raw rawNodeDetails
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return DetailedNodeInfo{}, apperr.Parse("fetch_node_details", "invalid json", err)
	}

	info := DefaultNodeInfo(label)
	info.Definition = strings.TrimSpace(raw.Definition)
	if info.Definition == "" {
		info.Definition = "..."
	}
	for _, ex := range raw.Examples {
		if ex = strings.TrimSpace(ex); ex != "" {
			info.Examples = append(info.Examples, ex)
		}
	}
	switch NodeType(strings.ToLower(strings.TrimSpace(raw.Type))) {
	case NodeExample:
		info.Type = NodeExample
	case NodeApplication:
		info.Type = NodeApplication
	default:
		info.Type = NodeConcept
	}
	info.Confidence = clamp01(raw.Confidence)
	for _, ev := range raw.Evidence {
		page := int(ev.Page)
		snippet := strings.TrimSpace(ev.Snippet)
		if page <= 0 || snippet == "" {
			continue
		}
		conf := 1.0
		if ev.Confidence != nil {
			conf = clamp01(*ev.Confidence)
		}
		info.Evidence = append(info.Evidence, db.Citation{Page: page, Snippet: snippet, Confidence: conf})
	}
	for _, r := range raw.Relationships {
		target := strings.TrimSpace(r.Target)
		if target == "" {
			continue
		}
		info.Relationships = append(info.Relationships, Relationship{
			Target: target,
			Type:   ParseRelationType(r.Type),
			Score:  clamp01(r.Score),
		})
	}
	return info, nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
