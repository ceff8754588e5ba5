package mindmap

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/doclens/doclens/pkg/apperr"
)

// DefaultRootLabel labels the synthetic root when no fallback title is given.
const DefaultRootLabel = "Document"

var relationTag = regexp.MustCompile(`^(.*?)\s*\[([A-Za-z][A-Za-z _-]*)\]\s*$`)

type outlineItem struct {
	label       string
	description string
	relation    string
	children    []*outlineItem
}

func newItem(raw string) *outlineItem {
	label, relation := splitRelation(raw)
	return &outlineItem{label: label, relation: relation}
}

func (it *outlineItem) describe(s string) {
	if s == "" {
		return
	}
	if it.description == "" {
		it.description = s
		return
	}
	it.description += " " + s
}

// splitRelation strips a trailing "[relation]" tag from a label.
func splitRelation(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	m := relationTag.FindStringSubmatch(raw)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return raw, ""
	}
	rel := strings.ToLower(strings.TrimSpace(m[2]))
	rel = strings.NewReplacer(" ", "_", "-", "_").Replace(rel)
	return strings.TrimSpace(m[1]), rel
}

// ParseOutline builds a concept tree from a markdown outline. Headings nest by
// level; list items nest under the current heading and under each other. A
// single top-level entry becomes the root, several are grouped under a root
// labelled fallbackTitle.
func ParseOutline(markdown, fallbackTitle string) (*Graph, error) {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type open struct {
		level int
		item  *outlineItem
	}
	var (
		tops  []*outlineItem
		stack []open
	)
	attach := func(parent *outlineItem, it *outlineItem) {
		if parent == nil {
			tops = append(tops, it)
			return
		}
		parent.children = append(parent.children, it)
	}
	current := func() *outlineItem {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1].item
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			for len(stack) > 0 && stack[len(stack)-1].level >= node.Level {
				stack = stack[:len(stack)-1]
			}
			label := inlineText(node, src)
			if label == "" {
				continue
			}
			it := newItem(label)
			attach(current(), it)
			stack = append(stack, open{level: node.Level, item: it})
		case *ast.Paragraph:
			if it := current(); it != nil {
				it.describe(inlineText(node, src))
			}
		case *ast.List:
			parent := current()
			for _, it := range listItems(node, src) {
				attach(parent, it)
			}
		}
	}

	if len(tops) == 0 {
		return nil, apperr.Parse("parse_outline", "outline has no headings or list items", nil)
	}

	var root *outlineItem
	if len(tops) == 1 {
		root = tops[0]
	} else {
		title := strings.TrimSpace(fallbackTitle)
		if title == "" {
			title = DefaultRootLabel
		}
		root = &outlineItem{label: title, children: tops}
	}

	g := NewGraph(root.label)
	r := g.nodes[g.rootID]
	r.Description = root.description
	r.Relation = root.relation
	var build func(parentID string, items []*outlineItem)
	build = func(parentID string, items []*outlineItem) {
		for _, it := range items {
			id, _ := g.AddChild(parentID, it.label, it.description, it.relation)
			build(id, it.children)
		}
	}
	build(g.rootID, root.children)
	return g, nil
}

// listItems converts a list into items. An item without text lifts its
// nested entries to its own level.
func listItems(list *ast.List, src []byte) []*outlineItem {
	var out []*outlineItem
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		var (
			it     *outlineItem
			nested []*outlineItem
		)
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			switch block := c.(type) {
			case *ast.TextBlock, *ast.Paragraph:
				s := inlineText(block, src)
				if it == nil {
					if s != "" {
						it = newItem(s)
					}
					continue
				}
				it.describe(s)
			case *ast.List:
				nested = append(nested, listItems(block, src)...)
			}
		}
		if it == nil {
			out = append(out, nested...)
			continue
		}
		it.children = append(it.children, nested...)
		out = append(out, it)
	}
	return out
}

// inlineText collects the plain text of n's inline children.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				b.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(t.Value)
			case *ast.AutoLink:
				b.Write(t.Label(src))
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
