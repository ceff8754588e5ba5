package mindmap

const (
	LevelSpacing   = 220.0
	SiblingSpacing = 80.0
)

// Layout assigns tidy-tree coordinates: x grows with depth, leaves are spaced
// evenly on y in depth-first order and each parent is centered on its
// children. The root ends up at the origin.
func (g *Graph) Layout() {
	if _, ok := g.nodes[g.rootID]; !ok {
		return
	}
	next := 0.0
	var place func(id string) float64
	place = func(id string) float64 {
		n := g.nodes[id]
		n.X = float64(n.Depth) * LevelSpacing
		if len(n.Children) == 0 {
			n.Y = next
			next += SiblingSpacing
			return n.Y
		}
		first := place(n.Children[0])
		last := first
		for _, c := range n.Children[1:] {
			last = place(c)
		}
		n.Y = (first + last) / 2
		return n.Y
	}
	rootY := place(g.rootID)
	for _, n := range g.nodes {
		n.Y -= rootY
	}
}
