package mindmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddChildAndPath(t *testing.T) {
	g := NewGraph("Root")
	a, err := g.AddChild(g.RootID(), "A", "", "")
	require.NoError(t, err)
	b, err := g.AddChild(a, "B", "desc", "extends")
	require.NoError(t, err)

	n, ok := g.Node(b)
	require.True(t, ok)
	assert.Equal(t, 2, n.Depth)
	assert.Equal(t, a, n.ParentID)
	assert.Equal(t, "extends", n.Relation)

	path, err := g.Path(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "A", "B"}, path)

	h, err := g.Hierarchy(b)
	require.NoError(t, err)
	assert.Equal(t, "Root > A > B", h)

	_, err = g.AddChild("missing", "X", "", "")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = g.Path("missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	require.NoError(t, g.Validate())
}

func TestGraph_NodeReturnsCopy(t *testing.T) {
	g := NewGraph("Root")
	_, _ = g.AddChild(g.RootID(), "A", "", "")
	n, _ := g.Node(g.RootID())
	n.Children[0] = "tampered"
	n.Label = "tampered"
	require.NoError(t, g.Validate())
	root, _ := g.Node(g.RootID())
	assert.Equal(t, "Root", root.Label)
}

func TestGraph_Graft(t *testing.T) {
	g, err := ParseOutline("# Paper\n## Method\n## Results\n", "")
	require.NoError(t, err)
	method := g.Nodes()[1]

	sub, err := ParseOutline("# Method\n## Sampling [depends_on]\n### Stratified\n## Coding\n", "")
	require.NoError(t, err)

	added, err := g.Graft(method.ID, sub)
	require.NoError(t, err)
	assert.Len(t, added, 3)
	require.NoError(t, g.Validate())

	assert.Equal(t, []string{
		"Paper",
		"  Method",
		"    Sampling",
		"      Stratified",
		"    Coding",
		"  Results",
	}, labels(g))

	m, _ := g.Node(method.ID)
	assert.True(t, m.IsExpanded)

	subIDs := map[string]bool{}
	for _, n := range sub.Nodes() {
		subIDs[n.ID] = true
	}
	for _, id := range added {
		assert.False(t, subIDs[id], "grafted node reuses id %s", id)
	}
	sampling, _ := g.Node(added[0])
	assert.Equal(t, "depends_on", sampling.Relation)
}

func TestGraph_GraftNothing(t *testing.T) {
	g := NewGraph("Root")
	added, err := g.Graft(g.RootID(), NewGraph("Root"))
	require.NoError(t, err)
	assert.Empty(t, added)
	root, _ := g.Node(g.RootID())
	assert.False(t, root.IsExpanded)

	_, err = g.Graft("missing", NewGraph("x"))
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraph_ValidateDetectsCorruption(t *testing.T) {
	g := NewGraph("Root")
	a, _ := g.AddChild(g.RootID(), "A", "", "")
	g.nodes[a].Depth = 5
	assert.Error(t, g.Validate())

	g = NewGraph("Root")
	a, _ = g.AddChild(g.RootID(), "A", "", "")
	g.nodes[g.rootID].Children = nil
	assert.Error(t, g.Validate())
}

func TestGraph_Layout(t *testing.T) {
	g, err := ParseOutline("# R\n- A\n  - A1\n  - A2\n- B\n", "")
	require.NoError(t, err)
	g.Layout()

	byLabel := map[string]Node{}
	for _, n := range g.Nodes() {
		byLabel[n.Label] = n
	}
	assert.Equal(t, 0.0, byLabel["R"].X)
	assert.Equal(t, 0.0, byLabel["R"].Y)
	assert.Equal(t, LevelSpacing, byLabel["A"].X)
	assert.Equal(t, 2*LevelSpacing, byLabel["A1"].X)

	// Leaves are evenly spaced; parents sit between their first and last child.
	assert.Equal(t, SiblingSpacing, byLabel["A2"].Y-byLabel["A1"].Y)
	assert.Equal(t, SiblingSpacing, byLabel["B"].Y-byLabel["A2"].Y)
	assert.Equal(t, (byLabel["A1"].Y+byLabel["A2"].Y)/2, byLabel["A"].Y)
	assert.Equal(t, (byLabel["A"].Y+byLabel["B"].Y)/2, byLabel["R"].Y)
}
