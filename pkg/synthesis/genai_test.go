package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/doclens/doclens/pkg/db"
)

func TestToGenaiContentsRoles(t *testing.T) {
	turns := []Turn{
		{Role: db.RoleUser, Text: "What is attention?", Images: []Image{{MIMEType: "image/png", Data: []byte{1, 2}}}},
		{Role: db.RoleModel, Text: "A weighting of tokens."},
	}
	contents := toGenaiContents(turns)
	require.Len(t, contents, 2)

	assert.Equal(t, string(genai.RoleUser), string(contents[0].Role))
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "What is attention?", contents[0].Parts[0].Text)
	require.NotNil(t, contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", contents[0].Parts[1].InlineData.MIMEType)

	assert.Equal(t, string(genai.RoleModel), string(contents[1].Role))
	require.Len(t, contents[1].Parts, 1)
}
