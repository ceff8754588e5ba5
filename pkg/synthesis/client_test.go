package synthesis

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
)

var pngData = base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))

func collect(t *testing.T, seq func(func(string, error) bool)) ([]string, error) {
	t.Helper()
	var chunks []string
	var streamErr error
	seq(func(s string, err error) bool {
		if err != nil {
			streamErr = err
			return false
		}
		chunks = append(chunks, s)
		return true
	})
	return chunks, streamErr
}

func TestStreamAnswer_BuildsGroundedPrompt(t *testing.T) {
	fc := &fakeCompleter{chunks: []string{"The ", "paper ", "shows..."}}
	c := NewClient(fc, nil)

	history := []db.Message{
		{ID: "1", Role: db.RoleUser, Content: "What is this?", Attachments: []db.Attachment{{Type: db.AttachmentTypeImage, Data: "data:image/jpeg;base64," + pngData}}},
		{ID: "2", Role: db.RoleModel, Content: "Error communicating with AI.", IsError: true},
		{ID: "3", Role: db.RoleModel, Content: "A diagram."},
		{ID: "4", Role: db.RoleModel, Content: ""},
	}
	chunks, err := collect(t, c.StreamAnswer(context.Background(), AnswerRequest{
		History:  history,
		Query:    "Summarize this.",
		Image:    pngData,
		Document: &DocumentContext{Title: "paper.pdf", Page: 3},
		Focus:    &db.ChatContextPayload{SelectedConcept: "Attention", ContextType: db.ContextLiberal},
	}))
	require.NoError(t, err)
	assert.Equal(t, "The paper shows...", strings.Join(chunks, ""))

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, SystemInstruction, req.System)
	require.Len(t, req.Turns, 3)

	assert.Equal(t, db.RoleUser, req.Turns[0].Role)
	require.Len(t, req.Turns[0].Images, 1)
	assert.Equal(t, "image/jpeg", req.Turns[0].Images[0].MIMEType)
	assert.Equal(t, "A diagram.", req.Turns[1].Text)

	last := req.Turns[2]
	assert.Equal(t, db.RoleUser, last.Role)
	assert.True(t, strings.HasPrefix(last.Text, "Document Context: \"paper.pdf\", Page 3\nFocusing on concept: \"Attention\"\nRequest: Summarize this.\n"))
	assert.Contains(t, last.Text, `[CITATION: page_number | "brief_snippet"]`)
	require.Len(t, last.Images, 1)
	assert.Equal(t, "image/png", last.Images[0].MIMEType)
}

func TestStreamAnswer_PromptWithoutContext(t *testing.T) {
	fc := &fakeCompleter{}
	c := NewClient(fc, nil)

	_, err := collect(t, c.StreamAnswer(context.Background(), AnswerRequest{Query: "Hi"}))
	require.NoError(t, err)
	require.Len(t, fc.requests, 1)
	assert.True(t, strings.HasPrefix(fc.requests[0].Turns[0].Text, "Request: Hi\n\n"))
}

func TestStreamAnswer_FailureMidStream(t *testing.T) {
	fc := &fakeCompleter{chunks: []string{"partial "}, streamErr: errors.New("503 unavailable")}
	c := NewClient(fc, nil)

	chunks, err := collect(t, c.StreamAnswer(context.Background(), AnswerRequest{Query: "q"}))
	assert.Equal(t, []string{"partial "}, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSynthesis)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestStreamAnswer_InvalidImage(t *testing.T) {
	fc := &fakeCompleter{}
	c := NewClient(fc, nil)

	_, err := collect(t, c.StreamAnswer(context.Background(), AnswerRequest{Query: "q", Image: "%%%"}))
	assert.ErrorIs(t, err, apperr.ErrSynthesis)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, fc.requests)
}

func TestFetchNodeDetails(t *testing.T) {
	t.Run("normalizes response", func(t *testing.T) {
		fc := &fakeCompleter{generateJSON: func(prompt string, s *Schema) (string, error) {
			assert.Same(t, nodeDetailsSchema, s)
			assert.Contains(t, prompt, `Validate concept "Gradient Descent"`)
			return `{"definition":"Iterative optimizer","examples":["SGD"," "],"type":"APPLICATION","confidence":1.7,
				"evidence":[{"page":4,"snippet":"update rule","confidence":0.8},{"page":0,"snippet":"bad"},{"page":2,"snippet":"no conf"}],
				"relationships":[{"target":"Loss","type":"depends_on","score":0.9},{"target":"Momentum","type":"weird","score":-1}]}`, nil
		}}
		info := NewClient(fc, nil).FetchNodeDetails(context.Background(), "Gradient Descent", "# Paper")

		assert.Equal(t, "Gradient Descent", info.Label)
		assert.Equal(t, "Iterative optimizer", info.Definition)
		assert.Equal(t, []string{"SGD"}, info.Examples)
		assert.Equal(t, NodeApplication, info.Type)
		assert.Equal(t, 1.0, info.Confidence)
		assert.Equal(t, []db.Citation{{Page: 4, Snippet: "update rule", Confidence: 0.8}, {Page: 2, Snippet: "no conf", Confidence: 1}}, info.Evidence)
		assert.Equal(t, []Relationship{
			{Target: "Loss", Type: RelationDependsOn, Score: 0.9},
			{Target: "Momentum", Type: RelationRelated, Score: 0},
		}, info.Relationships)
	})

	t.Run("transport failure yields default", func(t *testing.T) {
		fc := &fakeCompleter{generateJSON: func(string, *Schema) (string, error) { return "", errors.New("timeout") }}
		info := NewClient(fc, nil).FetchNodeDetails(context.Background(), "Gradient Descent", "")
		assert.Equal(t, DefaultNodeInfo("Gradient Descent"), info)
		assert.Equal(t, 0.0, info.Confidence)
		assert.Empty(t, info.Evidence)
		assert.Equal(t, "N/A", info.Definition)
		assert.Equal(t, NodeConcept, info.Type)
	})

	t.Run("unparsable json yields default", func(t *testing.T) {
		fc := &fakeCompleter{generateJSON: func(string, *Schema) (string, error) { return "sorry, no", nil }}
		info := NewClient(fc, nil).FetchNodeDetails(context.Background(), "X", "")
		assert.Equal(t, DefaultNodeInfo("X"), info)
	})
}

func TestGenerateMindMap(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
		want  string
	}{
		{"extracts outline", "prose [GRAPH_START]\n# Paper\n- Method [extends]\n[GRAPH_END] tail", nil, "# Paper\n- Method [extends]"},
		{"no markers", "# Something else", nil, "# paper.pdf"},
		{"failure", "", errors.New("boom"), "# Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeCompleter{generate: func(string) (string, error) { return tc.reply, tc.err }}
			assert.Equal(t, tc.want, NewClient(fc, nil).GenerateMindMap(context.Background(), "paper.pdf", ""))
		})
	}

	fc := &fakeCompleter{generate: func(string) (string, error) { return "", nil }}
	NewClient(fc, nil).GenerateMindMap(context.Background(), "paper.pdf", "Backpropagation")
	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], `"Backpropagation"`)
	assert.Contains(t, fc.prompts[0], "[GRAPH_START]")
}

func TestGenerateRemix(t *testing.T) {
	first := &Image{MIMEType: "image/png", Data: []byte("first")}
	second := &Image{MIMEType: "image/png", Data: []byte("second")}

	ed := &fakeEditor{parts: []Part{{Text: "Here "}, {Image: first}, {Text: "it is"}, {Image: second}}}
	res, err := NewClient(&fakeCompleter{}, ed).GenerateRemix(context.Background(), "Add arrows", pngData, &DocumentContext{Title: "paper.pdf", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, "Here it is", res.Text)
	assert.Equal(t, first.DataURI(), res.Image)
	assert.Contains(t, ed.instruction, "from paper.pdf")
	assert.Contains(t, ed.instruction, "perform this visual remix/edit: Add arrows.")

	ed = &fakeEditor{parts: nil}
	res, err = NewClient(&fakeCompleter{}, ed).GenerateRemix(context.Background(), "x", pngData, nil)
	require.NoError(t, err)
	assert.Equal(t, RemixFallbackText, res.Text)
	assert.Empty(t, res.Image)
	assert.Contains(t, ed.instruction, "from a document")

	_, err = NewClient(&fakeCompleter{}, &fakeEditor{err: errors.New("quota")}).GenerateRemix(context.Background(), "x", pngData, nil)
	assert.ErrorIs(t, err, apperr.ErrTransport)

	_, err = NewClient(&fakeCompleter{}, nil).GenerateRemix(context.Background(), "x", pngData, nil)
	assert.ErrorIs(t, err, apperr.ErrTransport)
	assert.ErrorIs(t, err, ErrNoImageModel)
}

func TestGenerateTitle(t *testing.T) {
	fc := &fakeCompleter{generate: func(p string) (string, error) {
		assert.Equal(t, "Summarize this user query in 4 words for a chat title: Summarize this.", p)
		return " \"Paper Summary Request Overview\"\n", nil
	}}
	assert.Equal(t, "Paper Summary Request Overview", NewClient(fc, nil).GenerateTitle(context.Background(), "Summarize this."))

	fc = &fakeCompleter{generate: func(string) (string, error) { return "", errors.New("down") }}
	assert.Equal(t, DefaultTitle, NewClient(fc, nil).GenerateTitle(context.Background(), "q"))

	fc = &fakeCompleter{generate: func(string) (string, error) { return "  ", nil }}
	assert.Equal(t, DefaultTitle, NewClient(fc, nil).GenerateTitle(context.Background(), "q"))
}

func TestCompareConcepts(t *testing.T) {
	fc := &fakeCompleter{generate: func(p string) (string, error) {
		assert.Equal(t, "Compare: SGD, Adam. Use table format to contrast similarities and differences based on the document.", p)
		return "| a | b |", nil
	}}
	out, err := NewClient(fc, nil).CompareConcepts(context.Background(), []string{"SGD", " Adam ", ""})
	require.NoError(t, err)
	assert.Equal(t, "| a | b |", out)

	_, err = NewClient(fc, nil).CompareConcepts(context.Background(), []string{"only"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage("data:image/webp;base64," + pngData)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
	assert.Equal(t, []byte("\x89PNG fake"), img.Data)

	img, err = DecodeImage(pngData)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = DecodeImage("data:image/png;base64")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = DecodeImage("")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
