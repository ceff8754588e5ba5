package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/db"
)

type fakeChatModel struct {
	reply     string
	chunks    []string
	streamErr error
	err       error

	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil)
		}
		if f.streamErr != nil {
			sw.Send(nil, f.streamErr)
		}
	}()
	return sr, nil
}

func TestEinoCompleter_Stream(t *testing.T) {
	m := &fakeChatModel{chunks: []string{"a", "", "b"}}
	e := NewEinoCompleter(m)

	var got []string
	for chunk, err := range e.Stream(context.Background(), Request{
		System: "sys",
		Turns: []Turn{
			{Role: db.RoleUser, Text: "look", Images: []Image{{MIMEType: "image/png", Data: []byte("x")}}},
			{Role: db.RoleModel, Text: "ok"},
			{Role: db.RoleUser, Text: "more"},
		},
	}) {
		require.NoError(t, err)
		got = append(got, chunk)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	require.Len(t, m.inputs, 1)
	msgs := m.inputs[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	require.Len(t, msgs[1].MultiContent, 2)
	assert.Equal(t, "look", msgs[1].MultiContent[0].Text)
	assert.Equal(t, "data:image/png;base64,eA==", msgs[1].MultiContent[1].ImageURL.URL)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "more", msgs[3].Content)
}

func TestEinoCompleter_StreamError(t *testing.T) {
	m := &fakeChatModel{chunks: []string{"a"}, streamErr: errors.New("reset")}
	var (
		got     []string
		lastErr error
	)
	for chunk, err := range NewEinoCompleter(m).Stream(context.Background(), Request{}) {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, chunk)
	}
	assert.Equal(t, []string{"a"}, got)
	assert.EqualError(t, lastErr, "reset")

	m = &fakeChatModel{err: errors.New("refused")}
	for _, err := range NewEinoCompleter(m).Stream(context.Background(), Request{}) {
		assert.EqualError(t, err, "refused")
	}
}

func TestEinoCompleter_GenerateJSON(t *testing.T) {
	m := &fakeChatModel{reply: "Sure!\n```json\n{\"definition\":\"d\"}\n```"}
	out, err := NewEinoCompleter(m).GenerateJSON(context.Background(), "describe", nodeDetailsSchema)
	require.NoError(t, err)
	assert.Equal(t, `{"definition":"d"}`, out)

	prompt := m.inputs[0][0].Content
	assert.True(t, strings.HasPrefix(prompt, "describe\n\n"))
	assert.Contains(t, prompt, `"definition"`)
}

func TestEinoCompleter_EditImageReturnsText(t *testing.T) {
	m := &fakeChatModel{reply: "An annotated version would add arrows."}
	parts, err := NewEinoCompleter(m).EditImage(context.Background(), Image{MIMEType: "image/png", Data: []byte("x")}, "annotate")
	require.NoError(t, err)
	assert.Equal(t, []Part{{Text: "An annotated version would add arrows."}}, parts)
}
