package synthesis

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/doclens/doclens/pkg/db"
)

// EinoCompleter adapts any eino chat model (openai, claude, ark, ollama, ...)
// to Completer and ImageEditor. Image edits through a chat model only ever
// return text.
type EinoCompleter struct {
	model einoModel.BaseChatModel
}

func NewEinoCompleter(m einoModel.BaseChatModel) *EinoCompleter {
	return &EinoCompleter{model: m}
}

func (e *EinoCompleter) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reader, err := e.model.Stream(ctx, toEinoMessages(req))
		if err != nil {
			yield("", err)
			return
		}
		defer reader.Close()

		for {
			chunk, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}
			if !yield(chunk.Content, nil) {
				return
			}
		}
	}
}

func (e *EinoCompleter) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := e.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateJSON describes the schema in the prompt and trims the reply to its
// outermost JSON object.
func (e *EinoCompleter) GenerateJSON(ctx context.Context, prompt string, s *Schema) (string, error) {
	full := prompt + "\n\nRespond with a single JSON object and nothing else. The object must match this JSON schema:\n" + s.String()
	content, err := e.Generate(ctx, full)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx >= 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}
	return content, nil
}

func (e *EinoCompleter) EditImage(ctx context.Context, img Image, instruction string) ([]Part, error) {
	msg := toEinoMessage(Turn{Role: db.RoleUser, Text: instruction, Images: []Image{img}})
	resp, err := e.model.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return nil, err
	}
	return []Part{{Text: resp.Content}}, nil
}

func toEinoMessages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Turns)+1)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	for _, t := range req.Turns {
		msgs = append(msgs, toEinoMessage(t))
	}
	return msgs
}

func toEinoMessage(t Turn) *schema.Message {
	role := schema.User
	if t.Role == db.RoleModel {
		role = schema.Assistant
	}
	if len(t.Images) == 0 {
		return &schema.Message{Role: role, Content: t.Text}
	}
	parts := make([]schema.ChatMessagePart, 0, len(t.Images)+1)
	if t.Text != "" {
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: t.Text})
	}
	for _, img := range t.Images {
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: img.DataURI(), Detail: "auto"},
		})
	}
	return &schema.Message{Role: role, MultiContent: parts}
}
