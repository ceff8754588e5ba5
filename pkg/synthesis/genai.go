package synthesis

import (
	"context"
	"errors"
	"iter"

	"google.golang.org/genai"

	"github.com/doclens/doclens/pkg/db"
)

// GenaiCompleter talks to Gemini directly. It supports schema-constrained
// JSON and image editing, which the eino adapters do not expose.
type GenaiCompleter struct {
	client     *genai.Client
	model      string
	imageModel string
}

// NewGenaiClient creates a Gemini API client for apiKey.
func NewGenaiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func NewGenaiCompleter(client *genai.Client, model, imageModel string) *GenaiCompleter {
	return &GenaiCompleter{client: client, model: model, imageModel: imageModel}
}

func (g *GenaiCompleter) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var cfg *genai.GenerateContentConfig
		if req.System != "" {
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			}
		}
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, toGenaiContents(req.Turns), cfg) {
			if err != nil {
				yield("", err)
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (g *GenaiCompleter) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (g *GenaiCompleter) GenerateJSON(ctx context.Context, prompt string, s *Schema) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(s),
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (g *GenaiCompleter) EditImage(ctx context.Context, img Image, instruction string) ([]Part, error) {
	if g.imageModel == "" {
		return nil, errors.New("image model not configured")
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(img.Data, img.MIMEType),
		genai.NewPartFromText(instruction),
	}, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, contents, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	var parts []Part
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.InlineData != nil {
			parts = append(parts, Part{Image: &Image{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}})
			continue
		}
		if p.Text != "" {
			parts = append(parts, Part{Text: p.Text})
		}
	}
	return parts, nil
}

func toGenaiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == db.RoleModel {
			role = genai.Role(genai.RoleModel)
		}
		parts := make([]*genai.Part, 0, len(t.Images)+1)
		if t.Text != "" {
			parts = append(parts, genai.NewPartFromText(t.Text))
		}
		for _, img := range t.Images {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     genaiType(s.Type),
		Enum:     s.Enum,
		Required: s.Required,
		Items:    toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeArray:
		return genai.TypeArray
	case TypeNumber:
		return genai.TypeNumber
	case TypeInteger:
		return genai.TypeInteger
	case TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
