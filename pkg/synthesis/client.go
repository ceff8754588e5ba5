package synthesis

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/utils"
)

var ErrNoImageModel = errors.New("no image-capable model configured")

// Client is stateless apart from its collaborators and safe for concurrent use.
type Client struct {
	text   Completer
	images ImageEditor
	logger *slog.Logger
}

// NewClient creates a client. images may be nil, in which case remixes fail
// with a transport error.
func NewClient(text Completer, images ImageEditor) *Client {
	return &Client{
		text:   text,
		images: images,
		logger: utils.GetLogger(),
	}
}

// AnswerRequest is one grounded question.
type AnswerRequest struct {
	History  []db.Message
	Query    string
	Image    string // base64 or data: URI
	Document *DocumentContext
	Focus    *db.ChatContextPayload
}

// RemixResult is the outcome of an image remix. Image is a data: URI and is
// empty when the model returned no image.
type RemixResult struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// StreamAnswer streams a citation-annotated answer. Fragments are yielded in
// arrival order; a failure is yielded once as a synthesis error and ends the
// sequence. Fragments already yielded stay valid.
func (c *Client) StreamAnswer(ctx context.Context, req AnswerRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		turns, err := historyTurns(req.History)
		if err != nil {
			yield("", apperr.Synthesis("stream_answer", err))
			return
		}

		focus := ""
		if req.Focus != nil {
			focus = req.Focus.SelectedConcept
		}
		current := Turn{Role: db.RoleUser, Text: buildAnswerPrompt(req.Query, req.Document, focus)}
		if req.Image != "" {
			img, err := DecodeImage(req.Image)
			if err != nil {
				yield("", apperr.Synthesis("stream_answer", err))
				return
			}
			current.Images = []Image{img}
		}
		turns = append(turns, current)

		for chunk, err := range c.text.Stream(ctx, Request{System: SystemInstruction, Turns: turns}) {
			if err != nil {
				c.logger.Error("Answer stream failed", "error", err)
				yield("", apperr.Synthesis("stream_answer", apperr.Transport("stream_answer", err)))
				return
			}
			if chunk == "" {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// FetchNodeDetails never fails: transport and parse errors yield DefaultNodeInfo.
func (c *Client) FetchNodeDetails(ctx context.Context, concept, documentContext string) DetailedNodeInfo {
	text, err := c.text.GenerateJSON(ctx, nodeDetailsPrompt(concept, documentContext), nodeDetailsSchema)
	if err != nil {
		c.logger.Warn("Node details request failed", "concept", concept,
			"error", apperr.Transport("fetch_node_details", err))
		return DefaultNodeInfo(concept)
	}
	info, err := parseNodeDetails(concept, text)
	if err != nil {
		c.logger.Warn("Node details response unusable", "concept", concept, "error", err)
		return DefaultNodeInfo(concept)
	}
	return info
}

// GenerateMindMap returns a markdown outline. It falls back to a single
// heading with the title when the response has no outline markers and to
// ErrorOutline when the request fails.
func (c *Client) GenerateMindMap(ctx context.Context, documentTitle, rootConcept string) string {
	text, err := c.text.Generate(ctx, mindMapPrompt(documentTitle, rootConcept))
	if err != nil {
		c.logger.Warn("Mind map request failed", "title", documentTitle,
			"error", apperr.Transport("generate_mind_map", err))
		return ErrorOutline
	}
	if outline, ok := ExtractOutline(text); ok {
		return outline
	}
	return "# " + documentTitle
}

// GenerateRemix asks the image model to edit image according to instruction.
// All text parts are concatenated and only the first image part is kept.
func (c *Client) GenerateRemix(ctx context.Context, instruction, image string, doc *DocumentContext) (RemixResult, error) {
	img, err := DecodeImage(image)
	if err != nil {
		return RemixResult{}, err
	}
	if c.images == nil {
		return RemixResult{}, apperr.Transport("generate_remix", ErrNoImageModel)
	}
	parts, err := c.images.EditImage(ctx, img, remixPrompt(instruction, doc))
	if err != nil {
		return RemixResult{}, apperr.Transport("generate_remix", err)
	}

	var (
		text   strings.Builder
		result RemixResult
	)
	for _, p := range parts {
		if p.Image != nil {
			if result.Image == "" && len(p.Image.Data) > 0 {
				result.Image = p.Image.DataURI()
			}
			continue
		}
		text.WriteString(p.Text)
	}
	result.Text = text.String()
	if strings.TrimSpace(result.Text) == "" {
		result.Text = RemixFallbackText
	}
	return result, nil
}

// GenerateTitle is best effort and returns DefaultTitle on any failure.
func (c *Client) GenerateTitle(ctx context.Context, firstQuery string) string {
	text, err := c.text.Generate(ctx, titlePrompt(firstQuery))
	if err != nil {
		c.logger.Warn("Title request failed", "error", apperr.Transport("generate_title", err))
		return DefaultTitle
	}
	title := strings.Trim(strings.TrimSpace(text), "\"'*#")
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// CompareConcepts asks for a table contrasting two or more concepts.
func (c *Client) CompareConcepts(ctx context.Context, concepts []string) (string, error) {
	cleaned := make([]string, 0, len(concepts))
	for _, s := range concepts {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) < 2 {
		return "", apperr.Validation("compare_concepts", "need at least two concepts, got %d", len(cleaned))
	}
	text, err := c.text.Generate(ctx, comparePrompt(cleaned))
	if err != nil {
		return "", apperr.Transport("compare_concepts", err)
	}
	return text, nil
}
