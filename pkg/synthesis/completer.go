// Package synthesis talks to the language model: grounded streaming answers,
// structured node details, outline generation, image remixes and titles.
package synthesis

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strings"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
)

// Image is decoded image data.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURI encodes the image as a data: URI.
func (i Image) DataURI() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Turn is one role-tagged multi-part entry of the prompt history.
type Turn struct {
	Role   db.Role
	Text   string
	Images []Image
}

// Request is a full streaming prompt.
type Request struct {
	System string
	Turns  []Turn
}

// Part is one piece of an image-edit response.
type Part struct {
	Text  string
	Image *Image
}

// Completer is the text side of the completion service.
type Completer interface {
	// Stream yields text fragments in arrival order. A non-nil error ends the sequence.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateJSON returns the raw JSON text of a response constrained by schema.
	GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error)
}

// ImageEditor sends an image with an instruction to an image-capable model.
type ImageEditor interface {
	EditImage(ctx context.Context, img Image, instruction string) ([]Part, error)
}

// DecodeImage accepts raw base64 or a data: URI. Plain base64 is assumed to be PNG.
func DecodeImage(data string) (Image, error) {
	mime := "image/png"
	payload := strings.TrimSpace(data)
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return Image{}, apperr.Validation("decode_image", "malformed data uri")
		}
		header = strings.TrimPrefix(header, "data:")
		if m, _, _ := strings.Cut(header, ";"); m != "" {
			mime = m
		}
		payload = rest
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, apperr.Validation("decode_image", "invalid base64 image data")
	}
	if len(raw) == 0 {
		return Image{}, apperr.Validation("decode_image", "empty image")
	}
	return Image{MIMEType: mime, Data: raw}, nil
}

// historyTurns maps stored messages to prompt turns. Error messages and
// empty messages carry nothing the model can use and are skipped.
func historyTurns(history []db.Message) ([]Turn, error) {
	turns := make([]Turn, 0, len(history))
	for i := range history {
		m := &history[i]
		if m.IsError {
			continue
		}
		t := Turn{Role: m.Role, Text: m.Content}
		for _, a := range m.Attachments {
			if a.Type != db.AttachmentTypeImage || a.Data == "" {
				continue
			}
			img, err := DecodeImage(a.Data)
			if err != nil {
				return nil, fmt.Errorf("history message %s: %w", m.ID, err)
			}
			t.Images = append(t.Images, img)
		}
		if t.Text == "" && len(t.Images) == 0 {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}
