// Persisted message model
package db

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

const AttachmentTypeImage = "image"

// Attachment holds base64 image data, optionally as a data: URI.
type Attachment struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Citation points at a page of the loaded document.
type Citation struct {
	Page       int     `json:"page"`
	Snippet    string  `json:"snippet"`
	Confidence float64 `json:"confidence"`
}

// Region is a rectangle in page pixel coordinates.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type ContextType string

const (
	ContextStrict    ContextType = "strict"
	ContextLiberal   ContextType = "liberal"
	ContextExpansive ContextType = "expansive"
)

// Valid reports whether t is one of the known context modes.
func (t ContextType) Valid() bool {
	switch t {
	case ContextStrict, ContextLiberal, ContextExpansive:
		return true
	}
	return false
}

// ChatContextPayload scopes a chat to a mind-map concept.
type ChatContextPayload struct {
	SelectedConcept string      `json:"selectedConcept"`
	ContextType     ContextType `json:"contextType"`
	NodeHierarchy   string      `json:"nodeHierarchy"`
	RelatedConcepts []string    `json:"relatedConcepts,omitempty"`
	Evidence        []Citation  `json:"evidence,omitempty"`
}

type MessageMetadata struct {
	PageNumber        *int                `json:"pageNumber,omitempty"`
	OriginalPrompt    string              `json:"originalPrompt,omitempty"`
	RegionCoordinates *Region             `json:"regionCoordinates,omitempty"`
	ContextPayload    *ChatContextPayload `json:"contextPayload,omitempty"`
	MindmapMarkdown   string              `json:"mindmapMarkdown,omitempty"`
	Citations         []Citation          `json:"citations,omitempty"`
	RelatedNodes      []string            `json:"relatedNodes,omitempty"`
	IsComparison      bool                `json:"isComparison,omitempty"`
}

// Message is one turn of a conversation. A model message may be a placeholder
// whose content is replaced while a reply streams in.
type Message struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   int64            `json:"timestamp"`
	Attachments []Attachment     `json:"attachments,omitempty"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
	IsError     bool             `json:"isError,omitempty"`
}

func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}

// HasAttachments reports whether the message carries any attachment.
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// ImageData returns the first image attachment, if any.
func (m *Message) ImageData() (string, bool) {
	for _, a := range m.Attachments {
		if a.Type == AttachmentTypeImage && a.Data != "" {
			return a.Data, true
		}
	}
	return "", false
}

func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Metadata != nil {
		md := *m.Metadata
		if md.PageNumber != nil {
			p := *md.PageNumber
			md.PageNumber = &p
		}
		if md.RegionCoordinates != nil {
			r := *md.RegionCoordinates
			md.RegionCoordinates = &r
		}
		if md.ContextPayload != nil {
			cp := *md.ContextPayload
			cp.RelatedConcepts = append([]string(nil), cp.RelatedConcepts...)
			cp.Evidence = append([]Citation(nil), cp.Evidence...)
			md.ContextPayload = &cp
		}
		md.Citations = append([]Citation(nil), md.Citations...)
		md.RelatedNodes = append([]string(nil), md.RelatedNodes...)
		out.Metadata = &md
	}
	return out
}
