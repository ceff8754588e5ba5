// Persisted conversation model
package db

import (
	"time"

	"github.com/google/uuid"
)

const DefaultConversationTitle = "New Analysis"

// Conversation is one analysis thread. Messages are kept in append order.
// Timestamps are Unix milliseconds.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
	FileName  string    `json:"fileName,omitempty"`
}

// NewConversation creates an empty conversation titled after the document, if any.
func NewConversation(fileName string, now time.Time) *Conversation {
	title := DefaultConversationTitle
	if fileName != "" {
		title = "Analysis: " + fileName
	}
	ms := now.UnixMilli()
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: ms,
		UpdatedAt: ms,
		FileName:  fileName,
	}
}

// Clone returns a deep copy safe to mutate independently.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i := range c.Messages {
		out.Messages[i] = c.Messages[i].Clone()
	}
	return &out
}

// Touch bumps UpdatedAt.
func (c *Conversation) Touch(now time.Time) {
	c.UpdatedAt = now.UnixMilli()
}

// MessageIndex returns the position of the message with the given id, or -1.
func (c *Conversation) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}
