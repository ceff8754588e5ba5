package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation_Title(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	c := NewConversation("paper.pdf", now)
	assert.Equal(t, "Analysis: paper.pdf", c.Title)
	assert.Equal(t, "paper.pdf", c.FileName)
	assert.Equal(t, now.UnixMilli(), c.CreatedAt)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
	assert.NotEmpty(t, c.ID)
	assert.Empty(t, c.Messages)

	assert.Equal(t, DefaultConversationTitle, NewConversation("", now).Title)
}

func TestConversationClone_IsIndependent(t *testing.T) {
	page := 3
	c := NewConversation("", time.Now())
	msg := NewMessage(RoleUser, "look", time.Now())
	msg.Attachments = []Attachment{{Type: AttachmentTypeImage, Data: "aGk="}}
	msg.Metadata = &MessageMetadata{PageNumber: &page, Citations: []Citation{{Page: 1, Snippet: "x", Confidence: 1}}}
	c.Messages = append(c.Messages, msg)

	cp := c.Clone()
	cp.Messages[0].Attachments[0].Data = "changed"
	*cp.Messages[0].Metadata.PageNumber = 9
	cp.Messages[0].Metadata.Citations[0].Page = 7
	cp.Messages = append(cp.Messages, NewMessage(RoleModel, "", time.Now()))

	require.Len(t, c.Messages, 1)
	assert.Equal(t, "aGk=", c.Messages[0].Attachments[0].Data)
	assert.Equal(t, 3, *c.Messages[0].Metadata.PageNumber)
	assert.Equal(t, 1, c.Messages[0].Metadata.Citations[0].Page)
}

func TestMessageIndexAndImageData(t *testing.T) {
	c := NewConversation("", time.Now())
	a := NewMessage(RoleUser, "a", time.Now())
	b := NewMessage(RoleModel, "b", time.Now())
	b.Attachments = []Attachment{{Type: AttachmentTypeImage, Data: "data:image/png;base64,AAAA"}}
	c.Messages = append(c.Messages, a, b)

	assert.Equal(t, 1, c.MessageIndex(b.ID))
	assert.Equal(t, -1, c.MessageIndex("missing"))

	_, ok := c.Messages[0].ImageData()
	assert.False(t, ok)
	data, ok := c.Messages[1].ImageData()
	assert.True(t, ok)
	assert.Equal(t, "data:image/png;base64,AAAA", data)
}

func TestContextTypeValid(t *testing.T) {
	assert.True(t, ContextStrict.Valid())
	assert.True(t, ContextLiberal.Valid())
	assert.True(t, ContextExpansive.Valid())
	assert.False(t, ContextType("loose").Valid())
}
