package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
)

func textConversation(id string, updatedAt int64, contentSize int) *db.Conversation {
	return &db.Conversation{
		ID:        id,
		Title:     "t",
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
		Messages: []db.Message{{
			ID:        id + "-m0",
			Role:      db.RoleUser,
			Content:   strings.Repeat("x", contentSize),
			Timestamp: updatedAt,
		}},
	}
}

func imageConversation(id string, updatedAt int64, images, imageSize int) *db.Conversation {
	c := &db.Conversation{ID: id, Title: "t", CreatedAt: updatedAt, UpdatedAt: updatedAt}
	for i := 0; i < images; i++ {
		c.Messages = append(c.Messages, db.Message{
			ID:          id + "-m" + string(rune('a'+i)),
			Role:        db.RoleUser,
			Content:     "m",
			Timestamp:   updatedAt,
			Attachments: []db.Attachment{{Type: db.AttachmentTypeImage, Data: strings.Repeat("A", imageSize)}},
		})
	}
	return c
}

func ids(convs []db.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

type failingBackend struct {
	*MemoryBackend
	err error
}

func (f *failingBackend) Set(context.Context, string, []byte) error { return f.err }

func TestSave_UpsertAndListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore(NewMemoryBackend())

	require.NoError(t, s.Save(ctx, textConversation("a", 1, 10)))
	require.NoError(t, s.Save(ctx, textConversation("b", 3, 10)))
	require.NoError(t, s.Save(ctx, textConversation("c", 2, 10)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(list))

	updated := textConversation("a", 5, 10)
	updated.Title = "renamed"
	require.NoError(t, s.Save(ctx, updated))

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(list))
	assert.Equal(t, "renamed", list[0].Title)
}

func TestSave_EvictsOldestOnCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore(Limit(NewMemoryBackend(), 2600))

	require.NoError(t, s.Save(ctx, textConversation("a", 1, 1000)))
	require.NoError(t, s.Save(ctx, textConversation("b", 2, 1000)))
	require.NoError(t, s.Save(ctx, textConversation("c", 3, 1000)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(list))
}

func TestSave_StripsOlderImagesWhenSingleConversationTooLarge(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore(Limit(NewMemoryBackend(), 1800))

	require.NoError(t, s.Save(ctx, textConversation("old", 1, 10)))
	require.NoError(t, s.Save(ctx, imageConversation("big", 2, 4, 500)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"big"}, ids(list))

	msgs := list[0].Messages
	require.Len(t, msgs, 4)
	assert.False(t, msgs[0].HasAttachments())
	assert.False(t, msgs[1].HasAttachments())
	assert.True(t, msgs[2].HasAttachments())
	assert.True(t, msgs[3].HasAttachments())
}

func TestSave_ReportsFailureWhenNothingFits(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore(Limit(NewMemoryBackend(), 500))

	require.NoError(t, s.Save(ctx, textConversation("small", 1, 10)))

	err := s.Save(ctx, textConversation("huge", 2, 5000))
	require.ErrorIs(t, err, apperr.ErrStorageCapacity)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"small"}, ids(list), "abandoned write must not change stored state")
}

func TestSave_FailsAfterStrippingIfStillTooLarge(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore(Limit(NewMemoryBackend(), 900))

	err := s.Save(ctx, imageConversation("big", 1, 4, 500))
	require.ErrorIs(t, err, apperr.ErrStorageCapacity)
}

func TestSave_DegradationIsDeterministic(t *testing.T) {
	run := func() []byte {
		ctx := context.Background()
		mem := NewMemoryBackend()
		s := NewConversationStore(Limit(mem, 1800))
		require.NoError(t, s.Save(ctx, textConversation("old", 1, 10)))
		require.NoError(t, s.Save(ctx, imageConversation("big", 2, 5, 500)))
		raw, err := mem.Get(ctx, StorageKey)
		require.NoError(t, err)
		return raw
	}
	assert.Equal(t, string(run()), string(run()))
}

func TestSave_NonCapacityErrorAbortsImmediately(t *testing.T) {
	ctx := context.Background()
	disk := errors.New("disk unavailable")
	s := NewConversationStore(&failingBackend{MemoryBackend: NewMemoryBackend(), err: disk})

	err := s.Save(ctx, textConversation("a", 1, 10))
	require.ErrorIs(t, err, disk)
	assert.NotErrorIs(t, err, apperr.ErrStorageCapacity)
}

func TestStripAttachments(t *testing.T) {
	conv := imageConversation("c", 1, 4, 8)
	conv.Messages = append(conv.Messages, db.Message{ID: "text", Role: db.RoleModel, Content: "no image"})

	once, changed := StripAttachments(conv, KeepRecentImages)
	require.True(t, changed)
	twice, changedAgain := StripAttachments(once, KeepRecentImages)
	assert.False(t, changedAgain)
	assert.Equal(t, once, twice)

	assert.True(t, conv.Messages[0].HasAttachments(), "input must not be modified")

	_, changed = StripAttachments(imageConversation("few", 1, 2, 8), KeepRecentImages)
	assert.False(t, changed)
}

func TestDeleteAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore(NewMemoryBackend())
	require.NoError(t, s.Save(ctx, textConversation("a", 1, 10)))
	require.NoError(t, s.Save(ctx, textConversation("b", 2, 10)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))

	_, err = s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrConversationNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(list))
}

func TestUpdateTitle_BumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(10_000)
	s := NewConversationStore(NewMemoryBackend(), WithClock(func() time.Time { return now }))
	require.NoError(t, s.Save(ctx, textConversation("a", 1, 10)))
	require.NoError(t, s.Save(ctx, textConversation("b", 2, 10)))

	require.NoError(t, s.UpdateTitle(ctx, "a", "Attention Mechanism Overview"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(list))
	assert.Equal(t, "Attention Mechanism Overview", list[0].Title)
	assert.Equal(t, int64(10_000), list[0].UpdatedAt)

	require.ErrorIs(t, s.UpdateTitle(ctx, "missing", "x"), ErrConversationNotFound)
}

func TestList_CorruptDataYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.Set(ctx, StorageKey, []byte("{not json")))
	s := NewConversationStore(mem)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
