package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/utils"
)

// StorageKey is the namespaced key holding every conversation as one JSON array.
const StorageKey = "doclens_conversations_v3"

// KeepRecentImages is how many image-bearing messages survive stripping.
const KeepRecentImages = 2

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore serializes all conversations under a single key and
// degrades gracefully when the backend runs out of capacity.
type ConversationStore struct {
	mu      sync.Mutex
	backend Backend
	key     string
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*ConversationStore)

// WithKey overrides StorageKey.
func WithKey(key string) Option {
	return func(s *ConversationStore) { s.key = key }
}

// WithClock overrides time.Now, used for title updates.
func WithClock(now func() time.Time) Option {
	return func(s *ConversationStore) { s.now = now }
}

func NewConversationStore(backend Backend, opts ...Option) *ConversationStore {
	s := &ConversationStore{
		backend: backend,
		key:     StorageKey,
		now:     time.Now,
		logger:  utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all conversations, most recently updated first.
// Unreadable stored data yields an empty list.
func (s *ConversationStore) List(ctx context.Context) ([]db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns a copy of one conversation.
func (s *ConversationStore) Get(ctx context.Context, id string) (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrConversationNotFound
}

// Save upserts conv. When the backend reports a capacity error the oldest
// conversations are evicted one at a time; with a single conversation left,
// attachments are stripped from all but its most recent image-bearing
// messages and the write is retried once. If nothing fits the write is
// abandoned and a storage capacity error is returned.
func (s *ConversationStore) Save(ctx context.Context, conv *db.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range all {
		if all[i].ID == conv.ID {
			all[i] = *conv.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		all = append([]db.Conversation{*conv.Clone()}, all...)
	}
	sortByUpdatedDesc(all)

	return s.writeDegrading(ctx, all)
}

func (s *ConversationStore) writeDegrading(ctx context.Context, all []db.Conversation) error {
	for {
		err := s.write(ctx, all)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrStorageCapacity) {
			return err
		}
		if len(all) <= 1 {
			break
		}
		evicted := all[len(all)-1]
		all = all[:len(all)-1]
		s.logger.Warn("Storage capacity exceeded, evicting oldest conversation",
			"conversationID", evicted.ID, "remaining", len(all))
	}

	if len(all) == 0 {
		return apperr.StorageCapacity("save", "nothing to write", nil)
	}

	stripped, changed := StripAttachments(&all[0], KeepRecentImages)
	if !changed {
		s.logger.Error("Conversation too large for storage despite no strippable images",
			"conversationID", all[0].ID)
		return apperr.StorageCapacity("save", "conversation too large and has no strippable images", nil)
	}
	if err := s.write(ctx, []db.Conversation{*stripped}); err != nil {
		s.logger.Error("Storage failed even after stripping images",
			"conversationID", stripped.ID, "error", err)
		if errors.Is(err, apperr.ErrStorageCapacity) {
			return apperr.StorageCapacity("save", "conversation too large after stripping images", err)
		}
		return err
	}
	s.logger.Warn("Single conversation too large, stripped older images", "conversationID", stripped.ID)
	return nil
}

// Delete removes the conversation with the given id. Missing ids are ignored.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, c := range all {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	return s.write(ctx, kept)
}

// UpdateTitle sets the title, bumps UpdatedAt and saves through the
// degrading write path.
func (s *ConversationStore) UpdateTitle(ctx context.Context, id, title string) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	conv.Title = title
	conv.Touch(s.now())
	return s.Save(ctx, conv)
}

func (s *ConversationStore) load(ctx context.Context) ([]db.Conversation, error) {
	raw, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return []db.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	var all []db.Conversation
	if err := json.Unmarshal(raw, &all); err != nil {
		s.logger.Error("Failed to load conversations", "error", apperr.Parse("load", "invalid stored json", err))
		return []db.Conversation{}, nil
	}
	sortByUpdatedDesc(all)
	return all, nil
}

func (s *ConversationStore) write(ctx context.Context, all []db.Conversation) error {
	if all == nil {
		all = []db.Conversation{}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal conversations: %w", err)
	}
	return s.backend.Set(ctx, s.key, data)
}

func sortByUpdatedDesc(all []db.Conversation) {
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt > all[j].UpdatedAt
	})
}

// StripAttachments returns a copy of conv in which only the keep most recent
// messages carrying attachments still have them. changed is false when there
// was nothing to strip.
func StripAttachments(conv *db.Conversation, keep int) (*db.Conversation, bool) {
	out := conv.Clone()
	seen := 0
	changed := false
	for i := len(out.Messages) - 1; i >= 0; i-- {
		if !out.Messages[i].HasAttachments() {
			continue
		}
		seen++
		if seen > keep {
			out.Messages[i].Attachments = nil
			changed = true
		}
	}
	return out, changed
}
