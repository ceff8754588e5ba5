package event

import "github.com/doclens/doclens/pkg/db"

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	ConversationCreated = "conversation.created"
	ConversationUpdated = "conversation.updated"
	ConversationDeleted = "conversation.deleted"
	ConversationActive  = "conversation.activeChanged"
	MessageUpdated      = "message.updated"
	TitleUpdated        = "conversation.titleUpdated"
	StorageDegraded     = "storage.degraded"

	DocumentLoaded = "document.loaded"
	PageChanged    = "document.pageChanged"

	MapOpened           = "map.opened"
	MapClosed           = "map.closed"
	MapUpdated          = "map.updated"
	NodeClicked         = "map.nodeClicked"
	ExpandRequested     = "map.expandRequested"
	ChatLaunchRequested = "map.chatLaunchRequested"

	DrillDownUpdated = "drilldown.updated"
	ChatPanelOpened  = "panel.chatOpened"

	ConfigChanged = "system.configChanged"
)

// ============================================================================
// Conversation Events
// ============================================================================

// ConversationCreatedEvent is emitted when a conversation is created.
type ConversationCreatedEvent struct {
	ConversationID string `json:"conversationId"`
}

func (e ConversationCreatedEvent) EventName() string { return ConversationCreated }

// ConversationUpdatedEvent is emitted after any persisted change to a conversation.
type ConversationUpdatedEvent struct {
	ConversationID string `json:"conversationId"`
}

func (e ConversationUpdatedEvent) EventName() string { return ConversationUpdated }

type ConversationDeletedEvent struct {
	ConversationID string `json:"conversationId"`
}

func (e ConversationDeletedEvent) EventName() string { return ConversationDeleted }

// ConversationActiveEvent is emitted when the active conversation changes.
// ConversationID is empty when nothing is selected.
type ConversationActiveEvent struct {
	ConversationID string `json:"conversationId"`
}

func (e ConversationActiveEvent) EventName() string { return ConversationActive }

// MessageUpdatedEvent is emitted on every streamed chunk and on finalization.
// Content is the authoritative accumulated text.
type MessageUpdatedEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
	Done           bool   `json:"done"`
	IsError        bool   `json:"isError,omitempty"`
}

func (e MessageUpdatedEvent) EventName() string { return MessageUpdated }

type TitleUpdatedEvent struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
}

func (e TitleUpdatedEvent) EventName() string { return TitleUpdated }

// StorageDegradedEvent is emitted when a save could not be persisted.
type StorageDegradedEvent struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
}

func (e StorageDegradedEvent) EventName() string { return StorageDegraded }

// ============================================================================
// Document Events
// ============================================================================

type DocumentLoadedEvent struct {
	FileName  string `json:"fileName"`
	PageCount int    `json:"pageCount"`
}

func (e DocumentLoadedEvent) EventName() string { return DocumentLoaded }

type PageChangedEvent struct {
	Page int `json:"page"`
}

func (e PageChangedEvent) EventName() string { return PageChanged }

// ============================================================================
// Mind-Map Events
// ============================================================================

type MapOpenedEvent struct{}

func (e MapOpenedEvent) EventName() string { return MapOpened }

type MapClosedEvent struct{}

func (e MapClosedEvent) EventName() string { return MapClosed }

// MapUpdatedEvent is emitted whenever the node set, selection or highlight changes.
type MapUpdatedEvent struct{}

func (e MapUpdatedEvent) EventName() string { return MapUpdated }

// NodeClickedEvent carries the clicked node and its path from the root.
type NodeClickedEvent struct {
	NodeID string   `json:"nodeId"`
	Label  string   `json:"label"`
	Path   []string `json:"path"`
}

func (e NodeClickedEvent) EventName() string { return NodeClicked }

type ExpandRequestedEvent struct {
	NodeID string `json:"nodeId"`
	Label  string `json:"label"`
}

func (e ExpandRequestedEvent) EventName() string { return ExpandRequested }

// ChatLaunchRequestedEvent is emitted from the node context menu.
type ChatLaunchRequestedEvent struct {
	Payload db.ChatContextPayload `json:"payload"`
}

func (e ChatLaunchRequestedEvent) EventName() string { return ChatLaunchRequested }

// ============================================================================
// Drill-Down / Panel Events
// ============================================================================

type DrillDownUpdatedEvent struct {
	Label      string `json:"label"`
	IsFetching bool   `json:"isFetching"`
}

func (e DrillDownUpdatedEvent) EventName() string { return DrillDownUpdated }

type ChatPanelOpenedEvent struct{}

func (e ChatPanelOpenedEvent) EventName() string { return ChatPanelOpened }

// ============================================================================
// System Events
// ============================================================================

// ConfigChangedEvent is emitted when configuration changes.
type ConfigChangedEvent struct{}

func (e ConfigChangedEvent) EventName() string { return ConfigChanged }
