package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/db"
)

func TestEmitter_DispatchOrder(t *testing.T) {
	e := NewEmitter()
	var got []string
	e.On(MessageUpdated, func(ev Event) { got = append(got, "specific:"+ev.EventName()) })
	e.OnAny(func(ev Event) { got = append(got, "any:"+ev.EventName()) })
	e.On(MapClosed, func(Event) { got = append(got, "never") })

	e.Emit(MessageUpdatedEvent{ConversationID: "c", MessageID: "m"})
	assert.Equal(t, []string{"specific:message.updated", "any:message.updated"}, got)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter()
	var a, b, wild int
	offA := e.On(MapClosed, func(Event) { a++ })
	e.On(MapClosed, func(Event) { b++ })
	offAny := e.OnAny(func(Event) { wild++ })

	e.Emit(MapClosedEvent{})
	offA()
	offAny()
	offA() // second call is a no-op
	e.Emit(MapClosedEvent{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, wild)
}

func TestEmitter_UnsubscribeDuringDispatch(t *testing.T) {
	e := NewEmitter()
	calls := 0
	var off func()
	off = e.On(MapOpened, func(Event) {
		calls++
		off()
	})
	e.Emit(MapOpenedEvent{})
	e.Emit(MapOpenedEvent{})
	assert.Equal(t, 1, calls)
}

func TestEventToData(t *testing.T) {
	data := eventToData(ChatLaunchRequestedEvent{Payload: db.ChatContextPayload{
		SelectedConcept: "Attention",
		ContextType:     db.ContextStrict,
		NodeHierarchy:   "Paper > Attention",
	}})
	require.NotNil(t, data)
	payload, ok := data["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Attention", payload["selectedConcept"])
	assert.Equal(t, "strict", payload["contextType"])

	data = eventToData(NodeClickedEvent{NodeID: "n1", Label: "L", Path: []string{"R", "L"}})
	assert.Equal(t, "n1", data["nodeId"])
	assert.Equal(t, []any{"R", "L"}, data["path"])
}

func TestParseEventFilter(t *testing.T) {
	assert.Nil(t, parseEventFilter(""))
	assert.Nil(t, parseEventFilter(" , "))
	assert.Equal(t, map[string]bool{"map.opened": true, "message.updated": true},
		parseEventFilter("map.opened, message.updated,"))
}
