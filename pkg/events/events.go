package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStart to EventTypeFinal describe one streamed generation into
	// an assistant node.
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	// Separate partial stream for reasoning text
	EventTypePartialThinking EventType = "partial-thinking"
	EventTypeFinal           EventType = "final"
	EventTypeError           EventType = "error"

	// User facing messages (failed uploads, provider errors, sync results)
	EventTypeNotification EventType = "notification"

	// Mirrors of conversation.StoreEvent
	EventTypeStore EventType = "store"
)

const (
	TopicChat  = "chat"
	TopicStore = "store"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata is passed along with every watermill message.
type EventMetadata struct {
	ID uuid.UUID `json:"message_id" yaml:"message_id"`
	// RunID groups the events of one generation or one sync.
	RunID  string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	NodeID string `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`
}

func NewEventMetadata(runID string, nodeID string, model string) EventMetadata {
	return EventMetadata{
		ID:     uuid.New(),
		RunID:  runID,
		NodeID: nodeID,
		Model:  model,
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.RunID != "" {
		e.Str("run_id", em.RunID)
	}
	if em.NodeID != "" {
		e.Str("node_id", em.NodeID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON if the event was deserialized by NewEventFromJson
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

type EventPartialCompletionStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventPartialCompletionStart {
	return &EventPartialCompletionStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
	}
}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the assistant message so far.
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  EventImpl{Type_: EventTypePartialCompletion, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

type EventThinkingPartial struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewThinkingPartialEvent(metadata EventMetadata, delta string, completion string) *EventThinkingPartial {
	return &EventThinkingPartial{
		EventImpl:  EventImpl{Type_: EventTypePartialThinking, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

type EventNotification struct {
	EventImpl
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message,omitempty"`
}

func NewNotificationEvent(metadata EventMetadata, level NotificationLevel, title string, message string) *EventNotification {
	return &EventNotification{
		EventImpl: EventImpl{Type_: EventTypeNotification, Metadata_: metadata},
		Level:     level,
		Title:     title,
		Message:   message,
	}
}

// EventStore mirrors a committed store mutation.
type EventStore struct {
	EventImpl
	Change  string   `json:"change"`
	NodeIDs []string `json:"node_ids,omitempty"`
}

func NewStoreEvent(metadata EventMetadata, change string, nodeIDs []string) *EventStore {
	return &EventStore{
		EventImpl: EventImpl{Type_: EventTypeStore, Metadata_: metadata},
		Change:    change,
		NodeIDs:   nodeIDs,
	}
}

var (
	_ Event = &EventPartialCompletionStart{}
	_ Event = &EventPartialCompletion{}
	_ Event = &EventThinkingPartial{}
	_ Event = &EventFinal{}
	_ Event = &EventError{}
	_ Event = &EventNotification{}
	_ Event = &EventStore{}
)

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		return toTypedEvent[EventPartialCompletionStart](e)
	case EventTypePartialCompletion:
		return toTypedEvent[EventPartialCompletion](e)
	case EventTypePartialThinking:
		return toTypedEvent[EventThinkingPartial](e)
	case EventTypeFinal:
		return toTypedEvent[EventFinal](e)
	case EventTypeError:
		return toTypedEvent[EventError](e)
	case EventTypeNotification:
		return toTypedEvent[EventNotification](e)
	case EventTypeStore:
		return toTypedEvent[EventStore](e)
	}

	return e, nil
}

type typedEvent interface {
	Event
	setPayload([]byte)
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}

func toTypedEvent[T any, PT interface {
	*T
	typedEvent
}](e *EventImpl) (Event, error) {
	var ret PT = new(T)
	if err := json.Unmarshal(e.payload, ret); err != nil {
		return nil, fmt.Errorf("could not cast event to %s: %w", e.Type_, err)
	}
	ret.setPayload(e.payload)
	return ret, nil
}
