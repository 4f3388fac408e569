package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/helpers"
	"github.com/rs/zerolog/log"
)

// EventSink receives events from the generator, the uploader and the
// syncer.
type EventSink interface {
	PublishEvent(ctx context.Context, event Event) error
}

// WatermillSink publishes events as JSON to one topic. Every message carries
// a sequence number in the order PublishEvent was called.
type WatermillSink struct {
	publisher message.Publisher
	topic     string

	mu             sync.Mutex
	sequenceNumber uint64
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("sequence_number", strconv.FormatUint(w.sequenceNumber, 10))
	w.sequenceNumber++

	err = w.publisher.Publish(w.topic, msg)
	if err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event to watermill")
	return nil
}

// NullSink discards all events.
type NullSink struct{}

func NewNullSink() *NullSink {
	return &NullSink{}
}

func (n *NullSink) PublishEvent(context.Context, Event) error {
	return nil
}

// CollectingSink keeps events in memory, for tests and batch commands.
type CollectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *CollectingSink) PublishEvent(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *CollectingSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event{}, c.events...)
}

var (
	_ EventSink = (*WatermillSink)(nil)
	_ EventSink = (*NullSink)(nil)
	_ EventSink = (*CollectingSink)(nil)
)

// PublishBlind publishes and only logs failures. Event delivery never fails
// the operation that produced the event.
func PublishBlind(ctx context.Context, sink EventSink, event Event) {
	if sink == nil {
		return
	}
	if err := sink.PublishEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish")
	}
}

// StoreListener forwards store mutations to sink.
func StoreListener(ctx context.Context, sink EventSink) conversation.Listener {
	return func(e conversation.StoreEvent) {
		ids := make([]string, 0, len(e.NodeIDs))
		for _, id := range e.NodeIDs {
			ids = append(ids, id.String())
		}
		PublishBlind(ctx, sink, NewStoreEvent(
			NewEventMetadata(helpers.RunIDFromContext(ctx), "", ""),
			string(e.Type),
			ids,
		))
	}
}
