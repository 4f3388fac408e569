package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WatermillZerologAdapter routes watermill logs into zerolog.
type WatermillZerologAdapter struct {
	logger zerolog.Logger
}

func (w *WatermillZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(fields).Err(err).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) Info(msg string, fields watermill.LogFields) {
	// watermill is chatty at info
	w.logger.Debug().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	l := w.logger.With().Fields(fields).Logger()
	return &WatermillZerologAdapter{logger: l}
}

func NewWatermill(logger zerolog.Logger) *WatermillZerologAdapter {
	return &WatermillZerologAdapter{logger: logger}
}

var _ watermill.LoggerAdapter = &WatermillZerologAdapter{}

const runIDMessageMetadataKey = "run_id"

type runIDKeyType string

const runIDKey runIDKeyType = "run_id"

// NewRunID returns a short id for one generation or sync run.
func NewRunID() string {
	return shortuuid.New()
}

func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id stored in ctx. Without one, a fresh
// id with a "gen_" prefix is returned so missing propagation is visible.
func RunIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(runIDKey).(string)
	if ok {
		return v
	}

	log.Ctx(ctx).Trace().Msg("run ID not found in context")
	return "gen_" + shortuuid.New()
}

// RunIDPublisherDecorator stamps the run id of the message context onto
// every published message.
type RunIDPublisherDecorator struct {
	message.Publisher
}

func (c RunIDPublisherDecorator) Publish(topic string, messages ...*message.Message) error {
	for i := range messages {
		if messages[i].Metadata.Get(runIDMessageMetadataKey) != "" {
			continue
		}
		messages[i].Metadata.Set(runIDMessageMetadataKey, RunIDFromContext(messages[i].Context()))
	}

	return c.Publisher.Publish(topic, messages...)
}
