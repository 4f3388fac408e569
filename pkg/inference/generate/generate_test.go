package generate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/inference/engine/factory"
	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/go-go-golems/arbor/pkg/steps/ai/echo"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEngine remembers the last request before delegating.
type recordingEngine struct {
	mu    sync.Mutex
	last  *engine.Request
	inner engine.Engine
}

func (r *recordingEngine) Stream(ctx context.Context, req *engine.Request) (engine.Stream, error) {
	r.mu.Lock()
	r.last = req
	r.mu.Unlock()
	return r.inner.Stream(ctx, req)
}

func (r *recordingEngine) Last() *engine.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type staticFactory struct {
	e engine.Engine
}

func (s staticFactory) CreateEngine(models.Model) (engine.Engine, error) {
	return s.e, nil
}

func (s staticFactory) SupportedProviders() []string {
	return []string{string(types.ApiTypeEcho)}
}

func echoConfig() conversation.GenerationConfig {
	cfg := conversation.DefaultGenerationConfig()
	cfg.Model = "echo"
	return cfg
}

func setup(t *testing.T, e engine.Engine) (*conversation.Store, *Generator, *events.CollectingSink) {
	t.Helper()
	store := conversation.NewStore(conversation.WithDefaultConfig(echoConfig()))
	sink := &events.CollectingSink{}
	var f factory.EngineFactory = factory.NewStandardEngineFactory(nil)
	if e != nil {
		f = staticFactory{e: e}
	}
	return store, NewGenerator(store, f, WithEventSink(sink)), sink
}

func eventTypes(sink *events.CollectingSink) []events.EventType {
	var ret []events.EventType
	for _, e := range sink.Events() {
		ret = append(ret, e.Type())
	}
	return ret
}

func TestSubmitOnUserNode(t *testing.T) {
	store, g, sink := setup(t, nil)
	root := store.CreateRoot(conversation.Position{})

	res, err := g.Submit(context.Background(), root, Draft{Message: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, root, res.UserID)
	assert.Equal(t, "hello there", res.Message)

	user, err := store.Get(root)
	require.NoError(t, err)
	assert.Equal(t, "hello there", user.Data.Message)
	assert.Equal(t, []conversation.NodeID{res.AssistantID}, user.Data.ChildrenIDs)

	assistant, err := store.Get(res.AssistantID)
	require.NoError(t, err)
	assert.Equal(t, conversation.KindAssistant, assistant.Type)
	assert.Equal(t, "hello there", assistant.Data.Message)
	assert.Equal(t, root, assistant.Data.ParentID)

	status, ok := g.Status(res.AssistantID)
	require.True(t, ok)
	assert.Equal(t, StatusSettled, status)

	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypePartialCompletion,
		events.EventTypePartialCompletion,
		events.EventTypeFinal,
	}, eventTypes(sink))
	assert.True(t, store.Check().OK())
}

func TestSubmitOnAssistantNodeCreatesExchange(t *testing.T) {
	rec := &recordingEngine{inner: echo.NewEchoEngine()}
	store, g, _ := setup(t, rec)
	root := store.CreateRoot(conversation.Position{})

	first, err := g.Submit(context.Background(), root, Draft{Message: "first"})
	require.NoError(t, err)

	cfg := echoConfig()
	cfg.SystemPrompt = "be terse"
	cfg.Temperature = 0.2
	second, err := g.Submit(context.Background(), first.AssistantID, Draft{
		Message: "second",
		Config:  &cfg,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.AssistantID, second.UserID)
	assert.Equal(t, "second", second.Message)

	user, err := store.Get(second.UserID)
	require.NoError(t, err)
	assert.Equal(t, first.AssistantID, user.Data.ParentID)
	assert.Equal(t, cfg, user.Data.Config)

	assistant, err := store.Get(second.AssistantID)
	require.NoError(t, err)
	assert.Equal(t, cfg, assistant.Data.Config)

	req := rec.Last()
	require.NotNil(t, req)
	assert.Equal(t, "be terse", req.SystemPrompt)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.2, *req.Temperature)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, conversation.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "first", req.Messages[0].Text())
	assert.Equal(t, conversation.RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "first", req.Messages[1].Text())
	assert.Equal(t, "second", req.Messages[2].Text())

	assert.True(t, store.Check().OK())
}

func TestSubmitRecordsReasoning(t *testing.T) {
	store, g, sink := setup(t, nil)
	root := store.CreateRoot(conversation.Position{})

	cfg := echoConfig()
	cfg.ThinkingMode = true
	res, err := g.Submit(context.Background(), root, Draft{Message: "think", Config: &cfg})
	require.NoError(t, err)

	assistant, err := store.Get(res.AssistantID)
	require.NoError(t, err)
	assert.Equal(t, "Echoing the last of 1 messages.", assistant.Data.Reasoning)
	assert.Equal(t, "think", assistant.Data.Message)
	assert.Contains(t, eventTypes(sink), events.EventTypePartialThinking)
}

func TestProviderErrorKeepsPartialReply(t *testing.T) {
	perr := engine.NewProviderError(types.ApiTypeOpenRouter, 429, errors.New("rate limited"))
	store, g, sink := setup(t, echo.NewEchoEngine(echo.WithFailure(1, perr)))
	root := store.CreateRoot(conversation.Position{})

	res, err := g.Submit(context.Background(), root, Draft{Message: "hello there"})
	var pe *engine.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 429, pe.StatusCode)
	require.NotNil(t, res)
	assert.Equal(t, "hello ", res.Message)

	assistant, err := store.Get(res.AssistantID)
	require.NoError(t, err)
	assert.Equal(t, "hello ", assistant.Data.Message)

	status, _ := g.Status(res.AssistantID)
	assert.Equal(t, StatusFailed, status)

	var notified bool
	for _, e := range sink.Events() {
		if n, ok := e.(*events.EventNotification); ok {
			notified = true
			assert.Equal(t, events.LevelError, n.Level)
			assert.Contains(t, n.Message, "rate limited")
		}
	}
	assert.True(t, notified)
}

func TestSubmitRejectsBeforeWriting(t *testing.T) {
	store, g, _ := setup(t, nil)
	root := store.CreateRoot(conversation.Position{})

	_, err := g.Submit(context.Background(), root, Draft{Message: "  "})
	require.ErrorIs(t, err, ErrEmptyDraft)

	cfg := echoConfig()
	cfg.Model = "no-such-model"
	_, err = g.Submit(context.Background(), root, Draft{Message: "hi", Config: &cfg})
	require.ErrorIs(t, err, models.ErrUnknownModel)

	// gemini needs a key the test factory does not have
	cfg.Model = conversation.DefaultModel
	_, err = g.Submit(context.Background(), root, Draft{Message: "hi", Config: &cfg})
	require.ErrorIs(t, err, factory.ErrMissingAPIKey)

	_, err = g.Submit(context.Background(), conversation.NodeID("missing"), Draft{Message: "hi"})
	require.ErrorIs(t, err, conversation.ErrNotFound)

	assert.Equal(t, 1, store.Len())
	n, err := store.Get(root)
	require.NoError(t, err)
	assert.Empty(t, n.Data.Message)
}

func TestCancelStopsStream(t *testing.T) {
	store, g, _ := setup(t, echo.NewEchoEngine(echo.WithTimePerChunk(time.Hour)))
	root := store.CreateRoot(conversation.Position{})

	h, err := g.Start(context.Background(), root, Draft{Message: "slow"})
	require.NoError(t, err)
	assert.True(t, h.IsRunning())

	status, _ := g.Status(h.AssistantID)
	assert.Equal(t, StatusStreaming, status)

	h.Cancel()
	_, err = h.Wait()
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, h.IsRunning())

	status, _ = g.Status(h.AssistantID)
	assert.Equal(t, StatusFailed, status)
}

func TestReply(t *testing.T) {
	store, g, _ := setup(t, nil)
	root := store.CreateRoot(conversation.Position{})
	res, err := g.Submit(context.Background(), root, Draft{Message: "hi"})
	require.NoError(t, err)

	userID, err := g.Reply(res.AssistantID)
	require.NoError(t, err)
	n, err := store.Get(userID)
	require.NoError(t, err)
	assert.Equal(t, conversation.KindUser, n.Type)
	assert.Equal(t, res.AssistantID, n.Data.ParentID)
	assert.Empty(t, n.Data.Message)

	_, err = g.Reply(root)
	require.ErrorIs(t, err, ErrNotAssistant)
}
