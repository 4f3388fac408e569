// Package generate runs a submitted prompt through the conversation store,
// the context builder and a generation engine, streaming the reply into a
// new assistant node.
package generate

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/conversation/builder"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/go-go-golems/arbor/pkg/helpers"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/inference/engine/factory"
	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyDraft         = errors.New("draft has neither message nor attachments")
	ErrNotAssistant       = errors.New("node is not an assistant message")
	ErrExecutionHandleNil = errors.New("execution handle is nil")
)

// Status is the transient generation state of an assistant node. It is
// never persisted.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusSettled   Status = "settled"
	StatusFailed    Status = "failed"
)

// Draft is the content of the prompt input at submit time.
type Draft struct {
	Message     string
	Attachments []conversation.Attachment
	// Config replaces the node config when set.
	Config *conversation.GenerationConfig
}

func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Message) == "" && len(d.Attachments) == 0
}

type Generator struct {
	store    *conversation.Store
	registry *models.Registry
	factory  factory.EngineFactory
	sink     events.EventSink

	mu     sync.Mutex
	status map[conversation.NodeID]Status
}

type Option func(*Generator)

func WithRegistry(r *models.Registry) Option {
	return func(g *Generator) {
		g.registry = r
	}
}

func WithEventSink(sink events.EventSink) Option {
	return func(g *Generator) {
		g.sink = sink
	}
}

func NewGenerator(store *conversation.Store, f factory.EngineFactory, options ...Option) *Generator {
	ret := &Generator{
		store:    store,
		registry: models.Builtin(),
		factory:  f,
		sink:     events.NewNullSink(),
		status:   map[conversation.NodeID]Status{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Status returns the generation state of an assistant node. Nodes that were
// never streamed by this generator report false.
func (g *Generator) Status(id conversation.NodeID) (Status, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.status[id]
	return s, ok
}

func (g *Generator) setStatus(id conversation.NodeID, s Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[id] = s
}

// Result identifies the nodes written by one submission.
type Result struct {
	UserID      conversation.NodeID
	AssistantID conversation.NodeID
	Message     string
	Reasoning   string
}

// Submit writes draft into the conversation below nodeID and streams the
// reply. On a user node the draft is written into that node; on an assistant
// node a new user node is created below it. Either way a new assistant node
// receives the generated text.
//
// Provider failures leave the partial reply in place and are returned after
// being published as a notification.
func (g *Generator) Submit(ctx context.Context, nodeID conversation.NodeID, draft Draft) (*Result, error) {
	h, err := g.Start(ctx, nodeID, draft)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start is the asynchronous form of Submit. The nodes are created before
// Start returns; the stream runs in the background.
func (g *Generator) Start(ctx context.Context, nodeID conversation.NodeID, draft Draft) (*ExecutionHandle, error) {
	if draft.IsEmpty() {
		return nil, ErrEmptyDraft
	}

	node, err := g.store.Get(nodeID)
	if err != nil {
		return nil, err
	}

	cfg := node.Data.Config
	if draft.Config != nil {
		cfg = draft.Config.Clone()
	}
	model, err := g.registry.Resolve(cfg.Model)
	if err != nil {
		return nil, err
	}
	eng, err := g.factory.CreateEngine(model)
	if err != nil {
		return nil, err
	}

	userID, assistantID, err := g.writeDraft(node, draft, cfg)
	if err != nil {
		return nil, err
	}

	ancestors, err := g.store.GetAncestors(userID)
	if err != nil {
		return nil, err
	}
	userNode, err := g.store.Get(userID)
	if err != nil {
		return nil, err
	}
	messages := builder.BuildMessages(ancestors, userNode, model.Capabilities)
	if n, err := builder.CountTokens(messages); err == nil {
		log.Debug().Str("model", model.ID).Int("messages", len(messages)).Int("tokens", n).Msg("Built context")
	}
	req := engine.NewRequest(model, cfg, messages)

	runID := helpers.NewRunID()
	runCtx, cancel := context.WithCancel(helpers.ContextWithRunID(ctx, runID))
	handle := newExecutionHandle(runID, userID, assistantID, cancel)
	g.setStatus(assistantID, StatusStreaming)

	go func() {
		defer cancel()
		res, err := g.run(runCtx, eng, req, handle)
		handle.setResult(res, err)
	}()

	return handle, nil
}

// writeDraft creates the user and assistant nodes for a submission.
func (g *Generator) writeDraft(
	node *conversation.Node,
	draft Draft,
	cfg conversation.GenerationConfig,
) (conversation.NodeID, conversation.NodeID, error) {
	patch := conversation.Combine(
		conversation.SetMessage(draft.Message),
		conversation.SetAttachments(draft.Attachments),
		conversation.SetConfig(cfg),
	)

	switch node.Type {
	case conversation.KindUser:
		if err := g.store.UpdateNode(node.ID, patch); err != nil {
			return conversation.NullNode, conversation.NullNode, err
		}
		assistantID, err := g.store.CreateAssistantNode(node.ID)
		if err != nil {
			return conversation.NullNode, conversation.NullNode, err
		}
		return node.ID, assistantID, nil

	case conversation.KindAssistant:
		userID, assistantID, err := g.store.CreateExchange(node.ID)
		if err != nil {
			return conversation.NullNode, conversation.NullNode, err
		}
		if err := g.store.UpdateNode(userID, patch); err != nil {
			return conversation.NullNode, conversation.NullNode, err
		}
		// the assistant copied the config before the draft was applied
		if err := g.store.UpdateNode(assistantID, conversation.SetConfig(cfg)); err != nil {
			return conversation.NullNode, conversation.NullNode, err
		}
		return userID, assistantID, nil
	}

	return conversation.NullNode, conversation.NullNode, errors.Errorf("invalid node kind %q", node.Type)
}

func (g *Generator) run(ctx context.Context, eng engine.Engine, req *engine.Request, h *ExecutionHandle) (*Result, error) {
	meta := events.NewEventMetadata(h.RunID, h.AssistantID.String(), req.Model)
	res := &Result{UserID: h.UserID, AssistantID: h.AssistantID}

	fail := func(err error) (*Result, error) {
		g.setStatus(h.AssistantID, StatusFailed)
		log.Warn().Err(err).Str("node_id", h.AssistantID.String()).Str("model", req.Model).Msg("Generation failed")
		events.PublishBlind(ctx, g.sink, events.NewErrorEvent(meta, err))
		events.PublishBlind(ctx, g.sink, events.NewNotificationEvent(meta, events.LevelError, "Generation failed", err.Error()))
		return res, err
	}

	events.PublishBlind(ctx, g.sink, events.NewStartEvent(meta))

	stream, err := eng.Stream(ctx, req)
	if err != nil {
		return fail(err)
	}
	defer func() {
		_ = stream.Close()
	}()

	var text, reasoning strings.Builder
	for {
		c, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Message, res.Reasoning = text.String(), reasoning.String()
			return fail(err)
		}

		switch c.Kind {
		case engine.ChunkReasoning:
			reasoning.WriteString(c.Delta)
			err = g.store.UpdateNode(h.AssistantID, conversation.AppendReasoning(c.Delta))
			events.PublishBlind(ctx, g.sink, events.NewThinkingPartialEvent(meta, c.Delta, reasoning.String()))
		default:
			text.WriteString(c.Delta)
			err = g.store.UpdateNode(h.AssistantID, conversation.AppendMessage(c.Delta))
			events.PublishBlind(ctx, g.sink, events.NewPartialCompletionEvent(meta, c.Delta, text.String()))
		}
		if err != nil {
			// the node was deleted while streaming
			res.Message, res.Reasoning = text.String(), reasoning.String()
			return fail(err)
		}
	}

	res.Message, res.Reasoning = text.String(), reasoning.String()
	g.setStatus(h.AssistantID, StatusSettled)
	events.PublishBlind(ctx, g.sink, events.NewFinalEvent(meta, res.Message))
	log.Debug().
		Str("node_id", h.AssistantID.String()).
		Int("length", len(res.Message)).
		Msg("Generation settled")
	return res, nil
}

// Reply creates an empty user node below an assistant node, ready for the
// next prompt.
func (g *Generator) Reply(assistantID conversation.NodeID) (conversation.NodeID, error) {
	node, err := g.store.Get(assistantID)
	if err != nil {
		return conversation.NullNode, err
	}
	if node.Type != conversation.KindAssistant {
		return conversation.NullNode, errors.Wrapf(ErrNotAssistant, "node %s", assistantID)
	}
	return g.store.CreateUserNode(assistantID)
}
