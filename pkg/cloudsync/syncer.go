package cloudsync

import (
	"context"

	"github.com/go-go-golems/arbor/pkg/auth"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/go-go-golems/arbor/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Action string

const (
	// ActionCreated: no remote document existed, the local tree was uploaded.
	ActionCreated Action = "created"
	ActionMerged  Action = "merged"
	ActionPushed  Action = "pushed"
)

type Result struct {
	Action Action
	ItemID string
	RunID  string
	Nodes  int
	Edges  int
}

type Syncer struct {
	remote Store
	auth   auth.Provider
	tree   *conversation.Store
	sink   events.EventSink
}

type SyncerOption func(*Syncer)

func WithEventSink(sink events.EventSink) SyncerOption {
	return func(s *Syncer) {
		s.sink = sink
	}
}

func NewSyncer(remote Store, provider auth.Provider, tree *conversation.Store, options ...SyncerOption) *Syncer {
	ret := &Syncer{
		remote: remote,
		auth:   provider,
		tree:   tree,
		sink:   events.NewNullSink(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Pull merges the remote document into the local tree and uploads the
// merged document. Without a remote document the local tree is uploaded
// as is.
func (s *Syncer) Pull(ctx context.Context) (*Result, error) {
	ctx, res := s.begin(ctx)
	res, err := s.pull(ctx, res)
	return s.finish(ctx, res, err)
}

func (s *Syncer) pull(ctx context.Context, res *Result) (*Result, error) {
	userID, err := auth.UserID(ctx, s.auth)
	if err != nil {
		return res, err
	}

	item, err := s.remote.GetFirst(ctx, userID)
	if errors.Is(err, ErrDocumentNotFound) {
		log.Debug().Str("user_id", userID).Msg("No remote document, uploading local tree")
		return s.create(ctx, userID, res)
	}
	if err != nil {
		return res, transferError("lookup", err)
	}
	res.ItemID = item.ID

	compressed, err := s.remote.Download(ctx, item.ID)
	if err != nil {
		return res, transferError("download", err)
	}
	remoteDoc, err := Decompress(compressed)
	if err != nil {
		return res, transferError("decompress", err)
	}

	// the merge is committed locally only once the upload went through
	merged, mergedJSON, err := s.tree.MergeJSON(remoteDoc)
	if err != nil {
		return res, transferError("merge", err)
	}

	payload, err := Compress(mergedJSON)
	if err != nil {
		return res, transferError("compress", err)
	}
	if _, err := s.remote.Update(ctx, item.ID, payload); err != nil {
		return res, transferError("upload", err)
	}
	s.tree.Merge(merged)

	res.Action = ActionMerged
	s.count(res)
	return res, nil
}

// Push overwrites the remote document with the local tree, creating it when
// missing. Nothing is merged.
func (s *Syncer) Push(ctx context.Context) (*Result, error) {
	ctx, res := s.begin(ctx)
	res, err := s.push(ctx, res)
	return s.finish(ctx, res, err)
}

func (s *Syncer) push(ctx context.Context, res *Result) (*Result, error) {
	userID, err := auth.UserID(ctx, s.auth)
	if err != nil {
		return res, err
	}

	item, err := s.remote.GetFirst(ctx, userID)
	if errors.Is(err, ErrDocumentNotFound) {
		return s.create(ctx, userID, res)
	}
	if err != nil {
		return res, transferError("lookup", err)
	}
	res.ItemID = item.ID

	payload, err := s.exportCompressed()
	if err != nil {
		return res, err
	}
	if _, err := s.remote.Update(ctx, item.ID, payload); err != nil {
		return res, transferError("upload", err)
	}

	res.Action = ActionPushed
	s.count(res)
	return res, nil
}

func (s *Syncer) create(ctx context.Context, userID string, res *Result) (*Result, error) {
	payload, err := s.exportCompressed()
	if err != nil {
		return res, err
	}
	item, err := s.remote.Create(ctx, userID, DocumentName, payload)
	if err != nil {
		return res, transferError("create", err)
	}
	res.Action = ActionCreated
	res.ItemID = item.ID
	s.count(res)
	return res, nil
}

func (s *Syncer) exportCompressed() ([]byte, error) {
	doc, err := s.tree.ExportJSON()
	if err != nil {
		return nil, errors.Wrap(err, "could not export tree")
	}
	payload, err := Compress(doc)
	if err != nil {
		return nil, transferError("compress", err)
	}
	return payload, nil
}

func (s *Syncer) count(res *Result) {
	res.Nodes = s.tree.Len()
	res.Edges = len(s.tree.Edges())
}

func (s *Syncer) begin(ctx context.Context) (context.Context, *Result) {
	runID := helpers.NewRunID()
	return helpers.ContextWithRunID(ctx, runID), &Result{RunID: runID}
}

func (s *Syncer) finish(ctx context.Context, res *Result, err error) (*Result, error) {
	meta := events.NewEventMetadata(res.RunID, "", "")
	if err != nil {
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("Sync failed")
		title := "Sync failed"
		if errors.Is(err, auth.ErrUnauthenticated) {
			title = "Sign in to sync"
		}
		events.PublishBlind(ctx, s.sink, events.NewNotificationEvent(meta, events.LevelError, title, err.Error()))
		return nil, err
	}

	log.Info().
		Str("run_id", res.RunID).
		Str("action", string(res.Action)).
		Str("item_id", res.ItemID).
		Int("nodes", res.Nodes).
		Msg("Sync finished")
	events.PublishBlind(ctx, s.sink, events.NewNotificationEvent(meta, events.LevelInfo, "Synced", string(res.Action)))
	return res, nil
}
