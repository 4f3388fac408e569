package cloudsync_test

import (
	"context"
	"testing"

	"github.com/go-go-golems/arbor/pkg/auth"
	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/go-go-golems/arbor/pkg/cloudsync/memstore"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedIn(t *testing.T, id string) auth.Provider {
	p := auth.NewMemoryProvider()
	require.NoError(t, p.SignIn(context.Background(), auth.User{ID: id, Name: id}))
	return p
}

func remoteTree(t *testing.T, remote *memstore.Store, userID string) *conversation.Store {
	item, err := remote.GetFirst(context.Background(), userID)
	require.NoError(t, err)
	b, err := remote.Download(context.Background(), item.ID)
	require.NoError(t, err)
	doc, err := cloudsync.Decompress(b)
	require.NoError(t, err)

	ret := conversation.NewStore()
	require.NoError(t, ret.LoadJSON(doc))
	return ret
}

func uploadTree(t *testing.T, remote *memstore.Store, userID string, tree *conversation.Store) {
	doc, err := tree.ExportJSON()
	require.NoError(t, err)
	payload, err := cloudsync.Compress(doc)
	require.NoError(t, err)
	_, err = remote.Create(context.Background(), userID, cloudsync.DocumentName, payload)
	require.NoError(t, err)
}

func TestPullWithoutRemoteUploadsLocal(t *testing.T) {
	local := conversation.NewStore()
	root := local.CreateRoot(conversation.Position{})
	_, err := local.CreateAssistantNode(root)
	require.NoError(t, err)
	before, err := local.ExportJSON()
	require.NoError(t, err)

	remote := memstore.New("trees")
	sink := &events.CollectingSink{}
	s := cloudsync.NewSyncer(remote, signedIn(t, "u1"), local, cloudsync.WithEventSink(sink))

	res, err := s.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cloudsync.ActionCreated, res.Action)
	assert.Equal(t, 2, res.Nodes)
	assert.Equal(t, 1, res.Edges)
	assert.NotEmpty(t, res.RunID)

	after, err := local.ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	uploaded, err := remoteTree(t, remote, "u1").ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(uploaded))

	require.Len(t, sink.Events(), 1)
	n := sink.Events()[0].(*events.EventNotification)
	assert.Equal(t, events.LevelInfo, n.Level)
}

func TestPullMergesLocalWins(t *testing.T) {
	base := conversation.NewStore()
	root := base.CreateRoot(conversation.Position{})
	child, err := base.CreateAssistantNode(root)
	require.NoError(t, err)
	doc, err := base.ExportJSON()
	require.NoError(t, err)

	// the other device edited the root and replied below the child
	other := conversation.NewStore()
	require.NoError(t, other.LoadJSON(doc))
	require.NoError(t, other.UpdateNode(root, conversation.SetMessage("remote")))
	remoteOnly, err := other.CreateUserNode(child)
	require.NoError(t, err)

	local := conversation.NewStore()
	require.NoError(t, local.LoadJSON(doc))
	require.NoError(t, local.UpdateNode(root, conversation.SetMessage("local")))
	localOnly := local.CreateRoot(conversation.Position{X: 500})

	remote := memstore.New("trees")
	uploadTree(t, remote, "u1", other)

	res, err := cloudsync.NewSyncer(remote, signedIn(t, "u1"), local).Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cloudsync.ActionMerged, res.Action)
	assert.Equal(t, 4, res.Nodes)

	n, err := local.Get(root)
	require.NoError(t, err)
	assert.Equal(t, "local", n.Data.Message)

	_, err = local.Get(remoteOnly)
	require.NoError(t, err)
	_, err = local.Get(localOnly)
	require.NoError(t, err)

	c, err := local.Get(child)
	require.NoError(t, err)
	assert.Contains(t, c.Data.ChildrenIDs, remoteOnly)
	assert.True(t, local.Check().OK(), local.Check().String())

	// the merged tree was written back
	merged, err := local.ExportJSON()
	require.NoError(t, err)
	uploaded, err := remoteTree(t, remote, "u1").ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(merged), string(uploaded))
	assert.Equal(t, 1, remote.Len())
}

func TestPushOverwritesWithoutMerge(t *testing.T) {
	other := conversation.NewStore()
	other.CreateRoot(conversation.Position{})
	remote := memstore.New("trees")
	uploadTree(t, remote, "u1", other)

	local := conversation.NewStore()
	local.CreateRoot(conversation.Position{})
	res, err := cloudsync.NewSyncer(remote, signedIn(t, "u1"), local).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cloudsync.ActionPushed, res.Action)
	assert.Equal(t, 1, local.Len())

	want, err := local.ExportJSON()
	require.NoError(t, err)
	got, err := remoteTree(t, remote, "u1").ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestPushCreatesMissingDocument(t *testing.T) {
	remote := memstore.New("trees")
	local := conversation.NewStore()
	local.CreateRoot(conversation.Position{})

	res, err := cloudsync.NewSyncer(remote, signedIn(t, "u1"), local).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cloudsync.ActionCreated, res.Action)
	assert.Equal(t, 1, remote.Len())
}

func TestSyncRequiresUser(t *testing.T) {
	sink := &events.CollectingSink{}
	s := cloudsync.NewSyncer(memstore.New("trees"), auth.NewMemoryProvider(), conversation.NewStore(),
		cloudsync.WithEventSink(sink))

	_, err := s.Pull(context.Background())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = s.Push(context.Background())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	require.Len(t, sink.Events(), 2)
	n := sink.Events()[0].(*events.EventNotification)
	assert.Equal(t, events.LevelError, n.Level)
	assert.Equal(t, "Sign in to sync", n.Title)
}

// failingStore fails the named operation.
type failingStore struct {
	cloudsync.Store
	op  string
	err error
}

func (f *failingStore) GetFirst(ctx context.Context, userID string) (*cloudsync.Item, error) {
	if f.op == "lookup" {
		return nil, f.err
	}
	return f.Store.GetFirst(ctx, userID)
}

func (f *failingStore) Update(ctx context.Context, itemID string, payload []byte) (*cloudsync.Item, error) {
	if f.op == "upload" {
		return nil, f.err
	}
	return f.Store.Update(ctx, itemID, payload)
}

func TestTransferErrorsLeaveLocalUntouched(t *testing.T) {
	network := errors.New("connection refused")

	for _, op := range []string{"lookup", "upload"} {
		for _, direction := range []string{"pull", "push"} {
			t.Run(direction+"/"+op, func(t *testing.T) {
				other := conversation.NewStore()
				other.CreateRoot(conversation.Position{})
				inner := memstore.New("trees")
				uploadTree(t, inner, "u1", other)

				local := conversation.NewStore()
				rootID := local.CreateRoot(conversation.Position{})
				require.NoError(t, local.UpdateNode(rootID, conversation.SetMessage("local only")))
				before, err := local.ExportJSON()
				require.NoError(t, err)

				remote := &failingStore{Store: inner, op: op, err: network}
				s := cloudsync.NewSyncer(remote, signedIn(t, "u1"), local)
				if direction == "pull" {
					_, err = s.Pull(context.Background())
				} else {
					_, err = s.Push(context.Background())
				}

				var te *cloudsync.TransferError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, op, te.Op)
				assert.ErrorIs(t, err, network)

				after, err := local.ExportJSON()
				require.NoError(t, err)
				assert.JSONEq(t, string(before), string(after))
				assert.Equal(t, 1, remoteTree(t, inner, "u1").Len())
			})
		}
	}
}

func TestPullRejectsCorruptRemote(t *testing.T) {
	remote := memstore.New("trees")
	_, err := remote.Create(context.Background(), "u1", cloudsync.DocumentName, []byte("not gzip"))
	require.NoError(t, err)

	local := conversation.NewStore()
	local.CreateRoot(conversation.Position{})
	_, err = cloudsync.NewSyncer(remote, signedIn(t, "u1"), local).Pull(context.Background())
	var te *cloudsync.TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "decompress", te.Op)
	assert.Equal(t, 1, local.Len())

	// valid gzip, invalid document
	payload, err := cloudsync.Compress([]byte(`{"nodes":[{"type":"userMessage"}],"edges":[]}`))
	require.NoError(t, err)
	item, err := remote.GetFirst(context.Background(), "u1")
	require.NoError(t, err)
	_, err = remote.Update(context.Background(), item.ID, payload)
	require.NoError(t, err)

	_, err = cloudsync.NewSyncer(remote, signedIn(t, "u1"), local).Pull(context.Background())
	require.ErrorIs(t, err, conversation.ErrInvalidDocument)
	assert.Equal(t, 1, local.Len())
}
