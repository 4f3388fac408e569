package attachments

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/arbor/pkg/auth"
	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/go-go-golems/arbor/pkg/cloudsync/memstore"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedIn(t *testing.T) auth.Provider {
	p := auth.NewMemoryProvider()
	require.NoError(t, p.SignIn(context.Background(), auth.User{ID: "u1", Name: "ada"}))
	return p
}

// flakyStore rejects some names and hangs on others until ctx is done.
type flakyStore struct {
	*memstore.Store
	reject map[string]bool
	hang   map[string]bool
}

func (f *flakyStore) Create(ctx context.Context, userID string, name string, payload []byte) (*cloudsync.Item, error) {
	if f.reject[name] {
		return nil, errors.New("quota exceeded")
	}
	if f.hang[name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.Store.Create(ctx, userID, name, payload)
}

// gatedStore holds the first Create until release is closed, then fails it.
type gatedStore struct {
	*memstore.Store
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedStore) Create(ctx context.Context, userID string, name string, payload []byte) (*cloudsync.Item, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.started)
		<-g.release
		return nil, errors.New("connection reset")
	}
	return g.Store.Create(ctx, userID, name, payload)
}

func image(name string) File {
	return File{Name: name, Type: conversation.AttachmentImage, Data: []byte("png:" + name)}
}

func TestAddUploadsInOrder(t *testing.T) {
	remote := memstore.New("uploads")
	u := NewUploader(remote, signedIn(t))

	require.NoError(t, u.Add(context.Background(), image("a.png"), image("b.png"), image("c.png")))

	assert.False(t, u.Pending())
	atts := u.Attachments()
	require.Len(t, atts, 3)
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		assert.Equal(t, name, atts[i].Name)
		assert.Equal(t, conversation.AttachmentImage, atts[i].Type)
		assert.Contains(t, atts[i].URL, "mem://uploads/")
	}
	assert.Equal(t, 3, remote.Len())
}

func TestAddSkipsDuplicateNames(t *testing.T) {
	remote := memstore.New("uploads")
	u := NewUploader(remote, signedIn(t))

	require.NoError(t, u.Add(context.Background(), image("a.png"), image("a.png")))
	require.NoError(t, u.Add(context.Background(), image("a.png")))

	assert.Len(t, u.Items(), 1)
	assert.Equal(t, 1, remote.Len())
}

func TestFailedUploadIsDroppedAndReported(t *testing.T) {
	remote := &flakyStore{Store: memstore.New("uploads"), reject: map[string]bool{"b.png": true}}
	sink := &events.CollectingSink{}
	u := NewUploader(remote, signedIn(t), WithEventSink(sink))

	require.NoError(t, u.Add(context.Background(), image("a.png"), image("b.png"), image("c.png")))

	atts := u.Attachments()
	require.Len(t, atts, 2)
	assert.Equal(t, "a.png", atts[0].Name)
	assert.Equal(t, "c.png", atts[1].Name)

	evs := sink.Events()
	require.Len(t, evs, 1)
	n, ok := evs[0].(*events.EventNotification)
	require.True(t, ok)
	assert.Equal(t, events.LevelError, n.Level)
	assert.Contains(t, n.Message, "b.png")
	assert.Contains(t, n.Message, "quota exceeded")
}

func TestUploadTimesOut(t *testing.T) {
	remote := &flakyStore{Store: memstore.New("uploads"), hang: map[string]bool{"slow.pdf": true}}
	sink := &events.CollectingSink{}
	u := NewUploader(remote, signedIn(t), WithTimeout(20*time.Millisecond), WithEventSink(sink))

	slow := File{Name: "slow.pdf", Type: conversation.AttachmentDocument, Data: []byte("%PDF")}
	require.NoError(t, u.Add(context.Background(), slow, image("fast.png")))

	atts := u.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "fast.png", atts[0].Name)
	assert.Len(t, sink.Events(), 1)
}

func TestAddRequiresSignIn(t *testing.T) {
	u := NewUploader(memstore.New("uploads"), auth.NewMemoryProvider())
	err := u.Add(context.Background(), image("a.png"))
	assert.True(t, errors.Is(err, auth.ErrUnauthenticated))
	assert.Empty(t, u.Items())
}

func TestRemoveAndClear(t *testing.T) {
	u := NewUploader(memstore.New("uploads"), signedIn(t))
	require.NoError(t, u.Add(context.Background(), image("a.png"), image("b.png")))

	assert.True(t, u.Remove("a.png"))
	assert.False(t, u.Remove("a.png"))
	require.Len(t, u.Attachments(), 1)

	u.Clear()
	assert.Empty(t, u.Attachments())
}

func TestStaleUploadDoesNotSettleReaddedFile(t *testing.T) {
	remote := &gatedStore{
		Store:   memstore.New("uploads"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sink := &events.CollectingSink{}
	u := NewUploader(remote, signedIn(t), WithEventSink(sink), WithTimeout(time.Minute))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- u.Add(context.Background(), image("a.png"))
	}()
	<-remote.started

	require.True(t, u.Remove("a.png"))
	require.NoError(t, u.Add(context.Background(), image("a.png")))

	close(remote.release)
	require.NoError(t, <-firstDone)

	atts := u.Attachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "a.png", atts[0].Name)
	assert.Contains(t, atts[0].URL, "mem://uploads/")
	assert.False(t, u.Pending())
	assert.Empty(t, sink.Events())
}

func TestFileFromPath(t *testing.T) {
	dir := t.TempDir()

	pdf := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))
	f, err := FileFromPath(pdf)
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", f.Name)
	assert.Equal(t, conversation.AttachmentDocument, f.Type)

	// no extension, sniffed from the PNG signature
	png := filepath.Join(dir, "shot")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000"), 0o644))
	f, err = FileFromPath(png)
	require.NoError(t, err)
	assert.Equal(t, conversation.AttachmentImage, f.Type)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, err = FileFromPath(txt)
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}
