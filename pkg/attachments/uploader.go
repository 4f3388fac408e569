// Package attachments uploads files for the prompt being composed. Every
// file moves from Pending to Uploaded(url); a failed file is dropped from
// the list and reported as a notification.
package attachments

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/arbor/pkg/auth"
	"github.com/go-go-golems/arbor/pkg/cloudsync"
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 10 * time.Second

var ErrUnsupportedType = errors.New("unsupported attachment type")

type State string

const (
	StatePending  State = "pending"
	StateUploaded State = "uploaded"
	StateFailed   State = "failed"
)

type File struct {
	Name string
	Type conversation.AttachmentType
	Data []byte
}

// FileFromPath reads path and derives the attachment type from its
// extension, or from its content when the extension is unknown.
func FileFromPath(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "could not read %s", path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	t, err := TypeForMime(mimeType)
	if err != nil {
		return File{}, errors.Wrapf(err, "%s", path)
	}
	return File{Name: filepath.Base(path), Type: t, Data: data}, nil
}

func TypeForMime(mimeType string) (conversation.AttachmentType, error) {
	mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return conversation.AttachmentImage, nil
	case mimeType == "application/pdf":
		return conversation.AttachmentDocument, nil
	}
	return "", errors.Wrapf(ErrUnsupportedType, "%q", mimeType)
}

type Item struct {
	Name  string
	Type  conversation.AttachmentType
	State State
	URL   string
	Err   error
}

type Uploader struct {
	remote  cloudsync.Store
	auth    auth.Provider
	sink    events.EventSink
	timeout time.Duration

	mu    sync.Mutex
	items []*Item
}

type Option func(*Uploader)

func WithTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		u.timeout = d
	}
}

func WithEventSink(sink events.EventSink) Option {
	return func(u *Uploader) {
		u.sink = sink
	}
}

func NewUploader(remote cloudsync.Store, provider auth.Provider, options ...Option) *Uploader {
	ret := &Uploader{
		remote:  remote,
		auth:    provider,
		sink:    events.NewNullSink(),
		timeout: DefaultTimeout,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Add uploads files concurrently and waits for all of them. Files whose
// name is already listed are skipped. A failing file does not affect the
// others; Add only returns an error when nobody is signed in.
func (u *Uploader) Add(ctx context.Context, files ...File) error {
	userID, err := auth.UserID(ctx, u.auth)
	if err != nil {
		return err
	}

	var added []File
	var items []*Item
	u.mu.Lock()
	for _, f := range files {
		if u.indexLocked(f.Name) >= 0 || containsName(added, f.Name) {
			log.Debug().Str("name", f.Name).Msg("Skipping duplicate attachment")
			continue
		}
		it := &Item{Name: f.Name, Type: f.Type, State: StatePending}
		u.items = append(u.items, it)
		added = append(added, f)
		items = append(items, it)
	}
	u.mu.Unlock()

	var g errgroup.Group
	for i, f := range added {
		f, it := f, items[i]
		g.Go(func() error {
			u.upload(ctx, userID, it, f)
			return nil
		})
	}
	return g.Wait()
}

func containsName(files []File, name string) bool {
	for _, f := range files {
		if f.Name == name {
			return true
		}
	}
	return false
}

// upload settles it. A file removed and added again under the same name is a
// different item, so a stale result never touches it.
func (u *Uploader) upload(ctx context.Context, userID string, it *Item, f File) {
	uploadCtx, cancel := context.WithTimeout(ctx, u.timeout)
	url, err := u.put(uploadCtx, userID, f)
	cancel()

	u.mu.Lock()
	idx := -1
	for i, candidate := range u.items {
		if candidate == it {
			idx = i
			break
		}
	}
	if idx < 0 {
		// removed while uploading
		u.mu.Unlock()
		return
	}
	if err != nil {
		u.items = append(u.items[:idx], u.items[idx+1:]...)
	} else {
		it.State = StateUploaded
		it.URL = url
	}
	u.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("name", f.Name).Msg("Upload failed")
		events.PublishBlind(ctx, u.sink, events.NewNotificationEvent(
			events.NewEventMetadata("", "", ""),
			events.LevelError,
			"Upload failed",
			f.Name+": "+err.Error(),
		))
		return
	}
	log.Debug().Str("name", f.Name).Str("url", url).Msg("Uploaded attachment")
}

func (u *Uploader) put(ctx context.Context, userID string, f File) (string, error) {
	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		item, err := u.remote.Create(ctx, userID, f.Name, f.Data)
		if err != nil {
			done <- result{err: err}
			return
		}
		url, err := u.remote.URL(ctx, item.ID)
		done <- result{url: url, err: err}
	}()

	// stores that ignore ctx still cannot outlive the timeout
	select {
	case r := <-done:
		return r.url, r.err
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "upload timed out")
	}
}

func (u *Uploader) indexLocked(name string) int {
	for i, it := range u.items {
		if it.Name == name {
			return i
		}
	}
	return -1
}

// Items returns a snapshot of all listed files in insertion order.
func (u *Uploader) Items() []Item {
	u.mu.Lock()
	defer u.mu.Unlock()
	ret := make([]Item, 0, len(u.items))
	for _, it := range u.items {
		ret = append(ret, *it)
	}
	return ret
}

// Attachments returns the uploaded files, ready to be stored on a node.
func (u *Uploader) Attachments() []conversation.Attachment {
	u.mu.Lock()
	defer u.mu.Unlock()
	ret := []conversation.Attachment{}
	for _, it := range u.items {
		if it.State != StateUploaded {
			continue
		}
		ret = append(ret, conversation.Attachment{Type: it.Type, Name: it.Name, URL: it.URL})
	}
	return ret
}

// Pending reports whether an upload is still running.
func (u *Uploader) Pending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, it := range u.items {
		if it.State == StatePending {
			return true
		}
	}
	return false
}

func (u *Uploader) Remove(name string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	idx := u.indexLocked(name)
	if idx < 0 {
		return false
	}
	u.items = append(u.items[:idx], u.items[idx+1:]...)
	return true
}

// Clear empties the list after the prompt was submitted.
func (u *Uploader) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items = nil
}
