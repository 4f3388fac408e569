// Package cloudsync keeps the conversation forest in one remote document per
// user. Pull merges the remote document into the local tree (local wins) and
// writes the result back; Push overwrites it.
package cloudsync

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DocumentName is the name of the remote tree document.
const DocumentName = "arbor-tree.json.gz"

// ErrDocumentNotFound is the only remote error a pull treats as expected.
var ErrDocumentNotFound = errors.New("document not found")

type Item struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"userId" yaml:"user_id"`
	Name      string    `json:"name" yaml:"name"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Store is one collection of a remote blob store, partitioned by user.
type Store interface {
	// GetFirst returns the oldest item of userID, or ErrDocumentNotFound.
	GetFirst(ctx context.Context, userID string) (*Item, error)
	Create(ctx context.Context, userID string, name string, payload []byte) (*Item, error)
	// Update replaces the payload of an item in one call.
	Update(ctx context.Context, itemID string, payload []byte) (*Item, error)
	// URL returns a fetchable location of the item.
	URL(ctx context.Context, itemID string) (string, error)
	Download(ctx context.Context, itemID string) ([]byte, error)
}

// TransferError wraps any remote failure other than ErrDocumentNotFound. Local
// state is untouched when a sync returns one.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func transferError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return &TransferError{Op: op, Err: err}
}
