// Package auth exposes the signed-in user. Sign-in flows themselves live
// outside arbor; a provider only remembers who is signed in.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrUnauthenticated = errors.New("not signed in")

type User struct {
	ID         string    `yaml:"id" json:"id"`
	Name       string    `yaml:"name" json:"name"`
	Email      string    `yaml:"email,omitempty" json:"email,omitempty"`
	SignedInAt time.Time `yaml:"signed_in_at" json:"signedInAt"`
}

type Provider interface {
	// CurrentUser returns ErrUnauthenticated when nobody is signed in.
	CurrentUser(ctx context.Context) (*User, error)
	SignIn(ctx context.Context, user User) error
	SignOut(ctx context.Context) error
}

// UserID resolves the partition key used by sync and uploads.
func UserID(ctx context.Context, p Provider) (string, error) {
	if p == nil {
		return "", ErrUnauthenticated
	}
	u, err := p.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func validate(user User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	return nil
}

// MemoryProvider keeps the session in memory.
type MemoryProvider struct {
	mu   sync.RWMutex
	user *User
}

var _ Provider = (*MemoryProvider)(nil)

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

func (m *MemoryProvider) CurrentUser(context.Context) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil, ErrUnauthenticated
	}
	u := *m.user
	return &u, nil
}

func (m *MemoryProvider) SignIn(_ context.Context, user User) error {
	if err := validate(user); err != nil {
		return err
	}
	if user.SignedInAt.IsZero() {
		user.SignedInAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &user
	return nil
}

func (m *MemoryProvider) SignOut(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}
