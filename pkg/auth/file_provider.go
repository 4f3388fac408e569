package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileProvider persists the session as YAML, so that consecutive CLI
// invocations share it.
type FileProvider struct {
	mu   sync.Mutex
	path string
}

var _ Provider = (*FileProvider)(nil)

type sessionFile struct {
	User *User `yaml:"user,omitempty"`
}

func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, errors.New("session file path is required")
	}
	return &FileProvider{path: path}, nil
}

func (f *FileProvider) load() (*sessionFile, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &sessionFile{}, nil
		}
		return nil, errors.Wrap(err, "could not read session file")
	}
	var ret sessionFile
	if err := yaml.Unmarshal(b, &ret); err != nil {
		return nil, errors.Wrapf(err, "could not parse session file %s", f.path)
	}
	return &ret, nil
}

func (f *FileProvider) persist(s *sessionFile) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, f.path)
}

func (f *FileProvider) CurrentUser(context.Context) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load()
	if err != nil {
		return nil, err
	}
	if s.User == nil || s.User.ID == "" {
		return nil, ErrUnauthenticated
	}
	return s.User, nil
}

func (f *FileProvider) SignIn(_ context.Context, user User) error {
	if err := validate(user); err != nil {
		return err
	}
	if user.SignedInAt.IsZero() {
		user.SignedInAt = time.Now().UTC()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.persist(&sessionFile{User: &user}); err != nil {
		return errors.Wrap(err, "could not write session file")
	}
	log.Debug().Str("user_id", user.ID).Str("path", f.path).Msg("Signed in")
	return nil
}

func (f *FileProvider) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "could not remove session file")
	}
	return nil
}
