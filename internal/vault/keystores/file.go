package keystores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/filex"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
)

const filePerm = 0o600

// FileStore keeps the whole vault in one JSON document on local disk and
// rewrites it on every new key.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state *vault.State
	now   func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (*vault.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, vault.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	st, err := vault.UnmarshalState(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.state = st
	return st.Clone(), nil
}

// Init moves any existing file aside as <path>.corrupt-<unix> and writes st.
func (s *FileStore) Init(ctx context.Context, st *vault.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("back up %s: %w", s.path, err)
		}
	}

	if err := s.write(st); err != nil {
		return err
	}
	s.state = st.Clone()
	return nil
}

func (s *FileStore) PutIfAbsent(ctx context.Context, userID int64, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, errors.New("file store not initialized")
	}
	if k, ok := s.state.UserKeys[userID]; ok {
		return bytes.Clone(k), nil
	}

	next := s.state.Clone()
	next.UserKeys[userID] = bytes.Clone(key)
	if err := s.write(next); err != nil {
		return nil, err
	}
	s.state = next
	return bytes.Clone(key), nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) write(st *vault.State) error {
	data, err := vault.MarshalState(st)
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}
	if err := filex.WriteFileAtomic(s.path, data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
