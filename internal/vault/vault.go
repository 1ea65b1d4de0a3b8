package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
)

// newKey is replaced in tests.
var newKey = func() ([]byte, error) {
	b := make([]byte, KeySize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

type Vault struct {
	mu        sync.RWMutex
	store     Store
	logger    logging.Logger
	masterKey []byte
	keys      map[int64][]byte
}

// New loads the vault state from store. A missing or unreadable store is
// replaced by a fresh state that is written back before New returns.
func New(ctx context.Context, store Store, logger logging.Logger) (*Vault, error) {
	v := &Vault{store: store, logger: logger}

	st, err := store.Load(ctx)
	switch {
	case err == nil:
		v.masterKey = st.MasterKey
		v.keys = st.UserKeys
		if v.keys == nil {
			v.keys = make(map[int64][]byte)
		}
		logger.Info(ctx, "vault loaded", "users", len(v.keys))
		return v, nil
	case errors.Is(err, ErrStoreNotFound):
		logger.Info(ctx, "vault store not found, initializing")
	default:
		logger.Warn(ctx, "vault store unreadable, starting empty; data encrypted under previous keys is lost",
			"error", err)
	}

	mk, err := newKey()
	if err != nil {
		return nil, &PersistenceError{Op: "init", Err: fmt.Errorf("generate master key: %w", err)}
	}
	fresh := &State{MasterKey: mk, UserKeys: make(map[int64][]byte)}
	if err := store.Init(ctx, fresh); err != nil {
		return nil, &PersistenceError{Op: "init", Err: err}
	}

	v.masterKey = fresh.MasterKey
	v.keys = fresh.UserKeys
	return v, nil
}

// GetOrCreateKey returns the key for userID, creating and persisting one on
// first use. The returned slice is a copy.
func (v *Vault) GetOrCreateKey(ctx context.Context, userID int64) ([]byte, error) {
	v.mu.RLock()
	k, ok := v.keys[userID]
	v.mu.RUnlock()
	if ok {
		return slices.Clone(k), nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if k, ok := v.keys[userID]; ok {
		return slices.Clone(k), nil
	}

	k, err := newKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	stored, err := v.store.PutIfAbsent(ctx, userID, k)
	if err != nil {
		return nil, &PersistenceError{Op: "put", Err: err}
	}
	if len(stored) != KeySize {
		return nil, &PersistenceError{Op: "put", Err: fmt.Errorf("store returned %d-byte key", len(stored))}
	}

	v.keys[userID] = slices.Clone(stored)
	v.logger.Info(ctx, "user key created", "user_id", userID, "fingerprint", cryptox.Fingerprint(stored))

	return slices.Clone(stored), nil
}

// Key returns a copy of userID's key without creating one.
func (v *Vault) Key(userID int64) ([]byte, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	k, ok := v.keys[userID]
	if !ok {
		return nil, false
	}
	return slices.Clone(k), true
}

// UserIDs returns the ids that currently have a key, sorted ascending.
func (v *Vault) UserIDs() []int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ids := make([]int64, 0, len(v.keys))
	for id := range v.keys {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

func (v *Vault) HasMasterKey() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.masterKey) > 0
}
