package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// KeySize is the length of every user key and of the master key.
const KeySize = 32

// State is the full persisted content of a vault.
type State struct {
	// MasterKey is generated once and persisted; nothing derives from it.
	MasterKey []byte
	UserKeys  map[int64][]byte
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := &State{
		MasterKey: append([]byte(nil), s.MasterKey...),
		UserKeys:  make(map[int64][]byte, len(s.UserKeys)),
	}
	for id, k := range s.UserKeys {
		out.UserKeys[id] = append([]byte(nil), k...)
	}
	return out
}

// Store is the durable backing of a Vault.
type Store interface {
	// Load returns the persisted state, or ErrStoreNotFound if none exists.
	Load(ctx context.Context) (*State, error)
	// Init writes st as a fresh durable state.
	Init(ctx context.Context, st *State) error
	// PutIfAbsent stores key for userID unless a key already exists, and
	// returns whichever key the store holds afterwards.
	PutIfAbsent(ctx context.Context, userID int64, key []byte) ([]byte, error)
	Close() error
}

// document is the on-disk JSON layout. encoding/json matches field names
// case-insensitively, so "MasterKey"/"UserKeys" documents load as well.
type document struct {
	MasterKey string            `json:"masterKey"`
	UserKeys  map[string]string `json:"userKeys"`
}

// MarshalState encodes st as an indented JSON document.
func MarshalState(st *State) ([]byte, error) {
	doc := document{
		MasterKey: base64.StdEncoding.EncodeToString(st.MasterKey),
		UserKeys:  make(map[string]string, len(st.UserKeys)),
	}
	for id, k := range st.UserKeys {
		doc.UserKeys[strconv.FormatInt(id, 10)] = base64.StdEncoding.EncodeToString(k)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalState parses a document produced by MarshalState. A master key or
// user key that is not 32 bytes of base64, or a user id that is not a
// canonical decimal integer ("42", never "042" or "+42"), fails the whole
// document.
func UnmarshalState(data []byte) (*State, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	mk, err := base64.StdEncoding.DecodeString(doc.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %v", ErrInvalidState, err)
	}
	if len(mk) != KeySize {
		return nil, fmt.Errorf("%w: master key has %d bytes", ErrInvalidState, len(mk))
	}

	st := &State{MasterKey: mk, UserKeys: make(map[int64][]byte, len(doc.UserKeys))}
	for sid, sk := range doc.UserKeys {
		id, err := strconv.ParseInt(sid, 10, 64)
		if err != nil || strconv.FormatInt(id, 10) != sid {
			return nil, fmt.Errorf("%w: user id %q", ErrInvalidState, sid)
		}
		k, err := base64.StdEncoding.DecodeString(sk)
		if err != nil {
			return nil, fmt.Errorf("%w: key for user %d: %v", ErrInvalidState, id, err)
		}
		if len(k) != KeySize {
			return nil, fmt.Errorf("%w: key for user %d has %d bytes", ErrInvalidState, id, len(k))
		}
		st.UserKeys[id] = k
	}
	return st, nil
}
