package vault

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	state    *State
	loadErr  error
	initErr  error
	putErr   error
	putDelay time.Duration

	inits int
	puts  atomic.Int32
}

func (f *fakeStore) Load(context.Context) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.state == nil {
		return nil, ErrStoreNotFound
	}
	return f.state.Clone(), nil
}

func (f *fakeStore) Init(_ context.Context, st *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.initErr != nil {
		return f.initErr
	}
	f.state = st.Clone()
	return nil
}

func (f *fakeStore) PutIfAbsent(_ context.Context, id int64, key []byte) ([]byte, error) {
	f.puts.Add(1)
	if f.putDelay > 0 {
		time.Sleep(f.putDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	if k, ok := f.state.UserKeys[id]; ok {
		return bytes.Clone(k), nil
	}
	f.state.UserKeys[id] = bytes.Clone(key)
	return bytes.Clone(key), nil
}

func (f *fakeStore) Close() error { return nil }

func newVault(t *testing.T, s Store) *Vault {
	t.Helper()
	v, err := New(context.Background(), s, logging.Discard())
	require.NoError(t, err)
	return v
}

func TestNew_MissingStoreIsInitialized(t *testing.T) {
	s := &fakeStore{}
	v := newVault(t, s)

	assert.Equal(t, 1, s.inits)
	assert.True(t, v.HasMasterKey())
	assert.Len(t, s.state.MasterKey, KeySize)
	assert.Equal(t, 0, v.Len())
}

func TestNew_LoadsExistingState(t *testing.T) {
	k := bytes.Repeat([]byte{7}, KeySize)
	s := &fakeStore{state: &State{
		MasterKey: bytes.Repeat([]byte{1}, KeySize),
		UserKeys:  map[int64][]byte{42: k},
	}}
	v := newVault(t, s)

	assert.Equal(t, 0, s.inits, "existing state must not be rewritten")
	got, err := v.GetOrCreateKey(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, k, got)
	assert.EqualValues(t, 0, s.puts.Load())
}

func TestNew_UnreadableStoreFallsBackToEmpty(t *testing.T) {
	s := &fakeStore{loadErr: errors.New("unexpected end of JSON input")}
	v := newVault(t, s)

	assert.Equal(t, 1, s.inits)
	assert.Equal(t, 0, v.Len())
}

func TestNew_InitFailureIsFatal(t *testing.T) {
	s := &fakeStore{initErr: errors.New("read-only file system")}
	_, err := New(context.Background(), s, logging.Discard())

	require.ErrorIs(t, err, ErrPersistence)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "init", pe.Op)
}

func TestGetOrCreateKey_StableAndUnique(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, &fakeStore{})

	a1, err := v.GetOrCreateKey(ctx, 1)
	require.NoError(t, err)
	a2, err := v.GetOrCreateKey(ctx, 1)
	require.NoError(t, err)
	b, err := v.GetOrCreateKey(ctx, 2)
	require.NoError(t, err)

	assert.Len(t, a1, KeySize)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Equal(t, []int64{1, 2}, v.UserIDs())
}

func TestGetOrCreateKey_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	v := newVault(t, &fakeStore{})

	k, err := v.GetOrCreateKey(ctx, 5)
	require.NoError(t, err)
	orig := bytes.Clone(k)
	clear(k)

	again, err := v.GetOrCreateKey(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, orig, again)
}

func TestKey_LooksUpWithoutCreating(t *testing.T) {
	ctx := context.Background()
	s := &fakeStore{}
	v := newVault(t, s)

	_, ok := v.Key(7)
	assert.False(t, ok)
	assert.Equal(t, 0, v.Len())
	assert.EqualValues(t, 0, s.puts.Load())

	want, err := v.GetOrCreateKey(ctx, 7)
	require.NoError(t, err)
	got, ok := v.Key(7)
	require.True(t, ok)
	assert.Equal(t, want, got)

	clear(got)
	again, _ := v.Key(7)
	assert.Equal(t, want, again)
}

func TestGetOrCreateKey_WriteFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	s := &fakeStore{}
	v := newVault(t, s)

	s.putErr = errors.New("disk full")
	_, err := v.GetOrCreateKey(ctx, 9)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 0, v.Len())

	s.putErr = nil
	k, err := v.GetOrCreateKey(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, s.state.UserKeys[9], k)
	assert.EqualValues(t, 2, s.puts.Load())
}

func TestGetOrCreateKey_AdoptsKeyHeldByStore(t *testing.T) {
	ctx := context.Background()
	s := &fakeStore{}
	v := newVault(t, s)

	// another process wrote a key after this vault loaded
	theirs := bytes.Repeat([]byte{9}, KeySize)
	s.state.UserKeys[3] = theirs

	got, err := v.GetOrCreateKey(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, theirs, got)
}

func TestGetOrCreateKey_KeyGenerationFailure(t *testing.T) {
	v := newVault(t, &fakeStore{})

	orig := newKey
	newKey = func() ([]byte, error) { return nil, errors.New("no entropy") }
	t.Cleanup(func() { newKey = orig })

	_, err := v.GetOrCreateKey(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPersistence)
}

func TestGetOrCreateKey_ConcurrentFirstCalls(t *testing.T) {
	ctx := context.Background()
	s := &fakeStore{putDelay: 5 * time.Millisecond}
	v := newVault(t, s)

	const n = 32
	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := v.GetOrCreateKey(ctx, 77)
			if assert.NoError(t, err) {
				results[i] = k
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, s.puts.Load(), "exactly one persisted key")
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestGetOrCreateKey_ConcurrentDifferentUsers(t *testing.T) {
	ctx := context.Background()
	s := &fakeStore{}
	v := newVault(t, s)

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := v.GetOrCreateKey(ctx, id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, v.Len())
	assert.Len(t, s.state.UserKeys, 50)
}

func TestPersistenceError(t *testing.T) {
	inner := errors.New("boom")
	e := &PersistenceError{Op: "put", Err: inner}
	assert.ErrorIs(t, e, ErrPersistence)
	assert.ErrorIs(t, e, inner)
	assert.Equal(t, "vault put: boom", e.Error())
}
