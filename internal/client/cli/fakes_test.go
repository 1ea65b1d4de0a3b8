package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/client/client"
	"github.com/dmitrijs2005/catalogkeeper/internal/client/repositories/session"
	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
)

var errBoom = errors.New("boom")

type fakeAPI struct {
	regIn     rpcapi.Registration
	loginUser string
	loginPass string
	resumed   string
	tokens    *rpcapi.Tokens
	authErr   error

	logoutCalls int
	logoutErr   error
	pingErr     error
	closed      bool

	products map[int64]rpcapi.Product
	nextID   int64
	created  []rpcapi.ProductInput
	updated  []rpcapi.ProductInput
	deleted  []int64
	err      error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tokens:   &rpcapi.Tokens{AccessToken: "a", RefreshToken: "r", UserID: 1, Role: "user", DisplayName: "Alice Smith"},
		products: map[int64]rpcapi.Product{},
		nextID:   1,
	}
}

func (f *fakeAPI) Close() error                   { f.closed = true; return nil }
func (f *fakeAPI) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeAPI) Register(ctx context.Context, in rpcapi.Registration) (*rpcapi.Tokens, error) {
	f.regIn = in
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.tokens, nil
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*rpcapi.Tokens, error) {
	f.loginUser, f.loginPass = email, password
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.tokens, nil
}

func (f *fakeAPI) Resume(ctx context.Context, refreshToken string) (*rpcapi.Tokens, error) {
	f.resumed = refreshToken
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.tokens, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) ListProducts(ctx context.Context) ([]rpcapi.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]rpcapi.Product, 0, len(f.products))
	for id := f.nextID - 1; id > 0; id-- {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetProduct(ctx context.Context, id int64) (*rpcapi.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return &p, nil
}

func (f *fakeAPI) CreateProduct(ctx context.Context, in rpcapi.ProductInput) (*rpcapi.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	p := f.put(f.nextID, in)
	f.nextID++
	return &p, nil
}

func (f *fakeAPI) UpdateProduct(ctx context.Context, in rpcapi.ProductInput) (*rpcapi.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated = append(f.updated, in)
	p := f.put(in.ID, in)
	return &p, nil
}

func (f *fakeAPI) DeleteProduct(ctx context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	delete(f.products, id)
	return nil
}

func (f *fakeAPI) put(id int64, in rpcapi.ProductInput) rpcapi.Product {
	p := rpcapi.Product{
		ID:            id,
		Name:          in.Name,
		Description:   in.Description,
		PriceCents:    in.PriceCents,
		StockQuantity: in.StockQuantity,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CreatedByID:   1,
		CreatedByName: "Alice Smith",
	}
	f.products[id] = p
	return p
}

type memSessions struct {
	data   map[string]string
	setErr error
}

func newMemSessions() *memSessions { return &memSessions{data: map[string]string{}} }

func (m *memSessions) Get(ctx context.Context, key string) (string, error) { return m.data[key], nil }

func (m *memSessions) Set(ctx context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memSessions) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memSessions) Clear(ctx context.Context) error {
	m.data = map[string]string{}
	return nil
}

var _ session.Repository = (*memSessions)(nil)

// newTestApp builds an App whose prompts read from input.
func newTestApp(t *testing.T, input string) (*App, *fakeAPI, *memSessions, *bytes.Buffer) {
	t.Helper()
	api := newFakeAPI()
	sessions := newMemSessions()
	out := &bytes.Buffer{}
	a := &App{
		api:      api,
		sessions: sessions,
		logger:   logging.Discard(),
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      out,
	}
	return a, api, sessions, out
}

func loggedIn(a *App) {
	a.user = &rpcapi.Tokens{AccessToken: "a", RefreshToken: "r", UserID: 1, Role: "user", DisplayName: "Alice Smith"}
	a.email = "alice@example.com"
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	orig := getPassword
	getPassword = func(_ io.Writer) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { getPassword = orig })
}
