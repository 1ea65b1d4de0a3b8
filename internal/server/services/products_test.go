package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/auth"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	mu    sync.Mutex
	keys  map[int64][]byte
	err   error
	calls int
}

func (f *fakeKeys) GetOrCreateKey(_ context.Context, userID int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.keys == nil {
		f.keys = map[int64][]byte{}
	}
	k, ok := f.keys[userID]
	if !ok {
		k = common.GenerateRandByteArray(cryptox.KeySize)
		f.keys[userID] = k
	}
	return append([]byte(nil), k...), nil
}

type productFixture struct {
	svc   *ProductService
	rm    *fakeRepoManager
	keys  *fakeKeys
	alice auth.Identity
	bob   auth.Identity
	admin auth.Identity
}

func newProductFixture(t *testing.T) *productFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)
	rm := newFakeRepoManager()
	ctx := context.Background()

	mk := func(first, email, role string) auth.Identity {
		u, err := rm.u.Create(ctx, &models.User{FirstName: first, LastName: "Test", Email: email, Role: role, IsActive: true})
		require.NoError(t, err)
		return auth.Identity{UserID: u.ID, Role: u.Role}
	}

	box, err := cryptox.NewCipherBox(cryptox.ModeCTR)
	require.NoError(t, err)

	keys := &fakeKeys{}
	return &productFixture{
		svc:   NewProductService(db, rm, keys, box, discard()),
		rm:    rm,
		keys:  keys,
		alice: mk("Alice", "alice@example.com", common.RoleUser),
		bob:   mk("Bob", "bob@example.com", common.RoleUser),
		admin: mk("Admin", "admin@example.com", common.RoleAdmin),
	}
}

func widget(name, desc string) ProductInput {
	return ProductInput{Name: name, Description: desc, PriceCents: 1999, StockQuantity: 3}
}

func TestProductService_CreateEncryptsDescription(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, f.alice, widget("  Blue Widget ", "qty sensitive"))
	require.NoError(t, err)
	assert.Equal(t, "Blue Widget", view.Name)
	assert.Equal(t, "qty sensitive", view.Description)
	assert.Equal(t, f.alice.UserID, view.CreatedByID)

	stored, err := f.rm.p.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "qty sensitive", stored.EncryptedDescription)

	box, _ := cryptox.NewCipherBox(cryptox.ModeCTR)
	plain, err := box.Decrypt(stored.EncryptedDescription, f.keys.keys[f.alice.UserID])
	require.NoError(t, err)
	assert.Equal(t, "qty sensitive", plain)
}

func TestProductService_CreateEmptyDescription(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, f.alice, widget("Plain", ""))
	require.NoError(t, err)

	stored, err := f.rm.p.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.EncryptedDescription)

	got, err := f.svc.Get(ctx, f.alice, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Description)
}

func TestProductService_CreateValidation(t *testing.T) {
	f := newProductFixture(t)

	_, err := f.svc.Create(context.Background(), f.alice, ProductInput{Name: "", PriceCents: 0, StockQuantity: -1})
	require.ErrorIs(t, err, common.ErrorValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	msgs := map[string]string{}
	for _, fe := range verr.Fields {
		msgs[fe.Field] = fe.Message
	}
	assert.Equal(t, "Product name is required", msgs["name"])
	assert.Equal(t, "Price must be greater than 0", msgs["price_cents"])
	assert.Equal(t, "Stock quantity cannot be negative", msgs["stock_quantity"])
	assert.Zero(t, f.keys.calls, "no key should be minted for rejected input")
}

func TestProductService_ListVisibility(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	a1, err := f.svc.Create(ctx, f.alice, widget("A1", "alice one"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.bob, widget("B1", "bob one"))
	require.NoError(t, err)
	a2, err := f.svc.Create(ctx, f.alice, widget("A2", "alice two"))
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID, mine[0].ID, "newest first")
	assert.Equal(t, a1.ID, mine[1].ID)
	assert.Equal(t, "alice two", mine[0].Description)
	assert.Equal(t, "Alice Test", mine[0].CreatedByName)

	all, err := f.svc.List(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	descs := map[string]string{}
	for _, v := range all {
		descs[v.Name] = v.Description
	}
	assert.Equal(t, map[string]string{"A1": "alice one", "B1": "bob one", "A2": "alice two"}, descs)
}

func TestProductService_ListUndisplayable(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	good, err := f.svc.Create(ctx, f.alice, widget("Good", "fine"))
	require.NoError(t, err)
	bad, err := f.svc.Create(ctx, f.alice, widget("Bad", "soon broken"))
	require.NoError(t, err)
	f.rm.p.byID[bad.ID].EncryptedDescription = "!!not base64!!"

	list, err := f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[int64]string{}
	for _, v := range list {
		byID[v.ID] = v.Description
	}
	assert.Equal(t, "fine", byID[good.ID])
	assert.Equal(t, common.UndisplayableDescription, byID[bad.ID])

	_, err = f.svc.Get(ctx, f.alice, bad.ID)
	require.ErrorIs(t, err, cryptox.ErrDecode)
}

type leakyProducts struct {
	*fakeProductsRepo
}

func (l leakyProducts) ListByOwner(ctx context.Context, _ int64) ([]*models.Product, error) {
	return l.ListAll(ctx)
}

func TestProductService_ListMasksOtherOwners(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.bob, widget("B1", "bob secret"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.alice, widget("A1", "alice own"))
	require.NoError(t, err)

	f.rm.override = leakyProducts{f.rm.p}
	views, err := f.svc.List(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, views, 2)
	descs := map[string]string{}
	for _, v := range views {
		descs[v.Name] = v.Description
	}
	assert.Equal(t, common.MaskedDescription, descs["B1"])
	assert.Equal(t, "alice own", descs["A1"])
}

func TestProductService_OwnerOnly(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.alice, widget("A1", "alice one"))
	require.NoError(t, err)

	for _, who := range []auth.Identity{f.bob, f.admin} {
		_, err = f.svc.Get(ctx, who, p.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)

		_, err = f.svc.Update(ctx, who, p.ID, widget("hijack", "x"))
		assert.ErrorIs(t, err, common.ErrorNotFound)

		err = f.svc.Delete(ctx, who, p.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	}

	got, err := f.svc.Get(ctx, f.alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Name)
}

func TestProductService_UpdateAndDelete(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.alice, widget("A1", "before"))
	require.NoError(t, err)
	assert.Nil(t, p.UpdatedAt)

	in := widget("A1 v2", "after")
	in.PriceCents = 500
	updated, err := f.svc.Update(ctx, f.alice, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "A1 v2", updated.Name)
	assert.Equal(t, int64(500), updated.PriceCents)
	assert.NotNil(t, updated.UpdatedAt)

	got, err := f.svc.Get(ctx, f.alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Description)

	require.NoError(t, f.svc.Delete(ctx, f.alice, p.ID))
	_, err = f.svc.Get(ctx, f.alice, p.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestProductService_KeyErrors(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.alice, widget("A1", "x"))
	require.NoError(t, err)

	errStore := errors.New("store down")
	f.keys.err = errStore

	_, err = f.svc.Create(ctx, f.alice, widget("A2", "y"))
	assert.ErrorIs(t, err, errStore)

	_, err = f.svc.List(ctx, f.alice)
	assert.ErrorIs(t, err, errStore)

	_, err = f.svc.Get(ctx, f.alice, p.ID)
	assert.ErrorIs(t, err, errStore)
}

func TestProductService_RepoErrors(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	f.rm.p.err = errBoom

	_, err := f.svc.List(ctx, f.alice)
	assert.ErrorIs(t, err, errBoom)

	_, err = f.svc.Create(ctx, f.alice, widget("A1", "x"))
	assert.ErrorIs(t, err, errBoom)

	_, err = f.svc.Get(ctx, f.alice, 1)
	assert.ErrorIs(t, err, errBoom)
}
