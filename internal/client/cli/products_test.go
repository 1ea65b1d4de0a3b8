package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/catalogkeeper/internal/client/client"
	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductCommands_RequireLogin(t *testing.T) {
	a, _, _, _ := newTestApp(t, "")
	ctx := context.Background()

	assert.ErrorIs(t, a.List(ctx), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Add(ctx), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Show(ctx, []string{"1"}), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Edit(ctx, []string{"1"}), client.ErrNotLoggedIn)
	assert.ErrorIs(t, a.Delete(ctx, []string{"1"}), client.ErrNotLoggedIn)
}

func TestAdd(t *testing.T) {
	a, api, _, out := newTestApp(t, "Widget\nblue and round\n19.99\n3\n")
	loggedIn(a)

	require.NoError(t, a.Add(context.Background()))

	require.Len(t, api.created, 1)
	assert.Equal(t, rpcapi.ProductInput{Name: "Widget", Description: "blue and round", PriceCents: 1999, StockQuantity: 3}, api.created[0])
	assert.Contains(t, out.String(), "Created product #1")
}

func TestAdd_BadPrice(t *testing.T) {
	a, api, _, _ := newTestApp(t, "Widget\n\n1.999\n3\n")
	loggedIn(a)

	err := a.Add(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than two decimal places")
	assert.Empty(t, api.created)
}

func TestList(t *testing.T) {
	a, api, _, out := newTestApp(t, "")
	loggedIn(a)
	api.put(1, rpcapi.ProductInput{Name: "Old", Description: "first", PriceCents: 500, StockQuantity: 1})
	api.put(2, rpcapi.ProductInput{Name: "New", Description: strings.Repeat("x", 60), PriceCents: 1999, StockQuantity: 0})
	api.nextID = 3

	require.NoError(t, a.List(context.Background()))

	text := out.String()
	assert.Contains(t, text, "NAME")
	assert.Contains(t, text, "19.99")
	assert.Contains(t, text, strings.Repeat("x", 37)+"...")
	assert.Less(t, strings.Index(text, "New"), strings.Index(text, "Old"))
}

func TestList_Empty(t *testing.T) {
	a, _, _, out := newTestApp(t, "")
	loggedIn(a)
	require.NoError(t, a.List(context.Background()))
	assert.Contains(t, out.String(), "No products yet")
}

func TestList_Error(t *testing.T) {
	a, api, _, _ := newTestApp(t, "")
	loggedIn(a)
	api.err = client.ErrUnavailable
	require.ErrorIs(t, a.List(context.Background()), client.ErrUnavailable)
}

func TestShow(t *testing.T) {
	a, api, _, out := newTestApp(t, "")
	loggedIn(a)
	api.put(4, rpcapi.ProductInput{Name: "Lamp", Description: "warm light", PriceCents: 4250, StockQuantity: 2})

	require.NoError(t, a.Show(context.Background(), []string{"4"}))
	assert.Contains(t, out.String(), "#4 Lamp")
	assert.Contains(t, out.String(), "42.50")
	assert.Contains(t, out.String(), "warm light")

	require.ErrorIs(t, a.Show(context.Background(), []string{"9"}), client.ErrNotFound)
	require.Error(t, a.Show(context.Background(), nil))
	require.Error(t, a.Show(context.Background(), []string{"abc"}))
}

func TestEdit_KeepsDefaults(t *testing.T) {
	a, api, _, out := newTestApp(t, "\nnew words\n\n10\n")
	loggedIn(a)
	api.put(4, rpcapi.ProductInput{Name: "Lamp", Description: "warm light", PriceCents: 4250, StockQuantity: 2})

	require.NoError(t, a.Edit(context.Background(), []string{"4"}))

	require.Len(t, api.updated, 1)
	assert.Equal(t, rpcapi.ProductInput{ID: 4, Name: "Lamp", Description: "new words", PriceCents: 4250, StockQuantity: 10}, api.updated[0])
	assert.Contains(t, out.String(), "Name [Lamp]")
	assert.Contains(t, out.String(), "Updated product #4")
}

func TestDelete(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		a, api, _, out := newTestApp(t, "y\n")
		loggedIn(a)
		api.put(4, rpcapi.ProductInput{Name: "Lamp", PriceCents: 1})

		require.NoError(t, a.Delete(context.Background(), []string{"4"}))
		assert.Equal(t, []int64{4}, api.deleted)
		assert.Contains(t, out.String(), "Deleted product #4")
	})

	t.Run("cancelled", func(t *testing.T) {
		a, api, _, out := newTestApp(t, "\n")
		loggedIn(a)

		require.NoError(t, a.Delete(context.Background(), []string{"4"}))
		assert.Empty(t, api.deleted)
		assert.Contains(t, out.String(), "Cancelled")
	})

	t.Run("not found", func(t *testing.T) {
		a, api, _, _ := newTestApp(t, "yes\n")
		loggedIn(a)
		api.err = client.ErrNotFound

		require.ErrorIs(t, a.Delete(context.Background(), []string{"4"}), client.ErrNotFound)
	})
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "ééééééé...", shorten(strings.Repeat("é", 20), 10))
}
