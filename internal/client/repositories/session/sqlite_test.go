package session

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE session (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyRefreshToken, "tok"))

	v, err := r.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "tok", v)
}

func TestGet_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestSet_Overwrites(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyEmail, "old@example.com"))
	require.NoError(t, r.Set(ctx, KeyEmail, "new@example.com"))

	v, err := r.Get(ctx, KeyEmail)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", v)
}

func TestDeleteAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyEmail, "a@example.com"))
	require.NoError(t, r.Set(ctx, KeyRefreshToken, "tok"))

	require.NoError(t, r.Delete(ctx, KeyEmail))
	v, err := r.Get(ctx, KeyEmail)
	require.NoError(t, err)
	require.Empty(t, v)

	require.NoError(t, r.Clear(ctx))
	v, err = r.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	_, err := r.Get(context.Background(), "k")
	require.ErrorContains(t, err, "failed to get session[k]")
	require.ErrorContains(t, r.Set(context.Background(), "k", "v"), "failed to set session[k]")
}
