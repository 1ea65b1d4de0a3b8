// Package session persists the terminal client's login state (refresh token,
// email) in a local SQLite key/value table.
package session

import "context"

// Keys stored by the client.
const (
	KeyRefreshToken = "refresh_token"
	KeyEmail        = "email"
)

type Repository interface {
	// Get returns "" and no error when key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
