// Package keystores provides vault.Store implementations: a local JSON file,
// an S3 object, and PostgreSQL or SQLite tables.
package keystores

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
)

const (
	KindFile     = "file"
	KindS3       = "s3"
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

// Kinds lists the accepted values of Config.Kind.
var Kinds = []string{KindFile, KindS3, KindPostgres, KindSQLite}

// Config selects and parameterizes a key store.
type Config struct {
	Kind string
	// Path is the JSON file for "file" and the database file for "sqlite".
	Path string
	// DSN is used by "postgres" when DB is nil.
	DSN string
	// DB, when set, is a shared PostgreSQL handle owned by the caller.
	DB *sql.DB
	S3 S3Config
}

// newObjectAPI is replaced in tests.
var newObjectAPI = func(ctx context.Context, c S3Config) (ObjectAPI, error) {
	return NewS3Client(ctx, c)
}

// Open builds the store described by c. SQL stores get their schema
// created before Open returns.
func Open(ctx context.Context, c Config) (vault.Store, error) {
	switch strings.ToLower(c.Kind) {
	case "", KindFile:
		if c.Path == "" {
			return nil, fmt.Errorf("file key store: path is required")
		}
		return NewFileStore(c.Path), nil

	case KindS3:
		if c.S3.Bucket == "" || c.S3.Object == "" {
			return nil, fmt.Errorf("s3 key store: bucket and object are required")
		}
		api, err := newObjectAPI(ctx, c.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 key store: %w", err)
		}
		return NewS3Store(api, c.S3.Bucket, c.S3.Object), nil

	case KindPostgres:
		var (
			s   *SQLStore
			err error
		)
		if c.DB != nil {
			s = NewPostgresStore(c.DB)
		} else if s, err = OpenPostgresStore(ctx, c.DSN); err != nil {
			return nil, err
		}
		return ensured(ctx, s)

	case KindSQLite:
		if c.Path == "" {
			return nil, fmt.Errorf("sqlite key store: path is required")
		}
		s, err := OpenSQLiteStore(ctx, c.Path)
		if err != nil {
			return nil, err
		}
		return ensured(ctx, s)

	default:
		return nil, fmt.Errorf("unknown key store %q (want one of %s)", c.Kind, strings.Join(Kinds, ", "))
	}
}

func ensured(ctx context.Context, s *SQLStore) (vault.Store, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
