package keystores

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/catalogkeeper/internal/dbx"
	"github.com/dmitrijs2005/catalogkeeper/internal/filex"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect holds the statements that differ between PostgreSQL and SQLite.
type dialect struct {
	driver     string
	schema     []string
	upsertMeta string
	insertKey  string
	selectKey  string
	selectMeta string
	selectKeys string
}

var postgresDialect = dialect{
	driver: "pgx",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS vault_meta (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			master_key BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_keys (
			user_id BIGINT PRIMARY KEY,
			key_material BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
	upsertMeta: `INSERT INTO vault_meta (id, master_key) VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING`,
	insertKey:  `INSERT INTO user_keys (user_id, key_material) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
	selectKey:  `SELECT key_material FROM user_keys WHERE user_id = $1`,
	selectMeta: `SELECT master_key FROM vault_meta WHERE id = 1`,
	selectKeys: `SELECT user_id, key_material FROM user_keys`,
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS vault_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			master_key BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_keys (
			user_id INTEGER PRIMARY KEY,
			key_material BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	upsertMeta: `INSERT INTO vault_meta (id, master_key) VALUES (1, ?)
		ON CONFLICT (id) DO NOTHING`,
	insertKey:  `INSERT INTO user_keys (user_id, key_material) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
	selectKey:  `SELECT key_material FROM user_keys WHERE user_id = ?`,
	selectMeta: `SELECT master_key FROM vault_meta WHERE id = 1`,
	selectKeys: `SELECT user_id, key_material FROM user_keys`,
}

// SQLStore keeps one row per user key, so adding a key costs one insert
// regardless of how many users exist.
type SQLStore struct {
	db     *sql.DB
	d      dialect
	ownsDB bool
}

// NewPostgresStore wraps an existing pgx-backed handle. The caller keeps
// ownership of db.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, d: postgresDialect}
}

// NewSQLiteStore wraps an existing modernc.org/sqlite handle.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, d: sqliteDialect}
}

// OpenPostgresStore opens its own connection pool for dsn.
func OpenPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQLStore(ctx, postgresDialect, dsn)
}

// OpenSQLiteStore opens (creating if needed) the database file at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}
	return openSQLStore(ctx, sqliteDialect, path)
}

func openSQLStore(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d.driver == sqliteDialect.driver {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	return &SQLStore{db: db, d: d, ownsDB: true}, nil
}

// EnsureSchema creates the key tables if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, q := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (*vault.State, error) {
	st := &vault.State{UserKeys: make(map[int64][]byte)}

	err := s.db.QueryRowContext(ctx, s.d.selectMeta).Scan(&st.MasterKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vault.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.d.selectKeys)
	if err != nil {
		return nil, fmt.Errorf("load user keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			key []byte
		)
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("scan user key: %w", err)
		}
		if len(key) != vault.KeySize {
			return nil, fmt.Errorf("%w: key for user %d has %d bytes", vault.ErrInvalidState, id, len(key))
		}
		st.UserKeys[id] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user keys: %w", err)
	}
	return st, nil
}

// Init records the master key unless one is already stored. Existing rows,
// master key and user keys alike, are never replaced or deleted.
func (s *SQLStore) Init(ctx context.Context, st *vault.State) error {
	if _, err := s.db.ExecContext(ctx, s.d.upsertMeta, st.MasterKey); err != nil {
		return fmt.Errorf("store master key: %w", err)
	}
	return nil
}

func (s *SQLStore) PutIfAbsent(ctx context.Context, userID int64, key []byte) ([]byte, error) {
	var stored []byte
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, s.d.insertKey, userID, key); err != nil {
			return fmt.Errorf("insert user key: %w", err)
		}
		if err := tx.QueryRowContext(ctx, s.d.selectKey, userID).Scan(&stored); err != nil {
			return fmt.Errorf("read user key: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(stored), nil
}

func (s *SQLStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
