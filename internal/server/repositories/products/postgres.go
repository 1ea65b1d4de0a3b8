package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/dbx"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/models"
)

const selectProducts = `
	SELECT p.id, p.name, p.encrypted_description, p.price_cents, p.stock_quantity,
	       p.created_at, p.updated_at, p.created_by_id,
	       COALESCE(NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''), u.email)
	FROM products p
	JOIN users u ON u.id = p.created_by_id
`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Product) (*models.Product, error) {
	query :=
		`INSERT INTO products (name, encrypted_description, price_cents, stock_quantity, created_by_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.Name, p.EncryptedDescription, p.PriceCents, p.StockQuantity, p.CreatedByID).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, selectProducts+` WHERE p.id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Product, error) {
	return r.list(ctx, selectProducts+` ORDER BY p.created_at DESC, p.id DESC`)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Product, error) {
	return r.list(ctx, selectProducts+` WHERE p.created_by_id = $1 ORDER BY p.created_at DESC, p.id DESC`, ownerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Product) (*models.Product, error) {
	query :=
		`UPDATE products
		 SET name = $1, encrypted_description = $2, price_cents = $3, stock_quantity = $4, updated_at = now()
		 WHERE id = $5
		 RETURNING updated_at`

	var updated sql.NullTime
	err := r.db.QueryRowContext(ctx, query,
		p.Name, p.EncryptedDescription, p.PriceCents, p.StockQuantity, p.ID).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if updated.Valid {
		p.UpdatedAt = &updated.Time
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*models.Product, error) {
	p := &models.Product{}
	var updated sql.NullTime
	err := s.Scan(&p.ID, &p.Name, &p.EncryptedDescription, &p.PriceCents, &p.StockQuantity,
		&p.CreatedAt, &updated, &p.CreatedByID, &p.CreatedByName)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		p.UpdatedAt = &updated.Time
	}
	return p, nil
}
