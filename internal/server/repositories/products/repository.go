// Package products declares the repository contract for catalog items.
package products

import (
	"context"

	"github.com/dmitrijs2005/catalogkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts p and fills its ID and CreatedAt.
	Create(ctx context.Context, p *models.Product) (*models.Product, error)
	// GetByID returns common.ErrorNotFound for unknown ids.
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	// ListAll returns every product, newest first.
	ListAll(ctx context.Context) ([]*models.Product, error)
	// ListByOwner returns the products created by ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Product, error)
	// Update rewrites the mutable fields of p and sets UpdatedAt.
	Update(ctx context.Context, p *models.Product) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
}
