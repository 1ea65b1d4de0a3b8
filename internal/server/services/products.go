package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/auth"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/models"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/repositories/repomanager"
)

// KeyProvider hands out the per-user description key. *vault.Vault
// satisfies it.
type KeyProvider interface {
	GetOrCreateKey(ctx context.Context, userID int64) ([]byte, error)
}

// Cipher seals descriptions. *cryptox.CipherBox satisfies it.
type Cipher interface {
	Encrypt(plaintext string, key []byte) (string, error)
	Decrypt(blob string, key []byte) (string, error)
}

// ProductView is a product with its description in the form the caller is
// allowed to see.
type ProductView struct {
	ID            int64
	Name          string
	Description   string
	PriceCents    int64
	StockQuantity int64
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	CreatedByID   int64
	CreatedByName string
}

type ProductService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        KeyProvider
	cipher      Cipher
	logger      logging.Logger
}

func NewProductService(db *sql.DB, m repomanager.RepositoryManager, keys KeyProvider, cipher Cipher, logger logging.Logger) *ProductService {
	return &ProductService{db: db, repomanager: m, keys: keys, cipher: cipher, logger: logger}
}

// List returns every product for admins and the caller's own products
// otherwise, newest first. Items that fail to decrypt are shown with
// common.UndisplayableDescription.
func (s *ProductService) List(ctx context.Context, caller auth.Identity) ([]*ProductView, error) {
	repo := s.repomanager.Products(s.db)

	var (
		items []*models.Product
		err   error
	)
	if caller.IsAdmin() {
		items, err = repo.ListAll(ctx)
	} else {
		items, err = repo.ListByOwner(ctx, caller.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("error listing products: %w", err)
	}

	keys := map[int64][]byte{}
	defer func() {
		for _, k := range keys {
			common.WipeByteArray(k)
		}
	}()

	out := make([]*ProductView, 0, len(items))
	for _, p := range items {
		view := toView(p, common.MaskedDescription)

		if p.CreatedByID == caller.UserID || caller.IsAdmin() {
			key, ok := keys[p.CreatedByID]
			if !ok {
				key, err = s.keys.GetOrCreateKey(ctx, p.CreatedByID)
				if err != nil {
					return nil, fmt.Errorf("error loading key: %w", err)
				}
				keys[p.CreatedByID] = key
			}

			plain, err := s.cipher.Decrypt(p.EncryptedDescription, key)
			if err != nil {
				s.logger.Warn(ctx, "product description could not be decrypted", "product_id", p.ID, "owner_id", p.CreatedByID, "error", err)
				plain = common.UndisplayableDescription
			}
			view.Description = plain
		}

		out = append(out, view)
	}

	return out, nil
}

// Get returns one of the caller's products with its description decrypted.
// Products owned by someone else are reported as common.ErrorNotFound.
func (s *ProductService) Get(ctx context.Context, caller auth.Identity, id int64) (*ProductView, error) {
	p, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	plain, err := s.decrypt(ctx, p)
	if err != nil {
		return nil, err
	}

	return toView(p, plain), nil
}

// Create stores a new product owned by the caller.
func (s *ProductService) Create(ctx context.Context, caller auth.Identity, in ProductInput) (*ProductView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	blob, err := s.encrypt(ctx, caller.UserID, in.Description)
	if err != nil {
		return nil, err
	}

	p, err := s.repomanager.Products(s.db).Create(ctx, &models.Product{
		Name:                 in.Name,
		EncryptedDescription: blob,
		PriceCents:           in.PriceCents,
		StockQuantity:        in.StockQuantity,
		CreatedByID:          caller.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating product: %w", err)
	}

	s.logger.Info(ctx, "product created", "product_id", p.ID, "owner_id", caller.UserID)

	return toView(p, in.Description), nil
}

// Update rewrites one of the caller's products.
func (s *ProductService) Update(ctx context.Context, caller auth.Identity, id int64, in ProductInput) (*ProductView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	p, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	blob, err := s.encrypt(ctx, p.CreatedByID, in.Description)
	if err != nil {
		return nil, err
	}

	p.Name = in.Name
	p.EncryptedDescription = blob
	p.PriceCents = in.PriceCents
	p.StockQuantity = in.StockQuantity

	p, err = s.repomanager.Products(s.db).Update(ctx, p)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error updating product: %w", err)
	}

	return toView(p, in.Description), nil
}

// Delete removes one of the caller's products.
func (s *ProductService) Delete(ctx context.Context, caller auth.Identity, id int64) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}

	if err := s.repomanager.Products(s.db).Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error deleting product: %w", err)
	}

	s.logger.Info(ctx, "product deleted", "product_id", id, "owner_id", caller.UserID)
	return nil
}

func (s *ProductService) owned(ctx context.Context, caller auth.Identity, id int64) (*models.Product, error) {
	p, err := s.repomanager.Products(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading product: %w", err)
	}
	if p.CreatedByID != caller.UserID {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (s *ProductService) encrypt(ctx context.Context, ownerID int64, plaintext string) (string, error) {
	key, err := s.keys.GetOrCreateKey(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("error loading key: %w", err)
	}
	defer common.WipeByteArray(key)

	blob, err := s.cipher.Encrypt(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("error encrypting description: %w", err)
	}
	return blob, nil
}

func (s *ProductService) decrypt(ctx context.Context, p *models.Product) (string, error) {
	key, err := s.keys.GetOrCreateKey(ctx, p.CreatedByID)
	if err != nil {
		return "", fmt.Errorf("error loading key: %w", err)
	}
	defer common.WipeByteArray(key)

	plain, err := s.cipher.Decrypt(p.EncryptedDescription, key)
	if err != nil {
		var decErr *cryptox.DecodeError
		if errors.As(err, &decErr) {
			s.logger.Warn(ctx, "product description could not be decrypted", "product_id", p.ID, "reason", decErr.Reason)
		}
		return "", err
	}
	return plain, nil
}

func toView(p *models.Product, description string) *ProductView {
	return &ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   description,
		PriceCents:    p.PriceCents,
		StockQuantity: p.StockQuantity,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		CreatedByID:   p.CreatedByID,
		CreatedByName: p.CreatedByName,
	}
}
