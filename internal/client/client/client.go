package client

import (
	"context"

	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Register(ctx context.Context, in rpcapi.Registration) (*rpcapi.Tokens, error)
	Login(ctx context.Context, email, password string) (*rpcapi.Tokens, error)
	// Resume signs in with a refresh token saved by an earlier session.
	Resume(ctx context.Context, refreshToken string) (*rpcapi.Tokens, error)
	Logout(ctx context.Context) error
	ListProducts(ctx context.Context) ([]rpcapi.Product, error)
	GetProduct(ctx context.Context, id int64) (*rpcapi.Product, error)
	CreateProduct(ctx context.Context, in rpcapi.ProductInput) (*rpcapi.Product, error)
	UpdateProduct(ctx context.Context, in rpcapi.ProductInput) (*rpcapi.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}
