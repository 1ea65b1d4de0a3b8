package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/auth"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/services"
)

const testSecret = "k"

type fakeUsers struct {
	tokens *services.TokenPair
	err    error

	gotRegister services.RegisterInput
	gotEmail    string
	gotPassword string
	gotRefresh  string
}

func (f *fakeUsers) Register(_ context.Context, in services.RegisterInput) (*services.TokenPair, error) {
	f.gotRegister = in
	return f.tokens, f.err
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.TokenPair, error) {
	f.gotEmail, f.gotPassword = email, password
	return f.tokens, f.err
}

func (f *fakeUsers) RefreshToken(_ context.Context, refreshToken string) (*services.TokenPair, error) {
	f.gotRefresh = refreshToken
	return f.tokens, f.err
}

func (f *fakeUsers) Logout(_ context.Context, refreshToken string) error {
	f.gotRefresh = refreshToken
	return f.err
}

type fakeProducts struct {
	views []*services.ProductView
	view  *services.ProductView
	err   error

	gotCaller auth.Identity
	gotID     int64
	gotInput  services.ProductInput
}

func (f *fakeProducts) List(_ context.Context, caller auth.Identity) ([]*services.ProductView, error) {
	f.gotCaller = caller
	return f.views, f.err
}

func (f *fakeProducts) Get(_ context.Context, caller auth.Identity, id int64) (*services.ProductView, error) {
	f.gotCaller, f.gotID = caller, id
	return f.view, f.err
}

func (f *fakeProducts) Create(_ context.Context, caller auth.Identity, in services.ProductInput) (*services.ProductView, error) {
	f.gotCaller, f.gotInput = caller, in
	return f.view, f.err
}

func (f *fakeProducts) Update(_ context.Context, caller auth.Identity, id int64, in services.ProductInput) (*services.ProductView, error) {
	f.gotCaller, f.gotID, f.gotInput = caller, id, in
	return f.view, f.err
}

func (f *fakeProducts) Delete(_ context.Context, caller auth.Identity, id int64) error {
	f.gotCaller, f.gotID = caller, id
	return f.err
}

func newServer(u *fakeUsers, p *fakeProducts) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Discard(), u, p, testSecret)
}

func sampleView() *services.ProductView {
	updated := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	return &services.ProductView{
		ID:            7,
		Name:          "Blue Widget",
		Description:   "qty sensitive",
		PriceCents:    1999,
		StockQuantity: 4,
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     &updated,
		CreatedByID:   42,
		CreatedByName: "Ada Lovelace",
	}
}
