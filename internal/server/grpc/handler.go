package grpc

import (
	"context"

	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/auth"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, rpcapi.PingReply{Status: "OK"})
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in rpcapi.Registration
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	s.logger.Info(ctx, "Registration request")

	tokens, err := s.users.Register(ctx, services.RegisterInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	})
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	s.logger.Info(ctx, "Registered", "user_id", tokens.UserID)
	return s.reply(ctx, toTokens(tokens))
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in rpcapi.Credentials
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	tokens, err := s.users.Login(ctx, in.Email, in.Password)
	if err != nil {
		return nil, s.fail(ctx, "login", err)
	}

	return s.reply(ctx, toTokens(tokens))
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in rpcapi.RefreshRequest
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	tokens, err := s.users.RefreshToken(ctx, in.RefreshToken)
	if err != nil {
		return nil, s.fail(ctx, "refresh token", err)
	}

	return s.reply(ctx, toTokens(tokens))
}

func (s *GRPCServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in rpcapi.RefreshRequest
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	if err := s.users.Logout(ctx, in.RefreshToken); err != nil {
		return nil, s.fail(ctx, "logout", err)
	}

	return s.reply(ctx, rpcapi.Empty{})
}

func (s *GRPCServer) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	views, err := s.products.List(ctx, caller)
	if err != nil {
		return nil, s.fail(ctx, "list products", err)
	}

	out := rpcapi.ProductList{Products: make([]rpcapi.Product, 0, len(views))}
	for _, v := range views {
		out.Products = append(out.Products, toProduct(v))
	}
	return s.reply(ctx, out)
}

func (s *GRPCServer) GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in rpcapi.IDRequest
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	view, err := s.products.Get(ctx, caller, in.ID)
	if err != nil {
		return nil, s.fail(ctx, "get product", err)
	}
	return s.reply(ctx, toProduct(view))
}

func (s *GRPCServer) CreateProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in rpcapi.ProductInput
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	view, err := s.products.Create(ctx, caller, toServiceInput(in))
	if err != nil {
		return nil, s.fail(ctx, "create product", err)
	}
	return s.reply(ctx, toProduct(view))
}

func (s *GRPCServer) UpdateProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in rpcapi.ProductInput
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	view, err := s.products.Update(ctx, caller, in.ID, toServiceInput(in))
	if err != nil {
		return nil, s.fail(ctx, "update product", err)
	}
	return s.reply(ctx, toProduct(view))
}

func (s *GRPCServer) DeleteProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var in rpcapi.IDRequest
	if err := rpcapi.Decode(req, &in); err != nil {
		return nil, malformed()
	}

	if err := s.products.Delete(ctx, caller, in.ID); err != nil {
		return nil, s.fail(ctx, "delete product", err)
	}
	return s.reply(ctx, rpcapi.Empty{})
}

func (s *GRPCServer) reply(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := rpcapi.Encode(v)
	if err != nil {
		s.logger.Error(ctx, "response encoding failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// fail converts err to a status and logs the cases a client cannot act on.
func (s *GRPCServer) fail(ctx context.Context, op string, err error) error {
	st := toStatus(err)
	switch status.Code(st) {
	case codes.Internal:
		s.logger.Error(ctx, op+" failed", "error", err)
	case codes.DataLoss:
		s.logger.Warn(ctx, op+" failed", "error", err)
	}
	return st
}

func callerFrom(ctx context.Context) (auth.Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return auth.Identity{}, status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func malformed() error {
	return status.Error(codes.InvalidArgument, "malformed request")
}

func toTokens(p *services.TokenPair) rpcapi.Tokens {
	return rpcapi.Tokens{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		UserID:       p.UserID,
		Role:         p.Role,
		DisplayName:  p.DisplayName,
	}
}

func toServiceInput(in rpcapi.ProductInput) services.ProductInput {
	return services.ProductInput{
		Name:          in.Name,
		Description:   in.Description,
		PriceCents:    in.PriceCents,
		StockQuantity: in.StockQuantity,
	}
}

func toProduct(v *services.ProductView) rpcapi.Product {
	return rpcapi.Product{
		ID:            v.ID,
		Name:          v.Name,
		Description:   v.Description,
		PriceCents:    v.PriceCents,
		StockQuantity: v.StockQuantity,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		CreatedByID:   v.CreatedByID,
		CreatedByName: v.CreatedByName,
	}
}
