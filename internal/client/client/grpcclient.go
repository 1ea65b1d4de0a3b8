package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onTokens     func(rpcapi.Tokens)

	// serializes refreshes so a rotated token is used only once
	refreshMu sync.Mutex
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if rpcapi.PublicMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	accessToken, refreshToken := s.tokens()

	err := invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) || refreshToken == "" {
		return err
	}

	accessToken, err = s.refreshOnce(ctx, cc, invoker, refreshToken)
	if err != nil {
		return err
	}

	// tokens refreshed, retry with the new access token
	return invoker(withAccessToken(ctx, accessToken), method, req, reply, cc, opts...)
}

// refreshOnce exchanges used for a new token pair unless another call
// already rotated it, and returns the access token to retry with.
func (s *GRPCClient) refreshOnce(ctx context.Context, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, used string) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	accessToken, refreshToken := s.tokens()
	if refreshToken != used {
		return accessToken, nil
	}

	in, err := rpcapi.Encode(rpcapi.RefreshRequest{RefreshToken: used})
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := invoker(ctx, rpcapi.FullMethod(rpcapi.MethodRefreshToken), in, out, cc); err != nil {
		return "", err
	}

	var t rpcapi.Tokens
	if err := rpcapi.Decode(out, &t); err != nil {
		return "", err
	}
	s.setTokens(t)
	return t.AccessToken, nil
}

// NewCatalogClient connects lazily to endpointURL. Every call gets timeout
// as its deadline when timeout is positive.
func NewCatalogClient(endpointURL string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	opts = append(opts, grpc.WithUnaryInterceptor(s.accessTokenInterceptor))

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// OnTokens registers fn to be called whenever the client receives a new
// token pair, including silent refreshes.
func (s *GRPCClient) OnTokens(fn func(rpcapi.Tokens)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokens = fn
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(t rpcapi.Tokens) {
	s.mu.Lock()
	s.accessToken = t.AccessToken
	s.refreshToken = t.RefreshToken
	fn := s.onTokens
	s.mu.Unlock()

	if fn != nil {
		fn(t)
	}
}

func (s *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := rpcapi.Encode(in)
	if err != nil {
		return err
	}

	resp := new(structpb.Struct)
	if err := s.conn.Invoke(ctx, rpcapi.FullMethod(method), req, resp); err != nil {
		return s.mapError(err)
	}

	if out == nil {
		return nil
	}
	return rpcapi.Decode(resp, out)
}

func (s *GRPCClient) signIn(ctx context.Context, method string, in any) (*rpcapi.Tokens, error) {
	var t rpcapi.Tokens
	if err := s.invoke(ctx, method, in, &t); err != nil {
		return nil, err
	}
	s.setTokens(t)
	return &t, nil
}

func (s *GRPCClient) Register(ctx context.Context, in rpcapi.Registration) (*rpcapi.Tokens, error) {
	return s.signIn(ctx, rpcapi.MethodRegister, in)
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) (*rpcapi.Tokens, error) {
	return s.signIn(ctx, rpcapi.MethodLogin, rpcapi.Credentials{Email: email, Password: password})
}

func (s *GRPCClient) Resume(ctx context.Context, refreshToken string) (*rpcapi.Tokens, error) {
	return s.signIn(ctx, rpcapi.MethodRefreshToken, rpcapi.RefreshRequest{RefreshToken: refreshToken})
}

// Logout revokes the refresh token on the server and forgets both tokens
// locally, even when the server call fails.
func (s *GRPCClient) Logout(ctx context.Context) error {
	_, refreshToken := s.tokens()

	s.mu.Lock()
	s.accessToken, s.refreshToken = "", ""
	s.mu.Unlock()

	if refreshToken == "" {
		return nil
	}
	return s.invoke(ctx, rpcapi.MethodLogout, rpcapi.RefreshRequest{RefreshToken: refreshToken}, nil)
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	var resp rpcapi.PingReply
	if err := s.invoke(ctx, rpcapi.MethodPing, rpcapi.Empty{}, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) ListProducts(ctx context.Context) ([]rpcapi.Product, error) {
	var out rpcapi.ProductList
	if err := s.invoke(ctx, rpcapi.MethodListProducts, rpcapi.Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (s *GRPCClient) GetProduct(ctx context.Context, id int64) (*rpcapi.Product, error) {
	var out rpcapi.Product
	if err := s.invoke(ctx, rpcapi.MethodGetProduct, rpcapi.IDRequest{ID: id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GRPCClient) CreateProduct(ctx context.Context, in rpcapi.ProductInput) (*rpcapi.Product, error) {
	var out rpcapi.Product
	if err := s.invoke(ctx, rpcapi.MethodCreateProduct, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GRPCClient) UpdateProduct(ctx context.Context, in rpcapi.ProductInput) (*rpcapi.Product, error) {
	var out rpcapi.Product
	if err := s.invoke(ctx, rpcapi.MethodUpdateProduct, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GRPCClient) DeleteProduct(ctx context.Context, id int64) error {
	return s.invoke(ctx, rpcapi.MethodDeleteProduct, rpcapi.IDRequest{ID: id}, nil)
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.DataLoss:
		return ErrUndisplayable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
