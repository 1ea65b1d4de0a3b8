package grpc

import (
	"context"

	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CatalogServiceServer is the server API for catalogkeeper.CatalogService.
type CatalogServiceServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CatalogServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CatalogServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: rpcapi.FullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CatalogServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// CatalogServiceDesc describes catalogkeeper.CatalogService for
// grpc.ServiceRegistrar.
var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: rpcapi.ServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(rpcapi.MethodPing, CatalogServiceServer.Ping),
		unaryHandler(rpcapi.MethodRegister, CatalogServiceServer.Register),
		unaryHandler(rpcapi.MethodLogin, CatalogServiceServer.Login),
		unaryHandler(rpcapi.MethodRefreshToken, CatalogServiceServer.RefreshToken),
		unaryHandler(rpcapi.MethodLogout, CatalogServiceServer.Logout),
		unaryHandler(rpcapi.MethodListProducts, CatalogServiceServer.ListProducts),
		unaryHandler(rpcapi.MethodGetProduct, CatalogServiceServer.GetProduct),
		unaryHandler(rpcapi.MethodCreateProduct, CatalogServiceServer.CreateProduct),
		unaryHandler(rpcapi.MethodUpdateProduct, CatalogServiceServer.UpdateProduct),
		unaryHandler(rpcapi.MethodDeleteProduct, CatalogServiceServer.DeleteProduct),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalogkeeper/catalog.proto",
}

func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}
