package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "authkeeper.v1.AuthService"

// Full method names, as seen by interceptors.
const (
	MethodRegister  = "/" + ServiceName + "/Register"
	MethodLogin     = "/" + ServiceName + "/Login"
	MethodRefresh   = "/" + ServiceName + "/Refresh"
	MethodLogout    = "/" + ServiceName + "/Logout"
	MethodMe        = "/" + ServiceName + "/Me"
	MethodListUsers = "/" + ServiceName + "/ListUsers"
)

// AuthServiceServer is the server API of authkeeper.v1.AuthService.
type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	Refresh(context.Context, *RefreshRequest) (*AuthResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	Me(context.Context, *MeRequest) (*UserResponse, error)
	ListUsers(context.Context, *ListUsersRequest) (*ListUsersResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", AuthServiceServer.Register),
		unary("Login", AuthServiceServer.Login),
		unary("Refresh", AuthServiceServer.Refresh),
		unary("Logout", AuthServiceServer.Logout),
		unary("Me", AuthServiceServer.Me),
		unary("ListUsers", AuthServiceServer.ListUsers),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterAuthServiceServer(r grpc.ServiceRegistrar, srv AuthServiceServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(AuthServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}
