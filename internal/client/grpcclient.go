// Package client is a small gRPC client for authkeeper.v1.AuthService. It
// keeps the current token pair and refreshes it once when the server reports
// an expired access token.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	authgrpc "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var ErrUnavailable = errors.New("server unavailable")

type GRPCClient struct {
	conn *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewGRPCClient connects to target. Extra options are appended after the
// defaults, so tests can swap the dialer or credentials.
func NewGRPCClient(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(authgrpc.CodecName)),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Tokens returns the current access and refresh tokens.
func (c *GRPCClient) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *GRPCClient) setTokens(r *authgrpc.AuthResponse) {
	c.mu.Lock()
	c.accessToken = r.Token
	c.refreshToken = r.RefreshToken
	c.mu.Unlock()
}

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthorizationHeaderName, "Bearer "+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if method == authgrpc.MethodRefresh {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, refresh := c.Tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil || refresh == "" {
		return err
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != authgrpc.TokenExpiredMessage {
		return err
	}

	if _, rerr := c.Refresh(ctx); rerr != nil {
		return err
	}

	access, _ = c.Tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

func (c *GRPCClient) Register(ctx context.Context, email, password, fullName string) (*authgrpc.AuthResponse, error) {
	resp := &authgrpc.AuthResponse{}
	req := &authgrpc.RegisterRequest{Email: email, Password: password, FullName: fullName}
	if err := c.conn.Invoke(ctx, authgrpc.MethodRegister, req, resp); err != nil {
		return nil, mapError(err)
	}
	c.setTokens(resp)
	return resp, nil
}

func (c *GRPCClient) Login(ctx context.Context, email, password string) (*authgrpc.AuthResponse, error) {
	resp := &authgrpc.AuthResponse{}
	req := &authgrpc.LoginRequest{Email: email, Password: password}
	if err := c.conn.Invoke(ctx, authgrpc.MethodLogin, req, resp); err != nil {
		return nil, mapError(err)
	}
	c.setTokens(resp)
	return resp, nil
}

// Refresh trades the stored refresh token for a new pair.
func (c *GRPCClient) Refresh(ctx context.Context) (*authgrpc.AuthResponse, error) {
	_, refresh := c.Tokens()
	if refresh == "" {
		return nil, fmt.Errorf("%w: not logged in", common.ErrUnauthenticated)
	}
	resp := &authgrpc.AuthResponse{}
	if err := c.conn.Invoke(ctx, authgrpc.MethodRefresh, &authgrpc.RefreshRequest{RefreshToken: refresh}, resp); err != nil {
		return nil, mapError(err)
	}
	c.setTokens(resp)
	return resp, nil
}

func (c *GRPCClient) Logout(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, authgrpc.MethodLogout, &authgrpc.LogoutRequest{}, &authgrpc.LogoutResponse{}); err != nil {
		return mapError(err)
	}
	c.mu.Lock()
	c.accessToken, c.refreshToken = "", ""
	c.mu.Unlock()
	return nil
}

func (c *GRPCClient) Me(ctx context.Context) (*authgrpc.UserResponse, error) {
	resp := &authgrpc.UserResponse{}
	if err := c.conn.Invoke(ctx, authgrpc.MethodMe, &authgrpc.MeRequest{}, resp); err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (c *GRPCClient) ListUsers(ctx context.Context) ([]authgrpc.UserResponse, error) {
	resp := &authgrpc.ListUsersResponse{}
	if err := c.conn.Invoke(ctx, authgrpc.MethodListUsers, &authgrpc.ListUsersRequest{}, resp); err != nil {
		return nil, mapError(err)
	}
	return resp.Users, nil
}

// mapError turns a status back into the sentinel errors of package common.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.InvalidArgument:
		sentinel = common.ErrValidation
	case codes.AlreadyExists:
		sentinel = common.ErrConflict
	case codes.Unauthenticated:
		sentinel = common.ErrUnauthenticated
	case codes.PermissionDenied:
		sentinel = common.ErrForbidden
	case codes.NotFound:
		sentinel = common.ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		sentinel = ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
