package grpc

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const logoutMessage = "Logged out successfully"

func (s *GRPCServer) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.auth.Register(ctx, req.Email, req.Password, req.FullName, clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "register", err)
	}

	s.logger.Info(ctx, "Registered", "principal_id", res.PrincipalID)
	return s.authResponse(res), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.auth.Login(ctx, req.Email, req.Password, clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}
	return s.authResponse(res), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *RefreshRequest) (*AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.auth.Refresh(ctx, req.RefreshToken, clientInfo(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "refresh", err)
	}
	return s.authResponse(res), nil
}

func (s *GRPCServer) Logout(ctx context.Context, _ *LogoutRequest) (*LogoutResponse, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "user id not found in token")
	}

	if err := s.auth.Logout(ctx, claims.Subject, clientInfo(ctx)); err != nil {
		return nil, s.toStatus(ctx, "logout", err)
	}
	return &LogoutResponse{Message: logoutMessage}, nil
}

func (s *GRPCServer) Me(ctx context.Context, _ *MeRequest) (*UserResponse, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "user id not found in token")
	}

	u, err := s.auth.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, s.toStatus(ctx, "me", err)
	}
	resp := toUserResponse(*u)
	return &resp, nil
}

func (s *GRPCServer) ListUsers(ctx context.Context, _ *ListUsersRequest) (*ListUsersResponse, error) {
	all, err := s.auth.ListUsers(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "list_users", err)
	}
	out := &ListUsersResponse{Users: make([]UserResponse, 0, len(all))}
	for _, u := range all {
		out.Users = append(out.Users, toUserResponse(u))
	}
	return out, nil
}

func (s *GRPCServer) authResponse(res *services.AuthResult) *AuthResponse {
	roles := res.Roles
	if roles == nil {
		roles = []string{}
	}
	return &AuthResponse{
		UserID:       res.PrincipalID,
		Email:        res.Email,
		FullName:     res.FullName,
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.TTL().Seconds()),
		Roles:        roles,
	}
}
