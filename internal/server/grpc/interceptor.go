package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// methods that need a valid access token, with the role they require
var protectedMethods = map[string]string{
	MethodLogout:    "",
	MethodMe:        "",
	MethodListUsers: common.RoleAdmin,
}

const bearerPrefix = "bearer "

// TokenExpiredMessage is the status message for an expired access token.
const TokenExpiredMessage = "token expired"

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	role, protected := protectedMethods[info.FullMethod]
	if !protected {
		return handler(ctx, req)
	}

	accessToken := accessTokenFromMetadata(ctx)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, TokenExpiredMessage)
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if role != "" && !claims.HasRole(role) {
		s.logger.Warn(ctx, "role check failed", "principal_id", claims.Subject, "method", info.FullMethod, "role", role)
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}

	return handler(auth.ContextWithClaims(ctx, claims), req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
	return resp, err
}

// accessTokenFromMetadata prefers "authorization: Bearer <t>" and falls
// back to the access_token key.
func accessTokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := firstValue(md, common.AuthorizationHeaderName); len(v) > len(bearerPrefix) &&
		strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	return strings.TrimSpace(firstValue(md, common.AccessTokenHeaderName))
}

// clientInfo reads the caller's address from x-forwarded-for, then from the
// transport peer. Missing values become "Unknown".
func clientInfo(ctx context.Context) models.ClientInfo {
	var ci models.ClientInfo

	md, _ := metadata.FromIncomingContext(ctx)
	if fwd := firstValue(md, common.ForwardedForHeaderName); fwd != "" {
		ci.IP = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ci.IP == "" {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			ci.IP = hostOnly(p.Addr.String())
		}
	}
	ci.UserAgent = firstValue(md, common.UserAgentHeaderName)

	return ci.Normalized()
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func firstValue(md metadata.MD, key string) string {
	if vs := md.Get(key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}
