package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"google.golang.org/grpc"
)

// AuthService is the part of services.AuthService the transport needs.
type AuthService interface {
	Register(ctx context.Context, email, password, fullName string, client models.ClientInfo) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string, client models.ClientInfo) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, client models.ClientInfo) (*services.AuthResult, error)
	Logout(ctx context.Context, principalID string, client models.ClientInfo) error
	GetUser(ctx context.Context, principalID string) (*services.UserResult, error)
	ListUsers(ctx context.Context) ([]services.UserResult, error)
}

// TokenParser verifies access tokens presented in request metadata.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
	TTL() time.Duration
}

type GRPCServer struct {
	address string
	auth    AuthService
	tokens  TokenParser
	metrics *metrics.Metrics
	logger  logging.Logger
}

var _ AuthServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, svc AuthService, tokens TokenParser, m *metrics.Metrics) (*GRPCServer, error) {
	if svc == nil || tokens == nil {
		return nil, fmt.Errorf("%w: grpc server needs an auth service and a token parser", common.ErrConfiguration)
	}
	if l == nil {
		l = logging.Nop{}
	}
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		auth:    svc,
		tokens:  tokens,
		metrics: m,
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor),
	)
	RegisterAuthServiceServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
