package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/client"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
	authgrpc "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

// AuthClient is the server surface the CLI needs. *client.GRPCClient
// satisfies it.
type AuthClient interface {
	Register(ctx context.Context, email, password, fullName string) (*authgrpc.AuthResponse, error)
	Login(ctx context.Context, email, password string) (*authgrpc.AuthResponse, error)
	Refresh(ctx context.Context) (*authgrpc.AuthResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*authgrpc.UserResponse, error)
	ListUsers(ctx context.Context) ([]authgrpc.UserResponse, error)
	Close() error
}

type App struct {
	config *config.Config
	client AuthClient
	reader *bufio.Reader
	out    io.Writer

	email string
	roles []string
}

func NewApp(c *config.Config) (*App, error) {
	cl, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return &App{config: c, client: cl, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

// Run blocks until the user exits or stdin is closed.
func (a *App) Run(ctx context.Context) {
	defer a.client.Close()
	runREPL(ctx, a, a.status, a.reader, a.out)
}

func (a *App) isLoggedIn() bool {
	return a.email != ""
}

func (a *App) status() string {
	if a.email == "" {
		return "anonymous"
	}
	return a.email
}

func (a *App) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config == nil || a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) signIn(r *authgrpc.AuthResponse) {
	a.email = r.Email
	a.roles = r.Roles
}

func (a *App) signOut() {
	a.email = ""
	a.roles = nil
}
