package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// ---- fakes ----

type fakeAuth struct {
	mu sync.Mutex

	result    *services.AuthResult
	user      *services.UserResult
	users     []services.UserResult
	err       error
	lastEmail string
	lastToken string
	lastID    string
	client    models.ClientInfo
}

func (f *fakeAuth) remember(email, token, id string, c models.ClientInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEmail, f.lastToken, f.lastID, f.client = email, token, id, c
}

func (f *fakeAuth) Register(_ context.Context, email, _, _ string, c models.ClientInfo) (*services.AuthResult, error) {
	f.remember(email, "", "", c)
	return f.result, f.err
}

func (f *fakeAuth) Login(_ context.Context, email, _ string, c models.ClientInfo) (*services.AuthResult, error) {
	f.remember(email, "", "", c)
	return f.result, f.err
}

func (f *fakeAuth) Refresh(_ context.Context, token string, c models.ClientInfo) (*services.AuthResult, error) {
	f.remember("", token, "", c)
	return f.result, f.err
}

func (f *fakeAuth) Logout(_ context.Context, id string, c models.ClientInfo) error {
	f.remember("", "", id, c)
	return f.err
}

func (f *fakeAuth) GetUser(_ context.Context, id string) (*services.UserResult, error) {
	f.remember("", "", id, models.ClientInfo{})
	return f.user, f.err
}

func (f *fakeAuth) ListUsers(context.Context) ([]services.UserResult, error) {
	return f.users, f.err
}

// fakeTokens accepts the tokens it was given and reports "expired" as
// expired.
type fakeTokens map[string]*auth.Claims

func (f fakeTokens) Parse(token string) (*auth.Claims, error) {
	if token == "expired" {
		return nil, auth.ErrTokenExpired
	}
	c, ok := f[token]
	if !ok {
		return nil, common.ErrUnauthenticated
	}
	return c, nil
}

func (fakeTokens) TTL() time.Duration { return time.Hour }

func claimsFor(subject string, roles ...string) *auth.Claims {
	return &auth.Claims{Roles: roles, RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
}

var defaultTokens = fakeTokens{
	"user-token":  claimsFor("p-user", common.RoleUser),
	"admin-token": claimsFor("p-admin", common.RoleAdmin, common.RoleUser),
}

func newTestServer(t *testing.T, svc AuthService) *GRPCServer {
	t.Helper()
	s, err := NewGRPCServer("127.0.0.1:0", logging.Nop{}, svc, defaultTokens, metrics.New())
	if err != nil {
		t.Fatalf("NewGRPCServer error: %v", err)
	}
	return s
}

// serveBufconn runs s on an in-memory listener and returns a connection
// that speaks the json codec.
func serveBufconn(t *testing.T, s *GRPCServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient error: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	})
	return conn
}

// ---- tests ----

func TestNewGRPCServer_RequiresCollaborators(t *testing.T) {
	if _, err := NewGRPCServer(":0", nil, nil, defaultTokens, nil); err == nil {
		t.Fatal("expected error without auth service")
	}
	if _, err := NewGRPCServer(":0", nil, &fakeAuth{}, nil, nil); err == nil {
		t.Fatal("expected error without token parser")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv, err := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &fakeAuth{}, defaultTokens, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer error (constructor should not fail here): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestBufconn_LoginRoundTrip(t *testing.T) {
	svc := &fakeAuth{result: &services.AuthResult{
		PrincipalID: "p-1", Email: "a@b.com", AccessToken: "at", RefreshToken: "rt", Roles: []string{"User"},
	}}
	conn := serveBufconn(t, newTestServer(t, svc))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-forwarded-for", "203.0.113.9, 10.0.0.1")
	resp := &AuthResponse{}
	err := conn.Invoke(ctx, MethodLogin, &LoginRequest{Email: "a@b.com", Password: "pw"}, resp)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if resp.Token != "at" || resp.RefreshToken != "rt" || resp.UserID != "p-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 3600 {
		t.Fatalf("unexpected token metadata: %+v", resp)
	}
	if svc.client.IP != "203.0.113.9" {
		t.Fatalf("client ip not taken from x-forwarded-for: %q", svc.client.IP)
	}
	if svc.client.UserAgent == common.UnknownClientValue {
		t.Fatal("grpc user agent was not propagated")
	}
}

func TestBufconn_ProtectedMethods(t *testing.T) {
	svc := &fakeAuth{
		user:  &services.UserResult{ID: "p-user", Email: "u@b.com", Roles: []string{"User"}},
		users: []services.UserResult{{ID: "p-user", Email: "u@b.com"}},
	}
	conn := serveBufconn(t, newTestServer(t, svc))

	withToken := func(token string) context.Context {
		return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
	}

	if err := conn.Invoke(context.Background(), MethodMe, &MeRequest{}, &UserResponse{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("Me without token: want Unauthenticated, got %v", err)
	}

	me := &UserResponse{}
	if err := conn.Invoke(withToken("user-token"), MethodMe, &MeRequest{}, me); err != nil {
		t.Fatalf("Me error: %v", err)
	}
	if me.ID != "p-user" || svc.lastID != "p-user" {
		t.Fatalf("Me returned %+v for subject %q", me, svc.lastID)
	}

	err := conn.Invoke(withToken("user-token"), MethodListUsers, &ListUsersRequest{}, &ListUsersResponse{})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("ListUsers as User: want PermissionDenied, got %v", err)
	}

	list := &ListUsersResponse{}
	if err := conn.Invoke(withToken("admin-token"), MethodListUsers, &ListUsersRequest{}, list); err != nil {
		t.Fatalf("ListUsers as Admin error: %v", err)
	}
	if len(list.Users) != 1 || list.Users[0].Roles == nil {
		t.Fatalf("unexpected users: %+v", list.Users)
	}
}

func TestBufconn_RecordsRPCMetrics(t *testing.T) {
	m := metrics.New()
	s, err := NewGRPCServer(":0", logging.Nop{}, &fakeAuth{err: common.ErrUnauthenticated}, defaultTokens, m)
	if err != nil {
		t.Fatal(err)
	}
	conn := serveBufconn(t, s)

	_ = conn.Invoke(context.Background(), MethodRefresh, &RefreshRequest{RefreshToken: "x"}, &AuthResponse{})

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "authkeeper_grpc_request_duration_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["method"] == MethodRefresh && labels["code"] == codes.Unauthenticated.String() &&
				metric.GetHistogram().GetSampleCount() == 1 {
				return
			}
		}
	}
	t.Fatal("no latency sample for Refresh/Unauthenticated")
}
