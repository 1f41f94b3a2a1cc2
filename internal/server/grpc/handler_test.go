package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRegister_OK(t *testing.T) {
	svc := &fakeAuth{result: &services.AuthResult{PrincipalID: "42", Email: "a@b.com", AccessToken: "a", RefreshToken: "r"}}
	s := newTestServer(t, svc)

	resp, err := s.Register(context.Background(), &RegisterRequest{Email: "a@b.com", Password: "secret1", FullName: "A B"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if resp.UserID != "42" || resp.Token != "a" || resp.RefreshToken != "r" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Roles == nil {
		t.Fatal("roles must encode as [] not null")
	}
	if svc.client.IP != common.UnknownClientValue {
		t.Fatalf("want Unknown ip without peer or metadata, got %q", svc.client.IP)
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	cases := []struct {
		name string
		req  *RegisterRequest
	}{
		{"missing email", &RegisterRequest{Password: "secret1"}},
		{"bad email", &RegisterRequest{Email: "not-an-email", Password: "secret1"}},
		{"short password", &RegisterRequest{Email: "a@b.com", Password: "123"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAuth{}
			s := newTestServer(t, svc)
			_, err := s.Register(context.Background(), tc.req)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("want InvalidArgument, got %v", err)
			}
			if svc.lastEmail != "" {
				t.Fatal("service must not be called for invalid input")
			}
		})
	}
}

func TestLogin_InvalidCredentialsMessage(t *testing.T) {
	svc := &fakeAuth{err: fmt.Errorf("%w: %s", common.ErrUnauthenticated, common.InvalidCredentialsMessage)}
	s := newTestServer(t, svc)

	_, err := s.Login(context.Background(), &LoginRequest{Email: "a@b.com", Password: "x"})
	st := status.Convert(err)
	if st.Code() != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", st.Code())
	}
	if st.Message() != common.InvalidCredentialsMessage {
		t.Fatalf("unexpected message %q", st.Message())
	}
}

func TestRefresh_RequiresToken(t *testing.T) {
	s := newTestServer(t, &fakeAuth{})
	_, err := s.Refresh(context.Background(), &RefreshRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestRefresh_PassesToken(t *testing.T) {
	svc := &fakeAuth{result: &services.AuthResult{PrincipalID: "p"}}
	s := newTestServer(t, svc)
	if _, err := s.Refresh(context.Background(), &RefreshRequest{RefreshToken: "tok"}); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if svc.lastToken != "tok" {
		t.Fatalf("token not passed through: %q", svc.lastToken)
	}
}

func TestLogoutAndMe_NeedClaims(t *testing.T) {
	s := newTestServer(t, &fakeAuth{})

	if _, err := s.Logout(context.Background(), &LogoutRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("Logout: want Unauthenticated, got %v", err)
	}
	if _, err := s.Me(context.Background(), &MeRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("Me: want Unauthenticated, got %v", err)
	}
}

func TestLogout_UsesSubject(t *testing.T) {
	svc := &fakeAuth{}
	s := newTestServer(t, svc)
	ctx := auth.ContextWithClaims(context.Background(), claimsFor("p-9"))

	resp, err := s.Logout(ctx, &LogoutRequest{})
	if err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if resp.Message != logoutMessage || svc.lastID != "p-9" {
		t.Fatalf("unexpected logout: %+v, id %q", resp, svc.lastID)
	}
}

func TestToStatus(t *testing.T) {
	s := newTestServer(t, &fakeAuth{})

	cases := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("%w: bad", common.ErrValidation), codes.InvalidArgument},
		{fmt.Errorf("%w: taken", common.ErrConflict), codes.AlreadyExists},
		{common.ErrUnauthenticated, codes.Unauthenticated},
		{common.ErrForbidden, codes.PermissionDenied},
		{common.ErrNotFound, codes.NotFound},
		{common.Transient(errors.New("conn reset")), codes.Unavailable},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			got := status.Convert(s.toStatus(context.Background(), "test", tc.err))
			if got.Code() != tc.code {
				t.Fatalf("%v: want %v, got %v", tc.err, tc.code, got.Code())
			}
		})
	}

	for op, want := range map[string]string{
		"refresh": RefreshRejectedMessage,
		"login":   common.InvalidCredentialsMessage,
		"logout":  "unauthorized",
	} {
		err := fmt.Errorf("%w: %w", common.ErrUnauthenticated, errors.New("refresh token revoked"))
		if got := status.Convert(s.toStatus(context.Background(), op, err)).Message(); got != want {
			t.Fatalf("%s: message %q, want %q", op, got, want)
		}
	}

	internal := status.Convert(s.toStatus(context.Background(), "test", errors.New("pq: secret detail")))
	if internal.Message() != common.ErrorInternal.Error() {
		t.Fatalf("internal details leaked: %q", internal.Message())
	}
}
