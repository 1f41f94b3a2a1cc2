package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/audit"
	"github.com/dmitrijs2005/authkeeper/internal/server/identity"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"
)

// AccessTokenIssuer mints signed access tokens.
type AccessTokenIssuer interface {
	Issue(principalID, email string, roles []string) (string, error)
}

// AuthResult is returned by every flow that hands out a token pair.
type AuthResult struct {
	PrincipalID  string
	Email        string
	FullName     string
	AccessToken  string
	RefreshToken string
	Roles        []string
}

// UserResult is the read-only projection of a principal.
type UserResult struct {
	ID       string
	Email    string
	FullName string
	Roles    []string
}

// AuthDeps lists the collaborators of AuthService. Metrics and Logger are
// optional.
type AuthDeps struct {
	Identity   identity.Provider
	Issuer     AccessTokenIssuer
	Sessions   sessions.Store
	Audit      audit.Recorder
	Metrics    *metrics.Metrics
	Logger     logging.Logger
	RefreshTTL time.Duration
}

type AuthService struct {
	identity   identity.Provider
	issuer     AccessTokenIssuer
	sessions   sessions.Store
	audit      audit.Recorder
	metrics    *metrics.Metrics
	logger     logging.Logger
	refreshTTL time.Duration

	generateToken func() (string, error)
}

func NewAuthService(d AuthDeps) (*AuthService, error) {
	switch {
	case d.Identity == nil:
		return nil, fmt.Errorf("%w: identity provider is required", common.ErrConfiguration)
	case d.Issuer == nil:
		return nil, fmt.Errorf("%w: access token issuer is required", common.ErrConfiguration)
	case d.Sessions == nil:
		return nil, fmt.Errorf("%w: session store is required", common.ErrConfiguration)
	case d.Audit == nil:
		return nil, fmt.Errorf("%w: audit recorder is required", common.ErrConfiguration)
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	return &AuthService{
		identity:      d.Identity,
		issuer:        d.Issuer,
		sessions:      d.Sessions,
		audit:         d.Audit,
		metrics:       d.Metrics,
		logger:        logger.With("module", "auth"),
		refreshTTL:    d.RefreshTTL,
		generateToken: sessions.GenerateToken,
	}, nil
}

var errInvalidCredentials = fmt.Errorf("%w: %s", common.ErrUnauthenticated, common.InvalidCredentialsMessage)

func (s *AuthService) Register(ctx context.Context, email, password, fullName string, client models.ClientInfo) (res *AuthResult, err error) {
	defer func() { s.observe("register", err) }()

	email = identity.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}

	_, err = s.identity.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, identity.ErrDuplicate
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	p, err := s.identity.Create(ctx, email, password, strings.TrimSpace(fullName))
	if err != nil {
		return nil, err
	}

	if err = s.grantDefaultRole(ctx, p.ID); err != nil {
		return nil, err
	}

	res, err = s.issue(ctx, p, "")
	if err != nil {
		s.logger.Error(ctx, "token issuance after registration failed", "principal_id", p.ID, "error", err)
		return nil, err
	}

	s.record(ctx, &p.ID, p.Email, client, models.ActionLoginSuccess)
	s.logger.Info(ctx, "principal registered", "principal_id", p.ID)
	return res, nil
}

func (s *AuthService) grantDefaultRole(ctx context.Context, principalID string) error {
	err := s.identity.AssignRole(ctx, principalID, common.RoleUser)
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if err := s.identity.EnsureRole(ctx, common.RoleUser); err != nil {
		return err
	}
	return s.identity.AssignRole(ctx, principalID, common.RoleUser)
}

func (s *AuthService) Login(ctx context.Context, email, password string, client models.ClientInfo) (res *AuthResult, err error) {
	defer func() { s.observe("login", err) }()

	email = identity.NormalizeEmail(email)

	p, err := s.identity.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	// a nil principal still costs one bcrypt comparison
	if !s.identity.VerifyPassword(p, password) {
		s.record(ctx, nil, email, client, models.ActionLoginFailed)
		return nil, errInvalidCredentials
	}

	res, err = s.issue(ctx, p, "")
	if err != nil {
		return nil, err
	}

	s.record(ctx, &p.ID, p.Email, client, models.ActionLoginSuccess)
	return res, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client models.ClientInfo) (res *AuthResult, err error) {
	defer func() { s.observe("refresh", err) }()

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", common.ErrUnauthenticated)
	}

	principalID, err := s.sessions.Validate(ctx, refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}

	p, err := s.identity.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: principal no longer exists", common.ErrUnauthenticated)
		}
		return nil, err
	}

	res, err = s.issue(ctx, p, refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}

	s.record(ctx, &p.ID, p.Email, client, models.ActionRefresh)
	return res, nil
}

func (s *AuthService) Logout(ctx context.Context, principalID string, client models.ClientInfo) (err error) {
	defer func() { s.observe("logout", err) }()

	p, err := s.identity.FindByID(ctx, principalID)
	if err != nil {
		return err
	}

	if err = s.sessions.RevokeAll(ctx, p.ID); err != nil {
		return err
	}

	s.record(ctx, &p.ID, p.Email, client, models.ActionLogout)
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, principalID string) (*UserResult, error) {
	p, err := s.identity.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	roles, err := s.identity.RolesOf(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &UserResult{ID: p.ID, Email: p.Email, FullName: p.FullName, Roles: roles}, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]UserResult, error) {
	all, err := s.identity.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserResult, 0, len(all))
	for _, p := range all {
		roles := p.Roles
		if roles == nil {
			roles = []string{}
		}
		out = append(out, UserResult{ID: p.ID, Email: p.Email, FullName: p.FullName, Roles: roles})
	}
	return out, nil
}

// issue mints an access token and a refresh token for p. With an empty
// presented token the refresh token is issued fresh, otherwise it replaces
// presented.
func (s *AuthService) issue(ctx context.Context, p *models.Principal, presented string) (*AuthResult, error) {
	roles, err := s.identity.RolesOf(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.Issue(p.ID, p.Email, roles)
	if err != nil {
		return nil, err
	}

	refresh, err := s.generateToken()
	if err != nil {
		return nil, err
	}

	if presented == "" {
		err = s.sessions.Issue(ctx, p.ID, refresh, s.refreshTTL)
	} else {
		err = s.sessions.Rotate(ctx, p.ID, presented, refresh, s.refreshTTL)
	}
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		PrincipalID:  p.ID,
		Email:        p.Email,
		FullName:     p.FullName,
		AccessToken:  access,
		RefreshToken: refresh,
		Roles:        roles,
	}, nil
}

// record never fails the caller. Lost entries are logged and counted.
func (s *AuthService) record(ctx context.Context, principalID *string, email string, client models.ClientInfo, action models.AuditAction) {
	err := s.audit.Record(ctx, principalID, email, client, action)
	if err == nil {
		return
	}
	pid := ""
	if principalID != nil {
		pid = *principalID
	}
	s.logger.Error(ctx, "audit entry lost", "action", string(action), "principal_id", pid, "email", email, "error", err)
	s.metrics.AuditFailure(string(action))
}

func (s *AuthService) observe(operation string, err error) {
	s.metrics.AuthOperation(operation, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrConflict),
		errors.Is(err, common.ErrUnauthenticated),
		errors.Is(err, common.ErrNotFound):
		return metrics.OutcomeFailure
	default:
		return metrics.OutcomeError
	}
}

// tokenError turns a session verdict into an authentication failure and
// leaves store and context errors as they are.
func tokenError(err error) error {
	switch {
	case errors.Is(err, sessions.ErrTokenNotFound),
		errors.Is(err, sessions.ErrTokenRevoked),
		errors.Is(err, sessions.ErrTokenExpired):
		return fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	default:
		return err
	}
}
