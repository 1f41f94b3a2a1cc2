package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newIssuer(t *testing.T, c clock.Clock) *Issuer {
	t.Helper()
	i, err := NewIssuer(IssuerConfig{
		Secret:   testSecret,
		Issuer:   "authkeeper",
		Audience: "authkeeper-clients",
		TTL:      time.Hour,
	}, c)
	require.NoError(t, err)
	return i
}

func TestNewIssuer_RejectsMissingMaterial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  IssuerConfig
	}{
		{"no secret", IssuerConfig{Issuer: "i", Audience: "a"}},
		{"short secret", IssuerConfig{Secret: []byte("short"), Issuer: "i", Audience: "a"}},
		{"no issuer", IssuerConfig{Secret: testSecret, Audience: "a"}},
		{"blank audience", IssuerConfig{Secret: testSecret, Issuer: "i", Audience: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIssuer(tt.cfg, nil)
			assert.ErrorIs(t, err, common.ErrConfiguration)
		})
	}
}

func TestNewIssuer_DefaultTTL(t *testing.T) {
	t.Parallel()

	i, err := NewIssuer(IssuerConfig{Secret: testSecret, Issuer: "i", Audience: "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTokenTTL, i.TTL())
}

func TestIssue_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	i := newIssuer(t, clock.Fixed(now))

	tok, err := i.Issue("p-1", "alice@example.com", []string{"User", "Admin"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tok, "."))

	claims, err := i.Parse(tok)
	require.NoError(t, err)

	assert.Equal(t, "p-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, []string{"User", "Admin"}, claims.Roles)
	assert.Equal(t, "authkeeper", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"authkeeper-clients"}, claims.Audience)
	assert.Equal(t, now, claims.IssuedAt.Time.UTC())
	assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt.Time.UTC())
	assert.True(t, claims.HasRole("Admin"))
	assert.False(t, claims.HasRole("admin"))

	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err, "jti must be a uuid")
}

func TestIssue_UniqueJTI(t *testing.T) {
	t.Parallel()

	i := newIssuer(t, clock.Fixed(time.Now()))
	a, err := i.Issue("p-1", "a@b.c", nil)
	require.NoError(t, err)
	b, err := i.Issue("p-1", "a@b.c", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "same claims at the same instant must still differ by jti")
}

func TestIssue_RequiresPrincipal(t *testing.T) {
	t.Parallel()

	_, err := newIssuer(t, nil).Issue(" ", "a@b.c", nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	c := clock.NewManual(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	i := newIssuer(t, c)

	tok, err := i.Issue("p-1", "a@b.c", nil)
	require.NoError(t, err)

	c.Advance(59 * time.Minute)
	_, err = i.Parse(tok)
	require.NoError(t, err)

	c.Advance(2 * time.Minute)
	_, err = i.Parse(tok)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParse_WrongAudienceIssuerOrSecret(t *testing.T) {
	t.Parallel()

	now := clock.Fixed(time.Now())
	good := newIssuer(t, now)
	tok, err := good.Issue("p-1", "a@b.c", nil)
	require.NoError(t, err)

	others := []IssuerConfig{
		{Secret: testSecret, Issuer: "authkeeper", Audience: "someone-else"},
		{Secret: testSecret, Issuer: "impostor", Audience: "authkeeper-clients"},
		{Secret: []byte("ffffffffffffffffffffffffffffffff"), Issuer: "authkeeper", Audience: "authkeeper-clients"},
	}
	for _, cfg := range others {
		other, err := NewIssuer(cfg, now)
		require.NoError(t, err)
		_, err = other.Parse(tok)
		assert.ErrorIs(t, err, common.ErrUnauthenticated)
	}
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	i := newIssuer(t, nil)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "p-1",
		Issuer:    "authkeeper",
		Audience:  jwt.ClaimStrings{"authkeeper-clients"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)

	for _, tok := range []string{none, hs512, "", "not-a-jwt"} {
		_, err := i.Parse(tok)
		assert.ErrorIs(t, err, common.ErrUnauthenticated, tok)
	}
}

func TestClaimsContext(t *testing.T) {
	t.Parallel()

	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	c := &Claims{Email: "a@b.c"}
	got, ok := ClaimsFromContext(ContextWithClaims(context.Background(), c))
	require.True(t, ok)
	assert.Same(t, c, got)
}
