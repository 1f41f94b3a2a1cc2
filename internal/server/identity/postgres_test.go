package identity

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newPostgres(t *testing.T) (*PostgresProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p, err := NewPostgresProvider(db, repomanager.NewPostgresRepositoryManager(), bcrypt.MinCost)
	require.NoError(t, err)
	return p, mock
}

func TestPostgresProvider_CreateHashesAndNormalizes(t *testing.T) {
	p, mock := newPostgres(t)

	var stored []byte
	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WithArgs("alice@example.com", "Alice", hashCapture{&stored}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("u-1", time.Now()))

	u, err := p.Create(context.Background(), " Alice@Example.com", "pw-123", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword(stored, []byte("pw-123")))
	assert.True(t, p.VerifyPassword(u, "pw-123"))
	assert.False(t, p.VerifyPassword(u, "pw-124"))
}

func TestPostgresProvider_CreateDuplicate(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := p.Create(context.Background(), "a@b.c", "pw", "A")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPostgresProvider_StoreErrorsAreTransient(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email`).WithArgs("a@b.c").WillReturnError(errors.New("conn reset"))
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).WithArgs(missingID).WillReturnError(sql.ErrNoRows)

	_, err := p.FindByEmail(context.Background(), "A@B.C")
	assert.ErrorIs(t, err, common.ErrTransientStore)

	_, err = p.FindByID(context.Background(), missingID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NotErrorIs(t, err, common.ErrTransientStore)
}

const missingID = "6f1c2d3e-4b5a-4c6d-8e7f-90a1b2c3d4e5"

func TestPostgresProvider_FindByIDMalformedIsNotFound(t *testing.T) {
	p, mock := newPostgres(t)

	for _, id := range []string{"", "u-9", "not-a-uuid", "6f1c2d3e-4b5a"} {
		_, err := p.FindByID(context.Background(), id)
		assert.ErrorIs(t, err, common.ErrNotFound, id)
		assert.NotErrorIs(t, err, common.ErrTransientStore, id)
	}
	require.NoError(t, mock.ExpectationsWereMet(), "no query is sent for a malformed id")
}

func TestMemoryAndPostgresAgreeOnMalformedID(t *testing.T) {
	mem, err := NewMemoryProvider(bcrypt.MinCost, nil)
	require.NoError(t, err)
	pg, _ := newPostgres(t)

	_, memErr := mem.FindByID(context.Background(), "not-a-uuid")
	_, pgErr := pg.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, memErr, common.ErrNotFound)
	assert.ErrorIs(t, pgErr, common.ErrNotFound)
}

func TestPostgresProvider_RolesPassThrough(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectExec(`INSERT\s+INTO\s+roles`).WithArgs("User").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT\s+INTO\s+user_roles`).WithArgs("u-1", "User").
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow(1))
	mock.ExpectQuery(`SELECT\s+r\.name`).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("User"))
	mock.ExpectQuery(`LEFT\s+JOIN\s+user_roles`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "created_at", "name"}).
			AddRow("u-1", "a@b.c", "A", time.Now(), "User"))

	ctx := context.Background()
	require.NoError(t, p.EnsureRole(ctx, "User"))
	require.NoError(t, p.AssignRole(ctx, "u-1", "User"))

	roles, err := p.RolesOf(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, roles)

	all, err := p.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"User"}, all[0].Roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

// hashCapture matches any []byte argument and records it.
type hashCapture struct{ dst *[]byte }

func (h hashCapture) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if ok {
		*h.dst = append([]byte(nil), b...)
	}
	return ok
}
