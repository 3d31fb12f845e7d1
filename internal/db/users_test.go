package db

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/models"
)

func newTestUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &UserRepository{q: sqlDB}, mock
}

func TestUserRepository_CreateNormalizesEmailCase(t *testing.T) {
	repo, mock := newTestUserRepo(t)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "mixed@case.com", "Jo", models.RoleUser, sqlmock.AnyArg(),
			nil, nil, nil, false, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := repo.Create(context.Background(), models.UserCreate{
		Email: "Mixed@Case.COM", Name: "Jo", Password: "Str0ng!Pass", Role: models.RoleUser,
	})
	require.NoError(t, err)
	require.Equal(t, "mixed@case.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateOAuthNormalizesEmailCase(t *testing.T) {
	repo, mock := newTestUserRepo(t)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "person@example.com", "Jo", models.RoleUser, nil,
			"google", "oauth-id", nil, false, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := repo.CreateOAuth(context.Background(), "Person@Example.com", "Jo", "google", "oauth-id")
	require.NoError(t, err)
	require.Equal(t, "person@example.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByEmailNormalizesQueryArg(t *testing.T) {
	repo, mock := newTestUserRepo(t)

	rows := sqlmock.NewRows([]string{
		"id", "email", "name", "role", "password_hash", "oauth_provider", "oauth_id",
		"totp_secret", "totp_enabled", "active", "created_at", "updated_at",
	}).AddRow("u1", "user@example.com", "Jo", models.RoleUser, nil, nil, nil, nil, false, true, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	u, err := repo.FindByEmail(context.Background(), "User@EXAMPLE.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "user@example.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_DeleteSoftDeletesWhenAuditReferenced(t *testing.T) {
	repo, mock := newTestUserRepo(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM audit_log WHERE user_id = \$1\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE users SET active = false`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_DeleteHardDeletesWhenNoAuditReference(t *testing.T) {
	repo, mock := newTestUserRepo(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM audit_log WHERE user_id = \$1\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
