package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/xdmy1/colete/internal/models"
)

func newProfileRepoMock(t *testing.T) (*ProfileRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProfileRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func profileRows(id, username, role string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "username", "pin_hash", "full_name", "role", "range_start", "range_end",
		"active", "last_login", "created_at", "updated_at",
	}).AddRow(id, username, "$2a$10$hash", "Vasile Lupu", role, 1, 50, true, nil, now, now)
}

func TestProfileRepositoryFindByUsername(t *testing.T) {
	repo, mock := newProfileRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE username = $1`)).
		WithArgs("vasile").
		WillReturnRows(profileRows("driver-1", "vasile", "driver"))

	profile, err := repo.FindByUsername(context.Background(), "vasile")
	require.NoError(t, err)
	require.Equal(t, "driver-1", profile.ID)
	require.Equal(t, models.RoleDriver, profile.Role)
	require.True(t, profile.Active)
	require.Nil(t, profile.LastLogin)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE username = $1`)).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryListDrivers(t *testing.T) {
	repo, mock := newProfileRepoMock(t)

	rows := profileRows("driver-1", "vasile", "driver")
	now := time.Now().UTC()
	rows.AddRow("driver-2", "ion", "$2a$10$hash", "Ion Creanga", "driver", 51, 100, true, nil, now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE role = 'driver' ORDER BY range_start ASC`)).
		WillReturnRows(rows)

	drivers, err := repo.ListDrivers(context.Background())
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	require.Equal(t, "vasile", drivers[0].Username)
	require.Equal(t, "ion", drivers[1].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryCreate(t *testing.T) {
	repo, mock := newProfileRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO profiles`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	profile := &models.Profile{
		Username: "vasile",
		PinHash:  "$2a$10$hash",
		FullName: "Vasile Lupu",
		Role:     models.RoleDriver,
		Active:   true,
	}
	require.NoError(t, repo.Create(context.Background(), profile))
	require.NotEmpty(t, profile.ID)
	require.False(t, profile.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepositoryRevokeRefreshToken(t *testing.T) {
	repo, mock := newProfileRepoMock(t)
	revokedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`)).
		WithArgs("token-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "token-1", revokedAt))

	// Revoking an already revoked token touches no rows.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`)).
		WithArgs("token-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RevokeRefreshToken(context.Background(), "token-1", revokedAt)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
