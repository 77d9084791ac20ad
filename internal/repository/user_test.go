package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userRow - строка users с пустыми контактами
func userRow(id int64, name, email, role string, responderType any) []driver.Value {
	return []driver.Value{id, name, email, "hash", role, responderType, "", "", "", "", "", time.Now()}
}

func TestUserRepository_Create(t *testing.T) {
	t.Run("responder", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		rt := models.ResponderPNP
		user := &models.User{Name: "Officer", Email: "officer@pnp.gov", PasswordHash: "hash", Role: models.RoleResponder, ResponderType: &rt}

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (name,email,password_hash,role,responder_type)")).
			WithArgs("Officer", "officer@pnp.gov", "hash", "responder", "PNP").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), time.Now()))

		require.NoError(t, repo.Create(context.Background(), user))
		assert.Equal(t, int64(3), user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := repo.Create(context.Background(), &models.User{Name: "A", Email: "a@b.c", Role: models.RoleCitizen})
		assert.ErrorIs(t, err, models.ErrEmailTaken)
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("juan@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(userRow(1, "Juan", "juan@example.com", "citizen", nil)...))

	user, err := repo.GetByEmail(context.Background(), "Juan@Example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCitizen, user.Role)
	assert.Nil(t, user.ResponderType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestUserRepository_Update(t *testing.T) {
	t.Run("allow-listed columns", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET email = $1, name = $2 WHERE id = $3 RETURNING id, name, email")).
			WithArgs("new@example.com", "New Name", int64(1)).
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(userRow(1, "New Name", "new@example.com", "citizen", nil)...))

		user, err := repo.Update(context.Background(), 1, map[string]any{"name": "New Name", "email": "new@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "New Name", user.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("contact fields", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		row := userRow(1, "Juan", "juan@example.com", "citizen", nil)
		row[6] = "+63 912 345 6789"
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET phone_number = $1 WHERE id = $2")).
			WithArgs("+63 912 345 6789", int64(1)).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(row...))

		user, err := repo.Update(context.Background(), 1, map[string]any{"phone_number": "+63 912 345 6789"})
		require.NoError(t, err)
		assert.Equal(t, "+63 912 345 6789", user.PhoneNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("responder type is admin only", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		_, err := repo.Update(context.Background(), 1, map[string]any{"responder_type": "PNP"})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role cannot be changed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		_, err := repo.Update(context.Background(), 1, map[string]any{"role": "admin"})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_ListByRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE role = $1 ORDER BY id")).
		WithArgs("responder").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(userRow(3, "Bombero", "b@bfp.gov", "responder", "BFP")...))

	users, err := repo.ListByRole(context.Background(), models.RoleResponder)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NotNil(t, users[0].ResponderType)
	assert.Equal(t, models.ResponderBFP, *users[0].ResponderType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateResponder(t *testing.T) {
	t.Run("responder type", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET responder_type = $1 WHERE id = $2 AND role = $3 RETURNING")).
			WithArgs("MDDRMO", int64(3), "responder").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(userRow(3, "Bombero", "b@bfp.gov", "responder", "MDDRMO")...))

		user, err := repo.UpdateResponder(context.Background(), 3, map[string]any{"responder_type": "MDDRMO"})
		require.NoError(t, err)
		require.NotNil(t, user.ResponderType)
		assert.Equal(t, models.ResponderMDDRMO, *user.ResponderType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not a responder", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery("UPDATE users SET name").
			WithArgs("X", int64(1), "responder").
			WillReturnRows(sqlmock.NewRows(userColumns))

		_, err := repo.UpdateResponder(context.Background(), 1, map[string]any{"name": "X"})
		assert.ErrorIs(t, err, models.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("contact fields are not editable by admin", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		_, err := repo.UpdateResponder(context.Background(), 3, map[string]any{"address": "Somewhere"})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_DeleteResponder(t *testing.T) {
	deleteQuery := regexp.QuoteMeta("DELETE FROM users WHERE id = $1 AND role = $2")

	t.Run("deleted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(deleteQuery).
			WithArgs(int64(3), "responder").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.DeleteResponder(context.Background(), 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing or not a responder", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(deleteQuery).
			WithArgs(int64(1), "responder").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.DeleteResponder(context.Background(), 1), models.ErrUserNotFound)
	})

	t.Run("referenced by incidents", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(deleteQuery).
			WithArgs(int64(3), "responder").
			WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})

		assert.ErrorIs(t, repo.DeleteResponder(context.Background(), 3), models.ErrUserInUse)
	})
}
