package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/service"
)

const userTableName = "users"

var userColumns = []string{
	"id",
	"name",
	"email",
	"password_hash",
	"role",
	"responder_type",
	"phone_number",
	"address",
	"emergency_contact_name",
	"emergency_contact_phone",
	"emergency_contact_relationship",
	"created_at",
}

// Колонки, которые разрешено менять через профиль
var userUpdatableColumns = map[string]struct{}{
	"name":                           {},
	"email":                          {},
	"password_hash":                  {},
	"phone_number":                   {},
	"address":                        {},
	"emergency_contact_name":         {},
	"emergency_contact_phone":        {},
	"emergency_contact_relationship": {},
}

// Колонки учетной записи службы, которые меняет администратор
var responderUpdatableColumns = map[string]struct{}{
	"name":           {},
	"email":          {},
	"password_hash":  {},
	"responder_type": {},
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) service.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query, args, err := psql().
		Insert(userTableName).
		Columns("name", "email", "password_hash", "role", "responder_type").
		Values(user.Name, user.Email, user.PasswordHash, user.Role, user.ResponderType).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate create user query: %w", err)
	}

	if err := conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, sq.Eq{"email": strings.ToLower(email)})
}

func (r *UserRepository) getOne(ctx context.Context, where sq.Eq) (*models.User, error) {
	query, args, err := psql().
		Select(userColumns...).
		From(userTableName).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user query: %w", err)
	}

	var user models.User
	if err := sqlscan.Get(ctx, conn(ctx, r.db), &user, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// Update меняет только колонки из белого списка и возвращает обновленную запись
func (r *UserRepository) Update(ctx context.Context, id int64, fields map[string]any) (*models.User, error) {
	if len(fields) == 0 {
		return r.GetByID(ctx, id)
	}
	return r.update(ctx, sq.Eq{"id": id}, fields, userUpdatableColumns)
}

// UpdateResponder меняет учетную запись службы. Пользователь с другой ролью считается ненайденным.
func (r *UserRepository) UpdateResponder(ctx context.Context, id int64, fields map[string]any) (*models.User, error) {
	if len(fields) == 0 {
		return r.getOne(ctx, sq.Eq{"id": id, "role": models.RoleResponder})
	}
	return r.update(ctx, sq.Eq{"id": id, "role": models.RoleResponder}, fields, responderUpdatableColumns)
}

func (r *UserRepository) update(ctx context.Context, where sq.Eq, fields map[string]any, allowed map[string]struct{}) (*models.User, error) {
	for column := range fields {
		if _, ok := allowed[column]; !ok {
			return nil, fmt.Errorf("%w: column %q is not updatable", models.ErrValidation, column)
		}
	}

	query, args, err := psql().
		Update(userTableName).
		SetMap(fields).
		Where(where).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate update user query: %w", err)
	}

	var user models.User
	if err := sqlscan.Get(ctx, conn(ctx, r.db), &user, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, models.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return nil, models.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// DeleteResponder удаляет учетную запись службы. Другие роли не удаляются.
func (r *UserRepository) DeleteResponder(ctx context.Context, id int64) error {
	query, args, err := psql().
		Delete(userTableName).
		Where(sq.Eq{"id": id, "role": models.RoleResponder}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete user query: %w", err)
	}

	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrUserInUse
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deleted rows: %w", err)
	}
	if affected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ListByRole возвращает пользователей с указанной ролью
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	query, args, err := psql().
		Select(userColumns...).
		From(userTableName).
		Where(sq.Eq{"role": role}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate list users query: %w", err)
	}

	users := make([]*models.User, 0)
	if err := sqlscan.Select(ctx, conn(ctx, r.db), &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	return hasPgCode(err, pgerrcode.UniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasPgCode(err, pgerrcode.ForeignKeyViolation)
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
