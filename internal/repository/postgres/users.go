package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/repository"
)

const usersTable = "account.users"

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"first_name",
	"last_name",
	"email_confirmed",
	"security_stamp",
	"access_failed_count",
	"lockout_enabled",
	"lockout_end",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.UserRepository = (*UserRepository)(nil)

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row. Duplicate usernames or emails yield repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(
			"id",
			"username",
			"normalized_username",
			"email",
			"normalized_email",
			"password_hash",
			"first_name",
			"last_name",
			"email_confirmed",
			"security_stamp",
			"access_failed_count",
			"lockout_enabled",
			"lockout_end",
			"created_at",
			"updated_at",
		).
		Values(
			user.ID,
			user.Username,
			domain.NormalizeName(user.Username),
			user.Email,
			domain.NormalizeName(user.Email),
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.EmailConfirmed,
			user.SecurityStamp,
			user.AccessFailedCount,
			user.LockoutEnabled,
			user.LockoutEnd,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", repository.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, "by id")
}

// GetByUsername retrieves a user by case-insensitive username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"normalized_username": domain.NormalizeName(username)}, "by username")
}

// GetByEmail retrieves a user by case-insensitive email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"normalized_email": domain.NormalizeName(email)}, "by email")
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq, label string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user %s sql: %w", label, err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user %s: %w", label, err)
	}
	return user, nil
}

// Update modifies profile fields, confirmation state and the security stamp.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("username", user.Username).
		Set("normalized_username", domain.NormalizeName(user.Username)).
		Set("email", user.Email).
		Set("normalized_email", domain.NormalizeName(user.Email)).
		Set("first_name", user.FirstName).
		Set("last_name", user.LastName).
		Set("email_confirmed", user.EmailConfirmed).
		Set("security_stamp", user.SecurityStamp).
		Set("updated_at", user.UpdatedAt).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user: %w", repository.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword stores a new hash and rotates the security stamp.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash, securityStamp string, changedAt time.Time) error {
	return r.updateFields(ctx, id, "update password", map[string]any{
		"password_hash":  passwordHash,
		"security_stamp": securityStamp,
		"updated_at":     changedAt,
	})
}

// ConfirmEmail marks the email confirmed and rotates the security stamp.
func (r *UserRepository) ConfirmEmail(ctx context.Context, id, securityStamp string, confirmedAt time.Time) error {
	return r.updateFields(ctx, id, "confirm email", map[string]any{
		"email_confirmed": true,
		"security_stamp":  securityStamp,
		"updated_at":      confirmedAt,
	})
}

// UpdateLockout stores the failure counter and lockout end.
func (r *UserRepository) UpdateLockout(ctx context.Context, id string, failedCount int, lockoutEnd *time.Time) error {
	return r.updateFields(ctx, id, "update lockout", map[string]any{
		"access_failed_count": failedCount,
		"lockout_end":         lockoutEnd,
	})
}

// IncrementAccessFailed adds one to access_failed_count in a single statement and returns the new count.
func (r *UserRepository) IncrementAccessFailed(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("access_failed_count", squirrel.Expr("access_failed_count + 1")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING access_failed_count").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment access failed sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment access failed: %w", err)
	}
	return count, nil
}

func (r *UserRepository) updateFields(ctx context.Context, id, label string, fields map[string]any) error {
	stmt, args, err := r.builder.Update(usersTable).
		SetMap(fields).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", label, err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isInvalidText(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("%s: %w", label, err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes the user row. Claims, roles and profile cascade; API logs must be removed first.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isInvalidText(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// List returns users ordered by username with pagination.
func (r *UserRepository) List(ctx context.Context, filter port.UserFilter) ([]domain.User, error) {
	query := r.builder.Select(userColumns...).
		From(usersTable).
		OrderBy("normalized_username ASC")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From(usersTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count users sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan users count: %w", err)
	}

	return int(count), nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.EmailConfirmed,
		&user.SecurityStamp,
		&user.AccessFailedCount,
		&user.LockoutEnabled,
		&user.LockoutEnd,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
