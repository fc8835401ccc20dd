package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/repository"
)

const (
	rolesTable     = "account.roles"
	userRolesTable = "account.user_roles"
)

// RoleRepository implements role and membership persistence.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.RoleRepository = (*RoleRepository)(nil)

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// List retrieves all roles sorted by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name").
		From(rolesTable).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}
	return r.queryRoles(ctx, stmt, args)
}

// GetByName retrieves a role by its case-insensitive name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name").
		From(rolesTable).
		Where(squirrel.Eq{"normalized_name": domain.NormalizeName(name)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role by name sql: %w", err)
	}

	var role domain.Role
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role by name: %w", err)
	}

	return &role, nil
}

// ListByUser returns the roles the user belongs to.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name").
		From(rolesTable + " r").
		Join(userRolesTable + " ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user roles sql: %w", err)
	}
	return r.queryRoles(ctx, stmt, args)
}

// ListNamesByUsers returns role names keyed by user id for the supplied users.
func (r *RoleRepository) ListNamesByUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	stmt, args, err := r.builder.Select("ur.user_id", "r.name").
		From(userRolesTable + " ur").
		Join(rolesTable + " r ON r.id = ur.role_id").
		Where(squirrel.Eq{"ur.user_id": userIDs}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role names sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("scan role name: %w", err)
		}
		result[userID] = append(result[userID], name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role names: %w", err)
	}

	return result, nil
}

// AddUser links the user to the provided roles.
func (r *RoleRepository) AddUser(ctx context.Context, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}

	query := r.builder.Insert(userRolesTable).
		Columns("user_id", "role_id")

	for _, roleID := range roleIDs {
		query = query.Values(userID, roleID)
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build add user roles sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("add user roles: %w", err)
	}

	return nil
}

// RemoveUser removes the user from the provided roles.
func (r *RoleRepository) RemoveUser(ctx context.Context, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}

	stmt, args, err := r.builder.Delete(userRolesTable).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"role_id": roleIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove user roles sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("remove user roles: %w", err)
	}

	return nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args []any) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}
