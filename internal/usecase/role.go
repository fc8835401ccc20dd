package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/repository"
)

// RoleService exposes role catalogue queries.
type RoleService struct {
	roles port.RoleRepository
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository) *RoleService {
	return &RoleService{roles: roles}
}

// ListRoles returns the names of all roles in alphabetical order.
func (s *RoleService) ListRoles(ctx context.Context) ([]string, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names, nil
}

// addRoles assigns the named roles and mirrors each one as an Is{Role} claim.
// It must run inside a transaction so membership and claims change together.
func addRoles(ctx context.Context, repos port.TxRepositories, userID string, names []string) ([]string, error) {
	roles, err := resolveRoles(ctx, repos.Roles, names)
	if err != nil || len(roles) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(roles))
	claims := make([]domain.Claim, 0, len(roles))
	added := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
		claims = append(claims, domain.Claim{Type: domain.RoleClaimType(role.Name), Value: domain.ClaimValueTrue})
		added = append(added, role.Name)
	}

	if err := repos.Roles.AddUser(ctx, userID, ids); err != nil {
		return nil, fmt.Errorf("add user to roles: %w", err)
	}
	if err := repos.Claims.Upsert(ctx, userID, claims); err != nil {
		return nil, fmt.Errorf("add role claims: %w", err)
	}
	return added, nil
}

// removeRoles is the inverse of addRoles.
func removeRoles(ctx context.Context, repos port.TxRepositories, userID string, names []string) ([]string, error) {
	roles, err := resolveRoles(ctx, repos.Roles, names)
	if err != nil || len(roles) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(roles))
	claimTypes := make([]string, 0, len(roles))
	removed := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
		claimTypes = append(claimTypes, domain.RoleClaimType(role.Name))
		removed = append(removed, role.Name)
	}

	if err := repos.Roles.RemoveUser(ctx, userID, ids); err != nil {
		return nil, fmt.Errorf("remove user from roles: %w", err)
	}
	if err := repos.Claims.Remove(ctx, userID, claimTypes); err != nil {
		return nil, fmt.Errorf("remove role claims: %w", err)
	}
	return removed, nil
}

func resolveRoles(ctx context.Context, roles port.RoleRepository, names []string) ([]domain.Role, error) {
	seen := make(map[string]struct{}, len(names))
	resolved := make([]domain.Role, 0, len(names))
	for _, name := range names {
		key := domain.NormalizeName(name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		role, err := roles.GetByName(ctx, name)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, NewDomainError("Role '%s' does not exist.", name)
			}
			return nil, fmt.Errorf("lookup role %s: %w", name, err)
		}
		resolved = append(resolved, *role)
	}
	return resolved, nil
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}
