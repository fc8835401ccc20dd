package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
)

const userClaimsTable = "account.user_claims"

// ClaimRepository persists user claims. A user holds at most one value per claim type.
type ClaimRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.ClaimRepository = (*ClaimRepository)(nil)

// NewClaimRepository constructs a PostgreSQL-backed claim repository.
func NewClaimRepository(exec pgExecutor) *ClaimRepository {
	return &ClaimRepository{exec: exec, builder: newBuilder()}
}

// ListByUser returns the user's claims ordered by type.
func (r *ClaimRepository) ListByUser(ctx context.Context, userID string) ([]domain.Claim, error) {
	stmt, args, err := r.builder.Select("claim_type", "claim_value").
		From(userClaimsTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("claim_type ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list claims sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	claims := make([]domain.Claim, 0)
	for rows.Next() {
		var claim domain.Claim
		if err := rows.Scan(&claim.Type, &claim.Value); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, claim)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}

	return claims, nil
}

// Upsert inserts the claims, replacing the value of any type the user already holds.
func (r *ClaimRepository) Upsert(ctx context.Context, userID string, claims []domain.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	query := r.builder.Insert(userClaimsTable).
		Columns("user_id", "claim_type", "claim_value")
	for _, claim := range claims {
		query = query.Values(userID, claim.Type, claim.Value)
	}

	stmt, args, err := query.
		Suffix("ON CONFLICT (user_id, claim_type) DO UPDATE SET claim_value = EXCLUDED.claim_value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert claims sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert claims: %w", err)
	}

	return nil
}

// Remove deletes the user's claims of the given types.
func (r *ClaimRepository) Remove(ctx context.Context, userID string, claimTypes []string) error {
	if len(claimTypes) == 0 {
		return nil
	}

	stmt, args, err := r.builder.Delete(userClaimsTable).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"claim_type": claimTypes}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove claims sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("remove claims: %w", err)
	}

	return nil
}
