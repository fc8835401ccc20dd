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

const userProfilesTable = "account.user_profiles"

// ProfileRepository persists user UI preferences.
type ProfileRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository constructs a PostgreSQL-backed profile repository.
func NewProfileRepository(exec pgExecutor) *ProfileRepository {
	return &ProfileRepository{exec: exec, builder: newBuilder()}
}

// Get loads the profile for userID.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	stmt, args, err := r.builder.Select(
		"user_id",
		"last_page_visited",
		"is_navopen",
		"is_navminified",
		"count",
		"last_updated",
	).
		From(userProfilesTable).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile sql: %w", err)
	}

	var (
		profile  domain.UserProfile
		lastPage *string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&profile.UserID,
		&lastPage,
		&profile.IsNavOpen,
		&profile.IsNavMinified,
		&profile.Count,
		&profile.LastUpdated,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	if lastPage != nil {
		profile.LastPageVisited = *lastPage
	}
	return &profile, nil
}

// Upsert inserts the profile or overwrites every mutable column of the existing row.
func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.UserProfile) error {
	stmt, args, err := r.builder.Insert(userProfilesTable).
		Columns("user_id", "last_page_visited", "is_navopen", "is_navminified", "count", "last_updated").
		Values(profile.UserID, profile.LastPageVisited, profile.IsNavOpen, profile.IsNavMinified, profile.Count, profile.LastUpdated).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			last_page_visited = EXCLUDED.last_page_visited,
			is_navopen = EXCLUDED.is_navopen,
			is_navminified = EXCLUDED.is_navminified,
			count = EXCLUDED.count,
			last_updated = EXCLUDED.last_updated`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	return nil
}

// GetLastPageVisitedByUsername joins profiles to users by username.
func (r *ProfileRepository) GetLastPageVisitedByUsername(ctx context.Context, username string) (string, error) {
	stmt, args, err := r.builder.Select("p.last_page_visited").
		From(userProfilesTable + " p").
		Join(usersTable + " u ON u.id = p.user_id").
		Where(squirrel.Eq{"u.normalized_username": domain.NormalizeName(username)}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select last page sql: %w", err)
	}

	var page *string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&page); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan last page: %w", err)
	}
	if page == nil {
		return "", nil
	}
	return *page, nil
}
