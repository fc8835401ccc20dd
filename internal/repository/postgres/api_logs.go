package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
)

const apiLogsTable = "account.api_logs"

var apiLogColumns = []string{
	"id",
	"user_id",
	"requested_at",
	"method",
	"path",
	"query_string",
	"status_code",
	"response_millis",
	"ip_address",
	"request_body",
}

// ApiLogRepository stores the API call log.
type ApiLogRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.ApiLogRepository = (*ApiLogRepository)(nil)

// NewApiLogRepository constructs a PostgreSQL-backed API log repository.
func NewApiLogRepository(exec pgExecutor) *ApiLogRepository {
	return &ApiLogRepository{exec: exec, builder: newBuilder()}
}

// Insert appends an entry. An entry whose user no longer exists is stored
// without an owner.
func (r *ApiLogRepository) Insert(ctx context.Context, entry domain.ApiLogEntry) error {
	err := r.insert(ctx, entry)
	if err != nil && entry.UserID != nil && isForeignKeyViolation(err) {
		entry.UserID = nil
		err = r.insert(ctx, entry)
	}
	return err
}

func (r *ApiLogRepository) insert(ctx context.Context, entry domain.ApiLogEntry) error {
	stmt, args, err := r.builder.Insert(apiLogsTable).
		Columns(apiLogColumns[1:]...).
		Values(
			entry.UserID,
			entry.RequestedAt,
			entry.Method,
			entry.Path,
			entry.QueryString,
			entry.StatusCode,
			entry.ResponseMillis,
			entry.IPAddress,
			entry.RequestBody,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert api log sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (r *ApiLogRepository) List(ctx context.Context, limit int) ([]domain.ApiLogEntry, error) {
	return r.list(ctx, nil, limit)
}

// ListByUser returns the newest entries owned by userID first.
func (r *ApiLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ApiLogEntry, error) {
	return r.list(ctx, squirrel.Eq{"user_id": userID}, limit)
}

func (r *ApiLogRepository) list(ctx context.Context, where squirrel.Sqlizer, limit int) ([]domain.ApiLogEntry, error) {
	query := r.builder.Select(apiLogColumns...).
		From(apiLogsTable).
		OrderBy("requested_at DESC", "id DESC")
	if where != nil {
		query = query.Where(where)
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list api logs sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		if isInvalidText(err) {
			return []domain.ApiLogEntry{}, nil
		}
		return nil, fmt.Errorf("query api logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ApiLogEntry, 0)
	for rows.Next() {
		var (
			entry       domain.ApiLogEntry
			queryString *string
			ipAddress   *string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.RequestedAt,
			&entry.Method,
			&entry.Path,
			&queryString,
			&entry.StatusCode,
			&entry.ResponseMillis,
			&ipAddress,
			&entry.RequestBody,
		); err != nil {
			return nil, fmt.Errorf("scan api log: %w", err)
		}
		if queryString != nil {
			entry.QueryString = *queryString
		}
		if ipAddress != nil {
			entry.IPAddress = *ipAddress
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		if isInvalidText(err) {
			return []domain.ApiLogEntry{}, nil
		}
		return nil, fmt.Errorf("iterate api logs: %w", err)
	}
	return entries, nil
}

// DeleteByUser removes every entry owned by userID and reports how many were removed.
func (r *ApiLogRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	stmt, args, err := r.builder.Delete(apiLogsTable).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete api logs sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isInvalidText(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete api logs: %w", err)
	}
	return ct.RowsAffected(), nil
}
