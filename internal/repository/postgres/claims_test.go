package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/account-service/internal/core/domain"
)

func TestClaimRepository_UpsertReplacesValue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClaimRepository(mock)

	mock.ExpectExec(`INSERT INTO account\.user_claims \(user_id,claim_type,claim_value\) VALUES \(\$1,\$2,\$3\),\(\$4,\$5,\$6\) ON CONFLICT \(user_id, claim_type\) DO UPDATE SET claim_value = EXCLUDED\.claim_value`).
		WithArgs("user-1", domain.ClaimGivenName, "Alice", "user-1", "IsAdministrator", "true").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	claims := []domain.Claim{
		{Type: domain.ClaimGivenName, Value: "Alice"},
		{Type: "IsAdministrator", Value: "true"},
	}
	if err := repo.Upsert(context.Background(), "user-1", claims); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimRepository_ListAndRemove(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewClaimRepository(mock)

	mock.ExpectQuery(`SELECT claim_type, claim_value FROM account\.user_claims WHERE user_id = \$1 ORDER BY claim_type ASC`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"claim_type", "claim_value"}).
			AddRow("IsUser", "true").
			AddRow(domain.ClaimEmail, "alice@example.com"))
	mock.ExpectExec(`DELETE FROM account\.user_claims WHERE user_id = \$1 AND claim_type IN \(\$2\)`).
		WithArgs("user-1", "IsUser").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	claims, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(claims) != 2 || claims[0].Type != "IsUser" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if err := repo.Remove(context.Background(), "user-1", []string{"IsUser"}); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
