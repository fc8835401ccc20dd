package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arklim/account-service/internal/core/port"
)

type txStarter interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner runs a unit of work against repositories bound to one pgx transaction.
type TxRunner struct {
	db txStarter
}

// NewTxRunner constructs a TxRunner over a pool (or any executor able to begin transactions).
func NewTxRunner(db txStarter) *TxRunner {
	return &TxRunner{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	repos := port.TxRepositories{
		Users:   NewUserRepository(tx),
		Roles:   NewRoleRepository(tx),
		Claims:  NewClaimRepository(tx),
		ApiLogs: NewApiLogRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
