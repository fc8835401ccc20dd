package port

import "context"

// TxRepositories exposes repositories bound to a single database transaction.
type TxRepositories struct {
	Users   UserRepository
	Roles   RoleRepository
	Claims  ClaimRepository
	ApiLogs ApiLogRepository
}

// TxRunner executes fn inside a transaction, committing when fn returns nil.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
