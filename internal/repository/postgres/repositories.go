package postgres

import "github.com/arklim/account-service/internal/core/port"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users    *UserRepository
	Roles    *RoleRepository
	Claims   *ClaimRepository
	Profiles *ProfileRepository
	ApiLogs  *ApiLogRepository
	Tx       *TxRunner
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(db txStarter) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(db),
		Roles:    NewRoleRepository(db),
		Claims:   NewClaimRepository(db),
		Profiles: NewProfileRepository(db),
		ApiLogs:  NewApiLogRepository(db),
		Tx:       NewTxRunner(db),
	}
}

var _ port.TxRunner = (*TxRunner)(nil)
