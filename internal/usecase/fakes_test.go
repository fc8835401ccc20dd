package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/security"
	"github.com/arklim/account-service/internal/repository"
)

const (
	strongPassword  = "Sup3r!SecurePass#7890"
	testTokenSecret = "0123456789abcdef0123456789abcdef"
	testAppURL      = "https://app.example.com"
	adminActorID    = "admin-1"
)

type userRepoFake struct {
	mu        sync.Mutex
	users     map[string]domain.User
	createErr error
	updateErr error
	calls     []string
}

func newUserRepoFake(users ...domain.User) *userRepoFake {
	repo := &userRepoFake{users: make(map[string]domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (m *userRepoFake) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *userRepoFake) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("users.Create")
	if m.createErr != nil {
		return m.createErr
	}
	m.users[user.ID] = user
	return nil
}

func (m *userRepoFake) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (m *userRepoFake) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if domain.NormalizeName(user.Username) == domain.NormalizeName(username) {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoFake) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if domain.NormalizeName(user.Email) == domain.NormalizeName(email) {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoFake) Update(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("users.Update")
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *userRepoFake) UpdatePassword(_ context.Context, id, hash, stamp string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	user.SecurityStamp = stamp
	user.UpdatedAt = changedAt
	m.users[id] = user
	return nil
}

func (m *userRepoFake) ConfirmEmail(_ context.Context, id, stamp string, confirmedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailConfirmed = true
	user.SecurityStamp = stamp
	user.UpdatedAt = confirmedAt
	m.users[id] = user
	return nil
}

func (m *userRepoFake) UpdateLockout(_ context.Context, id string, failedCount int, lockoutEnd *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.AccessFailedCount = failedCount
	user.LockoutEnd = lockoutEnd
	m.users[id] = user
	return nil
}

func (m *userRepoFake) IncrementAccessFailed(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.AccessFailedCount++
	m.users[id] = user
	return user.AccessFailedCount, nil
}

func (m *userRepoFake) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("users.Delete")
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *userRepoFake) List(_ context.Context, filter port.UserFilter) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]domain.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if filter.Offset >= len(users) {
		return []domain.User{}, nil
	}
	users = users[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(users) {
		users = users[:filter.Limit]
	}
	return users, nil
}

func (m *userRepoFake) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

type roleRepoFake struct {
	roles       []domain.Role
	memberships map[string]map[string]bool
	addErr      error
}

func newRoleRepoFake(names ...string) *roleRepoFake {
	repo := &roleRepoFake{memberships: make(map[string]map[string]bool)}
	for _, name := range names {
		repo.roles = append(repo.roles, domain.Role{ID: "role-" + name, Name: name})
	}
	return repo
}

func (m *roleRepoFake) List(context.Context) ([]domain.Role, error) {
	return append([]domain.Role(nil), m.roles...), nil
}

func (m *roleRepoFake) GetByName(_ context.Context, name string) (*domain.Role, error) {
	for _, role := range m.roles {
		if domain.NormalizeName(role.Name) == domain.NormalizeName(name) {
			copied := role
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoFake) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	var roles []domain.Role
	for _, role := range m.roles {
		if m.memberships[userID][role.ID] {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *roleRepoFake) ListNamesByUsers(ctx context.Context, userIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(userIDs))
	for _, id := range userIDs {
		roles, _ := m.ListByUser(ctx, id)
		result[id] = roleNames(roles)
	}
	return result, nil
}

func (m *roleRepoFake) AddUser(_ context.Context, userID string, roleIDs []string) error {
	if m.addErr != nil {
		return m.addErr
	}
	if m.memberships[userID] == nil {
		m.memberships[userID] = make(map[string]bool)
	}
	for _, id := range roleIDs {
		m.memberships[userID][id] = true
	}
	return nil
}

func (m *roleRepoFake) RemoveUser(_ context.Context, userID string, roleIDs []string) error {
	for _, id := range roleIDs {
		delete(m.memberships[userID], id)
	}
	return nil
}

func (m *roleRepoFake) assign(userID string, names ...string) {
	if m.memberships[userID] == nil {
		m.memberships[userID] = make(map[string]bool)
	}
	for _, name := range names {
		m.memberships[userID]["role-"+name] = true
	}
}

type claimRepoFake struct {
	claims map[string]map[string]string
}

func newClaimRepoFake() *claimRepoFake {
	return &claimRepoFake{claims: make(map[string]map[string]string)}
}

func (m *claimRepoFake) ListByUser(_ context.Context, userID string) ([]domain.Claim, error) {
	claims := make([]domain.Claim, 0, len(m.claims[userID]))
	for claimType, value := range m.claims[userID] {
		claims = append(claims, domain.Claim{Type: claimType, Value: value})
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Type < claims[j].Type })
	return claims, nil
}

func (m *claimRepoFake) Upsert(_ context.Context, userID string, claims []domain.Claim) error {
	if m.claims[userID] == nil {
		m.claims[userID] = make(map[string]string)
	}
	for _, claim := range claims {
		m.claims[userID][claim.Type] = claim.Value
	}
	return nil
}

func (m *claimRepoFake) Remove(_ context.Context, userID string, claimTypes []string) error {
	for _, claimType := range claimTypes {
		delete(m.claims[userID], claimType)
	}
	return nil
}

func (m *claimRepoFake) has(userID, claimType string) bool {
	_, ok := m.claims[userID][claimType]
	return ok
}

type apiLogRepoFake struct {
	entries []domain.ApiLogEntry
	users   *userRepoFake
}

func (m *apiLogRepoFake) Insert(_ context.Context, entry domain.ApiLogEntry) error {
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *apiLogRepoFake) List(_ context.Context, limit int) ([]domain.ApiLogEntry, error) {
	if limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

func (m *apiLogRepoFake) ListByUser(_ context.Context, userID string, limit int) ([]domain.ApiLogEntry, error) {
	var entries []domain.ApiLogEntry
	for _, entry := range m.entries {
		if entry.UserID != nil && *entry.UserID == userID && len(entries) < limit {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *apiLogRepoFake) DeleteByUser(_ context.Context, userID string) (int64, error) {
	if m.users != nil {
		m.users.record("apiLogs.DeleteByUser")
	}
	kept := m.entries[:0]
	var removed int64
	for _, entry := range m.entries {
		if entry.UserID != nil && *entry.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	m.entries = kept
	return removed, nil
}

// txRunnerFake runs fn against the shared fakes. It does not roll back.
type txRunnerFake struct {
	repos port.TxRepositories
	runs  int
	err   error
}

func (m *txRunnerFake) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	m.runs++
	if m.err != nil {
		return m.err
	}
	return fn(ctx, m.repos)
}

type sessionStoreFake struct {
	sessions map[string]domain.Session
	saveErr  error
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: make(map[string]domain.Session)}
}

func (m *sessionStoreFake) Save(_ context.Context, tokenHash string, session domain.Session, _ time.Duration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[tokenHash] = session
	return nil
}

func (m *sessionStoreFake) Get(_ context.Context, tokenHash string) (*domain.Session, error) {
	session, ok := m.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &session, nil
}

func (m *sessionStoreFake) Delete(_ context.Context, tokenHash string) error {
	if _, ok := m.sessions[tokenHash]; !ok {
		return repository.ErrNotFound
	}
	delete(m.sessions, tokenHash)
	return nil
}

func (m *sessionStoreFake) DeleteByUser(_ context.Context, userID string) (int, error) {
	count := 0
	for hash, session := range m.sessions {
		if session.UserID == userID {
			delete(m.sessions, hash)
			count++
		}
	}
	return count, nil
}

type sentEmail struct {
	template string
	to       []string
	data     map[string]any
}

type mailerFake struct {
	sent []sentEmail
	err  error
}

func (m *mailerFake) SendTemplate(_ context.Context, template string, to []string, data map[string]any) error {
	m.sent = append(m.sent, sentEmail{template: template, to: to, data: data})
	return m.err
}

type eventsFake struct {
	registered []domain.UserRegisteredEvent
	deleted    []domain.UserDeletedEvent
	passwords  []domain.PasswordChangedEvent
	assigned   []domain.RolesAssignedEvent
	revoked    []domain.RolesRevokedEvent
	emails     []domain.EmailRequestedEvent
}

func (m *eventsFake) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	m.registered = append(m.registered, event)
	return nil
}

func (m *eventsFake) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	m.deleted = append(m.deleted, event)
	return nil
}

func (m *eventsFake) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	m.passwords = append(m.passwords, event)
	return nil
}

func (m *eventsFake) PublishRolesAssigned(_ context.Context, event domain.RolesAssignedEvent) error {
	m.assigned = append(m.assigned, event)
	return nil
}

func (m *eventsFake) PublishRolesRevoked(_ context.Context, event domain.RolesRevokedEvent) error {
	m.revoked = append(m.revoked, event)
	return nil
}

func (m *eventsFake) PublishEmailRequested(_ context.Context, event domain.EmailRequestedEvent) error {
	m.emails = append(m.emails, event)
	return nil
}

var errBoom = errors.New("boom")

// harness wires every service against shared in-memory fakes.
type harness struct {
	users    *userRepoFake
	roles    *roleRepoFake
	claims   *claimRepoFake
	apiLogs  *apiLogRepoFake
	tx       *txRunnerFake
	sessions *sessionStoreFake
	mailer   *mailerFake
	events   *eventsFake
	tokens   *security.PurposeTokens

	accounts *AccountService
	signIn   *SignInService
	admin    *UserAdminService
}

func newHarness(requireConfirmedEmail bool, users ...domain.User) *harness {
	h := &harness{
		users:    newUserRepoFake(users...),
		roles:    newRoleRepoFake(domain.RoleAdministrator, domain.RoleUser, "A", "B", "C"),
		claims:   newClaimRepoFake(),
		sessions: newSessionStoreFake(),
		mailer:   &mailerFake{},
		events:   &eventsFake{},
	}
	h.apiLogs = &apiLogRepoFake{users: h.users}
	h.tx = &txRunnerFake{repos: port.TxRepositories{
		Users:   h.users,
		Roles:   h.roles,
		Claims:  h.claims,
		ApiLogs: h.apiLogs,
	}}

	tokens, err := security.NewPurposeTokens(security.PurposeTokenConfig{Secret: testTokenSecret})
	if err != nil {
		panic(err)
	}
	h.tokens = tokens

	policy := security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	h.accounts = NewAccountService(h.users, h.tx, policy, h.events, nil)
	h.signIn = NewSignInService(h.users, h.claims, h.sessions, SignInConfig{}, nil)
	h.admin = NewUserAdminService(UserAdminConfig{
		RequireConfirmedEmail: requireConfirmedEmail,
		ApplicationURL:        testAppURL + "/",
	}, UserAdminDependencies{
		Users:    h.users,
		Roles:    h.roles,
		Tx:       h.tx,
		Accounts: h.accounts,
		Sessions: h.signIn,
		Tokens:   tokens,
		Policy:   policy,
		Mailer:   h.mailer,
		Events:   h.events,
	})
	return h
}

func mustHash(password string) string {
	hash, err := security.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}

func existingUser(id, username, email string, confirmed bool) domain.User {
	return domain.User{
		ID:             id,
		Username:       username,
		Email:          email,
		PasswordHash:   mustHash(strongPassword),
		EmailConfirmed: confirmed,
		SecurityStamp:  "STAMP-" + id,
		LockoutEnabled: true,
	}
}
