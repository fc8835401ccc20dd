package usecase

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/infra/security"
)

func tokenFromCallback(t *testing.T, email sentEmail) string {
	t.Helper()
	raw, ok := email.data["callback_url"].(string)
	if !ok {
		t.Fatalf("email %s has no callback_url", email.template)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse callback url: %v", err)
	}
	return parsed.Query().Get("token")
}

func TestAdminCreateSendsWelcomeEmailWithPassword(t *testing.T) {
	h := newHarness(false)

	user, err := h.admin.Create(context.Background(), adminActorID, CreateUserInput{
		Username:  "jane",
		Email:     "jane@example.com",
		Password:  strongPassword,
		FirstName: "Jane",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !user.EmailConfirmed {
		t.Fatal("expected confirmed email when confirmation is not required")
	}
	if len(h.mailer.sent) != 1 || h.mailer.sent[0].template != domain.EmailTemplateWelcome {
		t.Fatalf("expected one welcome email, got %+v", h.mailer.sent)
	}
	if h.mailer.sent[0].data["password"] != strongPassword {
		t.Fatal("expected welcome email to carry the initial password")
	}
	if h.events.registered[0].RegisteredBy != adminActorID {
		t.Fatalf("expected admin actor on event, got %s", h.events.registered[0].RegisteredBy)
	}
}

func TestAdminCreateSendsConfirmationWhenRequired(t *testing.T) {
	h := newHarness(true)

	user, err := h.admin.Create(context.Background(), adminActorID, CreateUserInput{
		Username: "kim",
		Email:    "kim@example.com",
		Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if user.EmailConfirmed {
		t.Fatal("expected unconfirmed email")
	}
	if len(h.mailer.sent) != 1 || h.mailer.sent[0].template != domain.EmailTemplateConfirmEmail {
		t.Fatalf("expected confirmation email, got %+v", h.mailer.sent)
	}
	if _, ok := h.mailer.sent[0].data["password"]; ok {
		t.Fatal("confirmation email must not carry the password")
	}
	wantPrefix := testAppURL + "/Account/ConfirmEmail/" + user.ID + "?token="
	if got := h.mailer.sent[0].data["callback_url"].(string); !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("unexpected callback url %s", got)
	}
}

func TestAdminCreateEmailFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(false)
	h.mailer.err = errBoom

	if _, err := h.admin.Create(context.Background(), adminActorID, CreateUserInput{
		Username: "lee",
		Email:    "lee@example.com",
		Password: strongPassword,
	}); err != nil {
		t.Fatalf("expected email failure to be swallowed, got %v", err)
	}
}

func TestConfirmEmailValidReusedAndTampered(t *testing.T) {
	h := newHarness(true, existingUser("user-1", "alice", "alice@example.com", false))
	user := h.users.users["user-1"]

	h.admin.SendEmailConfirmation(context.Background(), user)
	token := tokenFromCallback(t, h.mailer.sent[0])

	tampered := token[:len(token)-4] + "AAAA"
	if _, err := h.admin.ConfirmEmail(context.Background(), "user-1", tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token to be rejected, got %v", err)
	}

	confirmed, err := h.admin.ConfirmEmail(context.Background(), "user-1", token)
	if err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if !confirmed.EmailConfirmed || !h.users.users["user-1"].EmailConfirmed {
		t.Fatal("expected email confirmed")
	}
	if confirmed.SecurityStamp == user.SecurityStamp {
		t.Fatal("expected security stamp rotation")
	}

	if _, err := h.admin.ConfirmEmail(context.Background(), "user-1", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected reused token to be rejected, got %v", err)
	}
}

func TestConfirmEmailMissingInputs(t *testing.T) {
	h := newHarness(true, existingUser("user-1", "alice", "alice@example.com", false))

	for _, tc := range []struct{ userID, token string }{{"", "x"}, {"user-1", ""}, {"ghost", "x"}} {
		if _, err := h.admin.ConfirmEmail(context.Background(), tc.userID, tc.token); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("ConfirmEmail(%q,%q): expected ErrUserNotFound, got %v", tc.userID, tc.token, err)
		}
	}
}

func TestForgotPasswordOnlyMailsConfirmedUsers(t *testing.T) {
	h := newHarness(true,
		existingUser("user-1", "alice", "alice@example.com", true),
		existingUser("user-2", "bob", "bob@example.com", false),
	)

	h.admin.ForgotPassword(context.Background(), "nobody@example.com")
	h.admin.ForgotPassword(context.Background(), "bob@example.com")
	if len(h.mailer.sent) != 0 {
		t.Fatalf("expected no email for unknown or unconfirmed addresses, got %d", len(h.mailer.sent))
	}

	h.admin.ForgotPassword(context.Background(), " ALICE@example.com ")
	if len(h.mailer.sent) != 1 || h.mailer.sent[0].template != domain.EmailTemplatePasswordReset {
		t.Fatalf("expected reset email, got %+v", h.mailer.sent)
	}
	if !strings.HasPrefix(h.mailer.sent[0].data["callback_url"].(string), testAppURL+"/Account/ResetPassword/user-1?token=") {
		t.Fatalf("unexpected callback %v", h.mailer.sent[0].data["callback_url"])
	}
}

func TestResetPasswordFlow(t *testing.T) {
	h := newHarness(false, existingUser("user-1", "alice", "alice@example.com", true))
	if _, err := h.signIn.SignIn(context.Background(), h.users.users["user-1"], false); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}

	h.admin.ForgotPassword(context.Background(), "alice@example.com")
	token := tokenFromCallback(t, h.mailer.sent[0])

	if err := h.admin.ResetPassword(context.Background(), "user-1", token, "weak"); err == nil {
		t.Fatal("expected policy violation")
	} else {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			t.Fatalf("expected DomainError, got %v", err)
		}
	}

	newPassword := "N3w!Different#Secret42"
	if err := h.admin.ResetPassword(context.Background(), "user-1", token, newPassword); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	ok, err := security.VerifyPassword(newPassword, h.users.users["user-1"].PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password to verify, ok=%v err=%v", ok, err)
	}
	if len(h.sessions.sessions) != 0 {
		t.Fatal("expected existing sessions revoked")
	}
	last := h.mailer.sent[len(h.mailer.sent)-1]
	if last.template != domain.EmailTemplatePasswordResetConfirmation {
		t.Fatalf("expected confirmation email, got %s", last.template)
	}
	if len(h.events.passwords) != 1 || h.events.passwords[0].SessionsRevoked != 1 {
		t.Fatalf("unexpected password events %+v", h.events.passwords)
	}

	if err := h.admin.ResetPassword(context.Background(), "user-1", token, "An0ther!Fresh#Secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected reused reset token to be rejected, got %v", err)
	}
	if err := h.admin.ResetPassword(context.Background(), "ghost", token, newPassword); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminResetPasswordSkipsCurrentPassword(t *testing.T) {
	h := newHarness(false, existingUser("user-1", "alice", "alice@example.com", true))

	newPassword := "Adm1n!Chosen#Secret"
	if err := h.admin.AdminResetPassword(context.Background(), adminActorID, "user-1", newPassword); err != nil {
		t.Fatalf("AdminResetPassword returned error: %v", err)
	}
	ok, _ := security.VerifyPassword(newPassword, h.users.users["user-1"].PasswordHash)
	if !ok {
		t.Fatal("expected admin-chosen password to verify")
	}
	if h.events.passwords[0].ChangedBy != adminActorID || h.events.passwords[0].Method != passwordChangeMethodAdmin {
		t.Fatalf("unexpected event %+v", h.events.passwords[0])
	}

	if err := h.admin.AdminResetPassword(context.Background(), adminActorID, "ghost", newPassword); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	err := h.admin.AdminResetPassword(context.Background(), adminActorID, "user-1", "short")
	if err == nil || !strings.Contains(err.Error(), "at least 10 characters") {
		t.Fatalf("expected raw policy message, got %v", err)
	}
}

func TestAdminUpdateReconcilesRoles(t *testing.T) {
	h := newHarness(false, existingUser("user-1", "alice", "alice@example.com", true))
	h.roles.assign("user-1", "A", "B")
	h.claims.claims["user-1"] = map[string]string{"IsA": "true", "IsB": "true"}
	if _, err := h.signIn.SignIn(context.Background(), h.users.users["user-1"], false); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}

	result, err := h.admin.Update(context.Background(), adminActorID, AdminUpdateInput{
		ID:        "user-1",
		Username:  "alice",
		FirstName: "Alice",
		LastName:  "Liddell",
		Email:     "alice@example.com",
		Roles:     []string{"B", "C"},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if !reflect.DeepEqual(result.RolesAdded, []string{"C"}) || !reflect.DeepEqual(result.RolesRemoved, []string{"A"}) {
		t.Fatalf("unexpected diff: added=%v removed=%v", result.RolesAdded, result.RolesRemoved)
	}

	members := h.roles.memberships["user-1"]
	var got []string
	for id := range members {
		got = append(got, id)
	}
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"role-B", "role-C"}) {
		t.Fatalf("unexpected memberships %v", got)
	}

	if h.claims.has("user-1", "IsA") {
		t.Fatal("expected IsA claim removed")
	}
	if !h.claims.has("user-1", "IsB") || !h.claims.has("user-1", "IsC") {
		t.Fatal("expected IsB kept and IsC added")
	}
	if !h.claims.has("user-1", domain.ClaimFamilyName) {
		t.Fatal("expected family_name claim synced")
	}
	if h.users.users["user-1"].LastName != "Liddell" {
		t.Fatal("expected profile fields updated")
	}
	if len(h.sessions.sessions) != 0 {
		t.Fatal("expected sessions revoked after role change")
	}
	if len(h.events.assigned) != 1 || len(h.events.revoked) != 1 {
		t.Fatalf("expected role events, got assigned=%d revoked=%d", len(h.events.assigned), len(h.events.revoked))
	}
}

func TestAdminUpdateWithSameRolesKeepsSessions(t *testing.T) {
	h := newHarness(false, existingUser("user-1", "alice", "alice@example.com", true))
	h.roles.assign("user-1", "A", "B")
	h.claims.claims["user-1"] = map[string]string{"IsA": "true", "IsB": "true"}
	if _, err := h.signIn.SignIn(context.Background(), h.users.users["user-1"], false); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	h.roles.addErr = errBoom

	result, err := h.admin.Update(context.Background(), adminActorID, AdminUpdateInput{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []string{"b", "a"},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if len(result.RolesAdded) != 0 || len(result.RolesRemoved) != 0 {
		t.Fatalf("expected no role changes, got added=%v removed=%v", result.RolesAdded, result.RolesRemoved)
	}
	if len(h.sessions.sessions) == 0 {
		t.Fatal("expected sessions kept when roles are unchanged")
	}
	if len(h.events.assigned) != 0 || len(h.events.revoked) != 0 {
		t.Fatal("expected no role events")
	}
}

func TestAdminUpdateReportsPhasesIndependently(t *testing.T) {
	h := newHarness(false, existingUser("user-1", "alice", "alice@example.com", true))
	h.users.updateErr = errBoom

	if _, err := h.admin.Update(context.Background(), adminActorID, AdminUpdateInput{ID: "user-1", Roles: []string{"A"}}); !errors.Is(err, ErrProfileUpdateFailed) {
		t.Fatalf("expected ErrProfileUpdateFailed, got %v", err)
	}
	if h.tx.runs != 1 {
		t.Fatalf("expected role phase skipped, got %d transactions", h.tx.runs)
	}

	h.users.updateErr = nil
	h.roles.addErr = errBoom
	if _, err := h.admin.Update(context.Background(), adminActorID, AdminUpdateInput{ID: "user-1", Roles: []string{"A"}}); !errors.Is(err, ErrRoleUpdateFailed) {
		t.Fatalf("expected ErrRoleUpdateFailed, got %v", err)
	}

	if _, err := h.admin.Update(context.Background(), adminActorID, AdminUpdateInput{ID: "ghost"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminDeleteRemovesApiLogsBeforeUser(t *testing.T) {
	h := newHarness(false,
		existingUser("user-1", "alice", "alice@example.com", true),
		existingUser("user-2", "bob", "bob@example.com", true),
	)
	owner, other := "user-1", "user-2"
	h.apiLogs.entries = []domain.ApiLogEntry{
		{ID: 1, UserID: &owner, Path: "/a"},
		{ID: 2, UserID: &other, Path: "/b"},
		{ID: 3, UserID: &owner, Path: "/c"},
		{ID: 4, Path: "/anonymous"},
	}

	if err := h.admin.Delete(context.Background(), adminActorID, "user-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if !reflect.DeepEqual(h.users.calls, []string{"apiLogs.DeleteByUser", "users.Delete"}) {
		t.Fatalf("unexpected call order %v", h.users.calls)
	}
	if h.tx.runs != 1 {
		t.Fatalf("expected a single transaction, got %d", h.tx.runs)
	}
	for _, entry := range h.apiLogs.entries {
		if entry.UserID != nil && *entry.UserID == owner {
			t.Fatal("orphaned api log entry left behind")
		}
	}
	if len(h.apiLogs.entries) != 2 {
		t.Fatalf("expected other entries kept, got %d", len(h.apiLogs.entries))
	}
	if h.events.deleted[0].ApiLogsRemoved != 2 {
		t.Fatalf("expected 2 removed logs on event, got %d", h.events.deleted[0].ApiLogsRemoved)
	}

	if err := h.admin.Delete(context.Background(), adminActorID, "user-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on second delete, got %v", err)
	}
}

func TestUpdateSelf(t *testing.T) {
	h := newHarness(false,
		existingUser("user-1", "alice", "alice@example.com", true),
		existingUser("user-2", "bob", "bob@example.com", true),
	)

	updated, err := h.admin.UpdateSelf(context.Background(), "user-1", SelfUpdateInput{
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "",
	})
	if err != nil {
		t.Fatalf("UpdateSelf returned error: %v", err)
	}
	if updated.FirstName != "Alice" || !h.claims.has("user-1", domain.ClaimGivenName) {
		t.Fatal("expected first name and claim updated")
	}
	if h.claims.has("user-1", domain.ClaimFamilyName) {
		t.Fatal("expected empty last name to drop family_name claim")
	}

	if _, err := h.admin.UpdateSelf(context.Background(), "user-1", SelfUpdateInput{Email: "bob@example.com"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected other users to be invisible, got %v", err)
	}
	if _, err := h.admin.UpdateSelf(context.Background(), "user-1", SelfUpdateInput{Email: "ghost@example.com"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListUsersPagesAndStripsSecrets(t *testing.T) {
	h := newHarness(false,
		existingUser("user-1", "alice", "alice@example.com", true),
		existingUser("user-2", "bob", "bob@example.com", true),
		existingUser("user-3", "carol", "carol@example.com", true),
	)
	h.roles.assign("user-2", domain.RoleAdministrator)

	page, err := h.admin.ListUsers(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if page.Total != 3 || len(page.Users) != 1 || page.Users[0].User.Username != "carol" {
		t.Fatalf("unexpected page %+v", page)
	}

	first, err := h.admin.ListUsers(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if first.Page != 1 || first.PageSize != defaultUserPageSize {
		t.Fatalf("expected defaults, got page=%d size=%d", first.Page, first.PageSize)
	}
	for _, summary := range first.Users {
		if summary.User.PasswordHash != "" || summary.User.SecurityStamp != "" {
			t.Fatal("expected secrets stripped")
		}
	}
	if !reflect.DeepEqual(first.Users[1].Roles, []string{domain.RoleAdministrator}) {
		t.Fatalf("expected bob to be administrator, got %v", first.Users[1].Roles)
	}
}
