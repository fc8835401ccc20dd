package domain

import "strings"

const (
	// RoleAdministrator grants access to admin-only endpoints via its mirrored claim.
	RoleAdministrator = "Administrator"
	// RoleUser is assigned to every account on creation.
	RoleUser = "User"

	// RoleClaimPrefix prefixes the boolean claim mirrored for every assigned role.
	RoleClaimPrefix = "Is"
	// ClaimValueTrue is the value carried by mirrored role claims.
	ClaimValueTrue = "true"

	ClaimGivenName  = "given_name"
	ClaimFamilyName = "family_name"
	ClaimEmail      = "email"

	// PolicyAdmin is the claim type checked by the admin policy.
	PolicyAdmin = RoleClaimPrefix + RoleAdministrator
)

// Role is a named group of users.
type Role struct {
	ID   string
	Name string
}

// Claim is a typed key/value fact attached to a user.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RoleClaimType returns the mirrored claim type for the given role name.
func RoleClaimType(role string) string {
	return RoleClaimPrefix + strings.TrimSpace(role)
}

// RoleFromClaim extracts the role name from a mirrored claim. ok is false for other claims.
func RoleFromClaim(claim Claim) (string, bool) {
	if !strings.HasPrefix(claim.Type, RoleClaimPrefix) || len(claim.Type) == len(RoleClaimPrefix) {
		return "", false
	}
	if !strings.EqualFold(claim.Value, ClaimValueTrue) {
		return "", false
	}
	return strings.TrimPrefix(claim.Type, RoleClaimPrefix), true
}

// RoleDiff is the outcome of reconciling a user's current roles against a target set.
type RoleDiff struct {
	Add    []string
	Remove []string
}

// Empty reports whether the diff changes nothing.
func (d RoleDiff) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// DiffRoles computes which roles must be added and removed to move from current to target.
// Comparison is case-insensitive; output preserves the input order and spelling.
func DiffRoles(current, target []string) RoleDiff {
	currentSet := make(map[string]struct{}, len(current))
	for _, role := range current {
		currentSet[NormalizeName(role)] = struct{}{}
	}
	targetSet := make(map[string]struct{}, len(target))
	for _, role := range target {
		targetSet[NormalizeName(role)] = struct{}{}
	}

	var diff RoleDiff
	seen := make(map[string]struct{}, len(target))
	for _, role := range target {
		key := NormalizeName(role)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := currentSet[key]; !ok {
			diff.Add = append(diff.Add, strings.TrimSpace(role))
		}
	}
	for _, role := range current {
		if _, ok := targetSet[NormalizeName(role)]; !ok {
			diff.Remove = append(diff.Remove, role)
		}
	}
	return diff
}
