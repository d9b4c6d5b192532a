package domain

import (
	"sort"
	"time"
)

// PermissionFacts is the normalized permission snapshot for one account on
// one instance. Exactly one live (non-deleted) row exists per
// (instance_id, account_key); soft-deleted rows are retained for audit.
type PermissionFacts struct {
	ID         string
	InstanceID string
	Engine     Engine
	Username   string
	Host       string // MySQL only; empty elsewhere

	IsSuperuser bool
	IsActive    bool

	// GlobalPrivs holds global/server-scope privileges (MySQL global
	// privileges, PostgreSQL role attributes, SQL Server server
	// permissions, Oracle system privileges).
	GlobalPrivs []string

	// DatabasePrivs maps database name to the privileges held on it.
	DatabasePrivs map[string][]string

	// Roles holds server-level role memberships (PostgreSQL member-of,
	// SQL Server server roles, Oracle granted roles).
	Roles []string

	// DatabaseRoles maps database name to role memberships within it
	// (SQL Server database roles).
	DatabaseRoles map[string][]string

	// TablespaceQuotas maps tablespace name to quota (Oracle).
	TablespaceQuotas map[string]string

	// Extras carries engine quirks that have no normalized category,
	// as opaque key/value pairs.
	Extras map[string]string

	Deleted    bool
	DeletedAt  *time.Time
	LastSyncAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AccountKey returns the per-engine identity key for this account.
func (f *PermissionFacts) AccountKey() string {
	return f.Engine.AccountKey(f.Username, f.Host)
}

// Canonicalize sorts every privilege and role slice in place so that two
// semantically equal facts compare equal field by field. Diffing and
// fact comparison assume canonical ordering.
func (f *PermissionFacts) Canonicalize() {
	sort.Strings(f.GlobalPrivs)
	sort.Strings(f.Roles)
	for _, privs := range f.DatabasePrivs {
		sort.Strings(privs)
	}
	for _, roles := range f.DatabaseRoles {
		sort.Strings(roles)
	}
}

// HasGlobalPriv reports whether the account holds the given global/server
// scope privilege.
func (f *PermissionFacts) HasGlobalPriv(priv string) bool {
	return containsString(f.GlobalPrivs, priv)
}

// HasRole reports whether the account holds the given server-level role.
func (f *PermissionFacts) HasRole(role string) bool {
	return containsString(f.Roles, role)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
