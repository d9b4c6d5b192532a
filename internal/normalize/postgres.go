package normalize

import (
	"time"

	"permsync/internal/domain"
	"permsync/internal/extract"
)

// Postgres maps a raw PostgreSQL role to PermissionFacts.
//
// Role attributes become global-scope privileges. Activity signal:
// rolcanlogin must be true and rolvaliduntil, if set, must be in the
// future. The expiry timestamp is preserved in the extension map.
func Postgres(instanceID string, a extract.PostgresAccount, now time.Time) *domain.PermissionFacts {
	var global []string
	if a.Super {
		global = append(global, "SUPERUSER")
	}
	if a.CreateRole {
		global = append(global, "CREATEROLE")
	}
	if a.CreateDB {
		global = append(global, "CREATEDB")
	}
	if a.Replication {
		global = append(global, "REPLICATION")
	}
	if a.BypassRLS {
		global = append(global, "BYPASSRLS")
	}
	if a.CanLogin {
		global = append(global, "LOGIN")
	}

	active := a.CanLogin
	var extras map[string]string
	if a.ValidUntil != nil {
		if !a.ValidUntil.After(now) {
			active = false
		}
		extras = map[string]string{"valid_until": a.ValidUntil.UTC().Format(time.RFC3339)}
	}

	return &domain.PermissionFacts{
		InstanceID:    instanceID,
		Engine:        domain.EnginePostgres,
		Username:      a.RolName,
		IsSuperuser:   a.Super,
		IsActive:      active,
		GlobalPrivs:   global,
		DatabasePrivs: copyStringsMap(a.DatabasePrivs),
		Roles:         copyStrings(a.MemberOf),
		Extras:        extras,
	}
}
