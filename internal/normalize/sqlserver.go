package normalize

import (
	"permsync/internal/domain"
	"permsync/internal/extract"
)

// SQLServer maps a raw SQL Server login to PermissionFacts.
//
// Activity signal: is_disabled = 1 means the login cannot connect, so
// active is the inverse. Superuser is sysadmin fixed-role membership.
func SQLServer(instanceID string, a extract.SQLServerAccount) *domain.PermissionFacts {
	super := false
	for _, r := range a.ServerRoles {
		if r == "sysadmin" {
			super = true
		}
	}
	return &domain.PermissionFacts{
		InstanceID:    instanceID,
		Engine:        domain.EngineSQLServer,
		Username:      a.LoginName,
		IsSuperuser:   super,
		IsActive:      !a.Disabled,
		GlobalPrivs:   copyStrings(a.ServerPerms),
		Roles:         copyStrings(a.ServerRoles),
		DatabaseRoles: copyStringsMap(a.DatabaseRoles),
	}
}
