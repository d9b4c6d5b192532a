package normalize

import (
	"permsync/internal/domain"
	"permsync/internal/extract"
)

// MySQL maps a raw MySQL account to PermissionFacts.
//
// Activity signal: account_locked = 'Y' means locked, so active is the
// inverse. Superuser is the SUPER privilege flag or an explicit SUPER
// entry in the global privilege list.
func MySQL(instanceID string, a extract.MySQLAccount) *domain.PermissionFacts {
	super := a.SuperPriv
	for _, p := range a.GlobalPrivs {
		if p == "SUPER" {
			super = true
		}
	}
	return &domain.PermissionFacts{
		InstanceID:    instanceID,
		Engine:        domain.EngineMySQL,
		Username:      a.User,
		Host:          a.Host,
		IsSuperuser:   super,
		IsActive:      !a.AccountLocked,
		GlobalPrivs:   copyStrings(a.GlobalPrivs),
		DatabasePrivs: copyStringsMap(a.DatabasePrivs),
		Roles:         copyStrings(a.Roles),
	}
}
