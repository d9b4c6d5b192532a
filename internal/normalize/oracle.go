package normalize

import (
	"permsync/internal/domain"
	"permsync/internal/extract"
)

// Oracle maps a raw Oracle user to PermissionFacts.
//
// Activity signal: only account_status OPEN can log in; LOCKED, EXPIRED,
// and their combinations all count as inactive. The raw status string and
// default tablespace are preserved in the extension map. Superuser is DBA
// role membership.
func Oracle(instanceID string, a extract.OracleAccount) *domain.PermissionFacts {
	super := false
	for _, r := range a.Roles {
		if r == "DBA" {
			super = true
		}
	}

	extras := map[string]string{"account_status": a.AccountStatus}
	if a.DefaultTablespace != "" {
		extras["default_tablespace"] = a.DefaultTablespace
	}

	return &domain.PermissionFacts{
		InstanceID:       instanceID,
		Engine:           domain.EngineOracle,
		Username:         a.Username,
		IsSuperuser:      super,
		IsActive:         a.AccountStatus == "OPEN",
		GlobalPrivs:      copyStrings(a.SysPrivs),
		Roles:            copyStrings(a.Roles),
		TablespaceQuotas: copyKV(a.TablespaceQuotas),
		Extras:           extras,
	}
}
