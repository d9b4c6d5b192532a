package domain

import "time"

// ChangeType classifies a detected account change.
type ChangeType string

const (
	ChangeAdd             ChangeType = "add"
	ChangeModifyPrivilege ChangeType = "modify_privilege"
	ChangeModifyOther     ChangeType = "modify_other"
	ChangeDelete          ChangeType = "delete"
)

// CategoryDiff records the added and removed items within one permission
// category between two sync cycles.
type CategoryDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d *CategoryDiff) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0)
}

// FlagChange records an old/new transition of a boolean account flag.
type FlagChange struct {
	Old bool `json:"old"`
	New bool `json:"new"`
}

// FactsDiff is the per-category diff payload attached to a change-log
// entry with change type modify_privilege or modify_other. For add and
// delete entries the payload is nil.
type FactsDiff struct {
	Global        *CategoryDiff            `json:"global,omitempty"`
	Databases     map[string]*CategoryDiff `json:"databases,omitempty"`
	Roles         *CategoryDiff            `json:"roles,omitempty"`
	DatabaseRoles map[string]*CategoryDiff `json:"database_roles,omitempty"`
	Tablespaces   *CategoryDiff            `json:"tablespaces,omitempty"`
	Extras        *CategoryDiff            `json:"extras,omitempty"`
	Superuser     *FlagChange              `json:"superuser,omitempty"`
	Active        *FlagChange              `json:"active,omitempty"`
}

// PrivilegeBearing reports whether the diff touches a privilege or role
// carrying category, which upgrades the change type to modify_privilege.
func (d *FactsDiff) PrivilegeBearing() bool {
	if d == nil {
		return false
	}
	if !d.Global.Empty() || !d.Roles.Empty() || !d.Tablespaces.Empty() {
		return true
	}
	for _, cd := range d.Databases {
		if !cd.Empty() {
			return true
		}
	}
	for _, cd := range d.DatabaseRoles {
		if !cd.Empty() {
			return true
		}
	}
	return d.Superuser != nil
}

// Empty reports whether no category changed at all.
func (d *FactsDiff) Empty() bool {
	if d == nil {
		return true
	}
	return !d.PrivilegeBearing() && d.Extras.Empty() && d.Active == nil
}

// ChangeLogEntry is one immutable, append-only record of a detected
// account change. Entries are never updated or deleted.
type ChangeLogEntry struct {
	ID         string
	InstanceID string
	Engine     Engine
	AccountKey string
	Username   string
	ChangeType ChangeType
	Diff       *FactsDiff
	SessionID  string
	CreatedAt  time.Time
}
