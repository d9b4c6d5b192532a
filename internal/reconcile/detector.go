// Package reconcile implements the permission reconciliation engine:
// change detection between live and stored account facts, and the
// per-instance sync orchestration that persists the results.
package reconcile

import (
	"fmt"
	"sort"

	"permsync/internal/domain"
)

// DetectChanges diffs the normalized remote facts against the stored local
// facts for one instance and returns the write work, in stable account-key
// order. Exactly one change-log entry is produced per account with a
// detected change; unchanged accounts yield a timestamp refresh only.
func DetectChanges(remote, local []*domain.PermissionFacts, sessionID string) []*domain.AccountChange {
	remoteByKey := make(map[string]*domain.PermissionFacts, len(remote))
	for _, f := range remote {
		remoteByKey[f.AccountKey()] = f
	}
	localByKey := make(map[string]*domain.PermissionFacts, len(local))
	for _, f := range local {
		localByKey[f.AccountKey()] = f
	}

	keys := make([]string, 0, len(remoteByKey)+len(localByKey))
	for k := range remoteByKey {
		keys = append(keys, k)
	}
	for k := range localByKey {
		if _, ok := remoteByKey[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var changes []*domain.AccountChange
	for _, key := range keys {
		r, inRemote := remoteByKey[key]
		l, inLocal := localByKey[key]

		switch {
		case inRemote && !inLocal:
			changes = append(changes, &domain.AccountChange{
				Kind:  domain.ChangeAdd,
				Facts: r,
				Entry: newEntry(r, domain.ChangeAdd, nil, sessionID),
			})
		case !inRemote && inLocal:
			// Soft delete; a later reappearance starts a fresh add
			// lifecycle rather than reversing this one.
			changes = append(changes, &domain.AccountChange{
				Kind:  domain.ChangeDelete,
				Facts: l,
				Entry: newEntry(l, domain.ChangeDelete, nil, sessionID),
			})
		default:
			diff := diffFacts(l, r)
			if diff.Empty() {
				changes = append(changes, &domain.AccountChange{Facts: l})
				continue
			}
			kind := domain.ChangeModifyOther
			if diff.PrivilegeBearing() {
				kind = domain.ChangeModifyPrivilege
			}
			// Carry the stored row identity onto the updated facts.
			r.ID = l.ID
			r.CreatedAt = l.CreatedAt
			changes = append(changes, &domain.AccountChange{
				Kind:  kind,
				Facts: r,
				Entry: newEntry(r, kind, diff, sessionID),
			})
		}
	}
	return changes
}

func newEntry(f *domain.PermissionFacts, kind domain.ChangeType, diff *domain.FactsDiff, sessionID string) *domain.ChangeLogEntry {
	return &domain.ChangeLogEntry{
		InstanceID: f.InstanceID,
		Engine:     f.Engine,
		AccountKey: f.AccountKey(),
		Username:   f.Username,
		ChangeType: kind,
		Diff:       diff,
		SessionID:  sessionID,
	}
}

// diffFacts compares every permission category plus the superuser and
// active flags. Both inputs must be canonicalized.
func diffFacts(old, new *domain.PermissionFacts) *domain.FactsDiff {
	d := &domain.FactsDiff{
		Global:        diffCategory(old.GlobalPrivs, new.GlobalPrivs),
		Databases:     diffMap(old.DatabasePrivs, new.DatabasePrivs),
		Roles:         diffCategory(old.Roles, new.Roles),
		DatabaseRoles: diffMap(old.DatabaseRoles, new.DatabaseRoles),
		Tablespaces:   diffCategory(kvSlice(old.TablespaceQuotas), kvSlice(new.TablespaceQuotas)),
		Extras:        diffCategory(kvSlice(old.Extras), kvSlice(new.Extras)),
	}
	if old.IsSuperuser != new.IsSuperuser {
		d.Superuser = &domain.FlagChange{Old: old.IsSuperuser, New: new.IsSuperuser}
	}
	if old.IsActive != new.IsActive {
		d.Active = &domain.FlagChange{Old: old.IsActive, New: new.IsActive}
	}
	return d
}

// diffCategory computes added/removed items between two sorted sets.
func diffCategory(old, new []string) *domain.CategoryDiff {
	oldSet := make(map[string]struct{}, len(old))
	for _, s := range old {
		oldSet[s] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(new))
	for _, s := range new {
		newSet[s] = struct{}{}
	}

	var d domain.CategoryDiff
	for _, s := range new {
		if _, ok := oldSet[s]; !ok {
			d.Added = append(d.Added, s)
		}
	}
	for _, s := range old {
		if _, ok := newSet[s]; !ok {
			d.Removed = append(d.Removed, s)
		}
	}
	if d.Empty() {
		return nil
	}
	return &d
}

func diffMap(old, new map[string][]string) map[string]*domain.CategoryDiff {
	out := make(map[string]*domain.CategoryDiff)
	for db, newItems := range new {
		if cd := diffCategory(old[db], newItems); cd != nil {
			out[db] = cd
		}
	}
	for db, oldItems := range old {
		if _, ok := new[db]; !ok {
			if cd := diffCategory(oldItems, nil); cd != nil {
				out[db] = cd
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// kvSlice renders a string map as sorted "key=value" items so map-valued
// categories reuse the set diff.
func kvSlice(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
