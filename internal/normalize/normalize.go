// Package normalize maps raw per-engine account payloads into the common
// PermissionFacts model. All functions are pure: no I/O, no clock reads
// beyond the caller-supplied timestamp.
package normalize

import (
	"fmt"
	"time"

	"permsync/internal/domain"
	"permsync/internal/extract"
)

// Account maps one raw record to PermissionFacts. now is used only to
// evaluate expiry-based activity signals so the mapping stays referentially
// transparent.
func Account(instanceID string, rec extract.Record, now time.Time) (*domain.PermissionFacts, error) {
	var f *domain.PermissionFacts
	switch r := rec.(type) {
	case extract.MySQLAccount:
		f = MySQL(instanceID, r)
	case extract.PostgresAccount:
		f = Postgres(instanceID, r, now)
	case extract.SQLServerAccount:
		f = SQLServer(instanceID, r)
	case extract.OracleAccount:
		f = Oracle(instanceID, r)
	default:
		return nil, fmt.Errorf("unsupported raw record type %T", rec)
	}
	f.Canonicalize()
	return f, nil
}

func copyStrings(v []string) []string {
	if len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

func copyStringsMap(v map[string][]string) map[string][]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string][]string, len(v))
	for k, s := range v {
		out[k] = copyStrings(s)
	}
	return out
}

func copyKV(v map[string]string) map[string]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string]string, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}
