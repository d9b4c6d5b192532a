// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"permsync/internal/domain"
)

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: "resource already exists"}
	}
	return err
}

// JSON column helpers. Empty collections round-trip as "[]"/"{}" so the
// NOT NULL defaults in the schema stay meaningful.

func marshalStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func marshalStringsMap(v map[string][]string) string {
	if len(v) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStringsMap(s string) map[string][]string {
	if s == "" || s == "{}" {
		return nil
	}
	var v map[string][]string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func marshalKV(v map[string]string) string {
	if len(v) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalKV(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var v map[string]string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}
