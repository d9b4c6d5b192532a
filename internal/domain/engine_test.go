package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngine(t *testing.T) {
	for _, e := range Engines {
		parsed, err := ParseEngine(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}

	_, err := ParseEngine("mariadb")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestEngineAccountKey(t *testing.T) {
	assert.Equal(t, "app@10.0.%", EngineMySQL.AccountKey("app", "10.0.%"))
	assert.Equal(t, "deploy", EnginePostgres.AccountKey("deploy", ""))
	assert.Equal(t, "svc", EngineSQLServer.AccountKey("svc", "ignored"))
	assert.Equal(t, "HR", EngineOracle.AccountKey("HR", ""))
}

func TestPermissionFactsCanonicalize(t *testing.T) {
	f := &PermissionFacts{
		GlobalPrivs:   []string{"SELECT", "INSERT", "DELETE"},
		Roles:         []string{"z_role", "a_role"},
		DatabasePrivs: map[string][]string{"sales": {"UPDATE", "CONNECT"}},
		DatabaseRoles: map[string][]string{"warehouse": {"writer", "reader"}},
	}
	f.Canonicalize()

	assert.Equal(t, []string{"DELETE", "INSERT", "SELECT"}, f.GlobalPrivs)
	assert.Equal(t, []string{"a_role", "z_role"}, f.Roles)
	assert.Equal(t, []string{"CONNECT", "UPDATE"}, f.DatabasePrivs["sales"])
	assert.Equal(t, []string{"reader", "writer"}, f.DatabaseRoles["warehouse"])
}

func TestPageRequest(t *testing.T) {
	assert.Equal(t, 50, PageRequest{}.Limit())
	assert.Equal(t, 500, PageRequest{PageSize: 9999}.Limit())
	assert.Equal(t, 20, PageRequest{PageSize: 20}.Limit())

	assert.Equal(t, 0, PageRequest{Page: 0}.Offset())
	assert.Equal(t, 0, PageRequest{Page: 1}.Offset())
	assert.Equal(t, 40, PageRequest{Page: 3, PageSize: 20}.Offset())
}

func TestFactsDiffClassification(t *testing.T) {
	t.Run("nil_is_empty", func(t *testing.T) {
		var d *FactsDiff
		assert.True(t, d.Empty())
		assert.False(t, d.PrivilegeBearing())
	})

	t.Run("roles_are_privilege_bearing", func(t *testing.T) {
		d := &FactsDiff{Roles: &CategoryDiff{Added: []string{"dba"}}}
		assert.True(t, d.PrivilegeBearing())
		assert.False(t, d.Empty())
	})

	t.Run("extras_are_not_privilege_bearing", func(t *testing.T) {
		d := &FactsDiff{Extras: &CategoryDiff{Added: []string{"k=v"}}}
		assert.False(t, d.PrivilegeBearing())
		assert.False(t, d.Empty())
	})

	t.Run("active_flag_is_not_privilege_bearing", func(t *testing.T) {
		d := &FactsDiff{Active: &FlagChange{Old: true, New: false}}
		assert.False(t, d.PrivilegeBearing())
		assert.False(t, d.Empty())
	})

	t.Run("superuser_flag_is_privilege_bearing", func(t *testing.T) {
		d := &FactsDiff{Superuser: &FlagChange{Old: false, New: true}}
		assert.True(t, d.PrivilegeBearing())
	})
}

func TestErrorUnwrap(t *testing.T) {
	inner := ErrValidation("boom")

	assert.ErrorIs(t, &ExtractionError{Err: inner}, inner)
	assert.ErrorIs(t, &NormalizationError{Err: inner}, inner)
	assert.ErrorIs(t, &RuleExpressionError{Err: inner}, inner)
}

func TestNewIDIsSortable(t *testing.T) {
	// UUIDv7 ids are time-ordered, which keeps creation-order queries
	// stable without extra sequence columns.
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, a, b)
}
