package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permsync/internal/domain"
)

func TestParse(t *testing.T) {
	t.Run("valid_and_expression", func(t *testing.T) {
		expr, err := Parse(`{
			"operator": "AND",
			"required": [
				{"scope": "global", "privileges": ["SELECT", "INSERT"]},
				{"scope": "role", "roles": ["pg_monitor"]}
			]
		}`)
		require.NoError(t, err)
		assert.Equal(t, OpAnd, expr.Operator)
		assert.Len(t, expr.Required, 2)
		assert.Equal(t, ScopeGlobal, expr.Required[0].Scope)
		assert.Equal(t, []string{"SELECT", "INSERT"}, expr.Required[0].Privileges)
	})

	t.Run("valid_with_exclusions", func(t *testing.T) {
		expr, err := Parse(`{
			"operator": "OR",
			"required": [{"scope": "global", "privileges": ["SELECT"]}],
			"excluded": [{"scope": "global", "privilege": "SUPER"}]
		}`)
		require.NoError(t, err)
		assert.Len(t, expr.Excluded, 1)
		assert.Equal(t, "SUPER", expr.Excluded[0].Privilege)
	})

	t.Run("database_scoped_group", func(t *testing.T) {
		expr, err := Parse(`{
			"operator": "AND",
			"required": [{"scope": "database", "database": "sales", "privileges": ["SELECT"]}]
		}`)
		require.NoError(t, err)
		assert.Equal(t, "sales", expr.Required[0].Database)
	})

	t.Run("rejects_malformed_json", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND"`)
		assert.Error(t, err)
	})

	t.Run("rejects_unknown_operator", func(t *testing.T) {
		_, err := Parse(`{"operator": "XOR", "required": [{"scope": "global", "privileges": ["SELECT"]}]}`)
		assert.ErrorContains(t, err, "operator")
	})

	t.Run("rejects_empty_required", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND", "required": []}`)
		assert.ErrorContains(t, err, "no required condition groups")
	})

	t.Run("rejects_unknown_scope", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND", "required": [{"scope": "table", "privileges": ["SELECT"]}]}`)
		assert.ErrorContains(t, err, "unknown scope")
	})

	t.Run("rejects_empty_group", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND", "required": [{"scope": "global"}]}`)
		assert.ErrorContains(t, err, "empty condition group")
	})

	t.Run("rejects_unknown_fields", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND", "required": [{"scope": "global", "privilege": ["SELECT"]}]}`)
		assert.Error(t, err)
	})

	t.Run("rejects_role_scope_without_roles", func(t *testing.T) {
		// Privileges on a role-scoped group would leave nothing to check
		// against role membership, matching every account.
		_, err := Parse(`{"operator": "OR", "required": [{"scope": "role", "privileges": ["SELECT"]}]}`)
		assert.ErrorContains(t, err, "role scope needs roles")
	})

	t.Run("rejects_database_role_scope_without_roles", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND", "required": [{"scope": "database_role", "privileges": ["SELECT"]}]}`)
		assert.ErrorContains(t, err, "database_role scope needs roles")
	})

	t.Run("rejects_database_scope_without_privileges", func(t *testing.T) {
		_, err := Parse(`{"operator": "AND", "required": [{"scope": "database", "roles": ["writer"]}]}`)
		assert.ErrorContains(t, err, "database scope needs privileges")
	})

	t.Run("rejects_fields_foreign_to_scope", func(t *testing.T) {
		cases := map[string]string{
			"role_with_privileges":       `{"scope": "role", "roles": ["dba"], "privileges": ["SELECT"]}`,
			"global_with_tablespaces":    `{"scope": "global", "privileges": ["SELECT"], "tablespaces": ["USERS"]}`,
			"global_with_database":       `{"scope": "global", "privileges": ["SELECT"], "database": "sales"}`,
			"tablespace_with_roles":      `{"scope": "tablespace", "tablespaces": ["USERS"], "roles": ["dba"]}`,
			"database_with_tablespaces":  `{"scope": "database", "privileges": ["SELECT"], "tablespaces": ["USERS"]}`,
			"database_role_with_privs":   `{"scope": "database_role", "roles": ["writer"], "privileges": ["SELECT"]}`,
		}
		for name, group := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := Parse(`{"operator": "AND", "required": [` + group + `]}`)
				assert.Error(t, err)
			})
		}
	})

	t.Run("rejects_excluded_item_foreign_to_scope", func(t *testing.T) {
		cases := map[string]string{
			"role_with_privilege":      `{"scope": "role", "privilege": "SUPER"}`,
			"database_with_role":       `{"scope": "database", "role": "writer"}`,
			"tablespace_with_role":     `{"scope": "tablespace", "tablespace": "USERS", "role": "dba"}`,
			"database_role_with_priv":  `{"scope": "database_role", "privilege": "SELECT"}`,
		}
		for name, item := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := Parse(`{
					"operator": "AND",
					"required": [{"scope": "global", "privileges": ["SELECT"]}],
					"excluded": [` + item + `]
				}`)
				assert.Error(t, err)
			})
		}
	})

	t.Run("rejects_empty_excluded_item", func(t *testing.T) {
		_, err := Parse(`{
			"operator": "AND",
			"required": [{"scope": "global", "privileges": ["SELECT"]}],
			"excluded": [{"scope": "global"}]
		}`)
		assert.ErrorContains(t, err, "empty item")
	})
}

func TestParseRule(t *testing.T) {
	rule := &domain.ClassificationRule{ID: "r-1", Expression: `not json`}
	_, err := ParseRule(rule)
	require.Error(t, err)

	var ruleErr *domain.RuleExpressionError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "r-1", ruleErr.RuleID)
}
