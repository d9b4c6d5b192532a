// Package rules implements the classification rule expression and its
// per-engine evaluators.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"permsync/internal/domain"
)

// Operator combines the required condition groups of an expression.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// Scope names the permission category a condition reads.
type Scope string

const (
	// ScopeGlobal matches global/server-scope privileges and
	// server-level roles.
	ScopeGlobal Scope = "global"
	// ScopeDatabase matches privileges held within a single
	// database-scope entry; requirements are never merged across
	// databases.
	ScopeDatabase Scope = "database"
	// ScopeRole matches server-level role memberships only.
	ScopeRole Scope = "role"
	// ScopeDatabaseRole matches role memberships within a single
	// database entry.
	ScopeDatabaseRole Scope = "database_role"
	// ScopeTablespace matches tablespace quota grants.
	ScopeTablespace Scope = "tablespace"
)

func (s Scope) valid() bool {
	switch s {
	case ScopeGlobal, ScopeDatabase, ScopeRole, ScopeDatabaseRole, ScopeTablespace:
		return true
	}
	return false
}

// ConditionGroup is one required condition of an expression. A group is
// satisfied or not as a unit; the expression operator combines groups.
type ConditionGroup struct {
	Scope       Scope    `json:"scope"`
	Privileges  []string `json:"privileges,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Tablespaces []string `json:"tablespaces,omitempty"`
	// Database restricts database-scoped conditions to one named
	// database; empty means any single database may satisfy the group.
	Database string `json:"database,omitempty"`
}

// ExcludedItem vetoes a rule: an account holding the item never matches,
// regardless of operator.
type ExcludedItem struct {
	Scope      Scope  `json:"scope"`
	Privilege  string `json:"privilege,omitempty"`
	Role       string `json:"role,omitempty"`
	Tablespace string `json:"tablespace,omitempty"`
	Database   string `json:"database,omitempty"`
}

// Expression is the parsed, validated form of a stored rule predicate.
// Parsing happens once at load time, never per evaluation.
type Expression struct {
	Operator Operator       `json:"operator"`
	Required []ConditionGroup `json:"required"`
	Excluded []ExcludedItem `json:"excluded,omitempty"`
}

// Parse decodes and validates a stored rule expression. Unknown fields are
// rejected so typos in stored rules surface as skipped rules, not silently
// ignored conditions.
func Parse(raw string) (*Expression, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var expr Expression
	if err := dec.Decode(&expr); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}

	if expr.Operator != OpAnd && expr.Operator != OpOr {
		return nil, fmt.Errorf("operator must be AND or OR, got %q", expr.Operator)
	}
	if len(expr.Required) == 0 {
		return nil, fmt.Errorf("expression has no required condition groups")
	}
	for i, g := range expr.Required {
		if err := validateGroup(g); err != nil {
			return nil, fmt.Errorf("required[%d]: %w", i, err)
		}
	}
	for i, item := range expr.Excluded {
		if err := validateExcluded(item); err != nil {
			return nil, fmt.Errorf("excluded[%d]: %w", i, err)
		}
	}
	return &expr, nil
}

// validateGroup enforces the per-scope field contract. A group whose fields
// do not match its scope is rejected at parse time: evaluating it would be
// vacuously true or vacuously false, and malformed rules must be skipped,
// never silently matched or unmatched.
func validateGroup(g ConditionGroup) error {
	if !g.Scope.valid() {
		return fmt.Errorf("unknown scope %q", g.Scope)
	}
	if len(g.Privileges) == 0 && len(g.Roles) == 0 && len(g.Tablespaces) == 0 {
		return fmt.Errorf("empty condition group")
	}

	switch g.Scope {
	case ScopeGlobal:
		if len(g.Tablespaces) > 0 || g.Database != "" {
			return fmt.Errorf("global scope takes privileges and roles only")
		}
	case ScopeRole:
		if len(g.Roles) == 0 {
			return fmt.Errorf("role scope needs roles")
		}
		if len(g.Privileges) > 0 || len(g.Tablespaces) > 0 || g.Database != "" {
			return fmt.Errorf("role scope takes roles only")
		}
	case ScopeDatabase:
		if len(g.Privileges) == 0 {
			return fmt.Errorf("database scope needs privileges")
		}
		if len(g.Tablespaces) > 0 {
			return fmt.Errorf("database scope takes privileges and roles only")
		}
	case ScopeDatabaseRole:
		if len(g.Roles) == 0 {
			return fmt.Errorf("database_role scope needs roles")
		}
		if len(g.Privileges) > 0 || len(g.Tablespaces) > 0 {
			return fmt.Errorf("database_role scope takes roles only")
		}
	case ScopeTablespace:
		if len(g.Tablespaces) == 0 {
			return fmt.Errorf("tablespace scope needs tablespaces")
		}
		if len(g.Privileges) > 0 || len(g.Roles) > 0 || g.Database != "" {
			return fmt.Errorf("tablespace scope takes tablespaces only")
		}
	}
	return nil
}

// validateExcluded mirrors validateGroup for exclusion items: an item whose
// fields do not match its scope can never hit, which would silently disarm
// the veto.
func validateExcluded(item ExcludedItem) error {
	if !item.Scope.valid() {
		return fmt.Errorf("unknown scope %q", item.Scope)
	}
	if item.Privilege == "" && item.Role == "" && item.Tablespace == "" {
		return fmt.Errorf("empty item")
	}

	switch item.Scope {
	case ScopeGlobal:
		if item.Tablespace != "" || item.Database != "" {
			return fmt.Errorf("global scope takes privilege and role only")
		}
	case ScopeRole:
		if item.Role == "" {
			return fmt.Errorf("role scope needs role")
		}
		if item.Privilege != "" || item.Tablespace != "" || item.Database != "" {
			return fmt.Errorf("role scope takes role only")
		}
	case ScopeDatabase:
		if item.Privilege == "" {
			return fmt.Errorf("database scope needs privilege")
		}
		if item.Role != "" || item.Tablespace != "" {
			return fmt.Errorf("database scope takes privilege only")
		}
	case ScopeDatabaseRole:
		if item.Role == "" {
			return fmt.Errorf("database_role scope needs role")
		}
		if item.Privilege != "" || item.Tablespace != "" {
			return fmt.Errorf("database_role scope takes role only")
		}
	case ScopeTablespace:
		if item.Tablespace == "" {
			return fmt.Errorf("tablespace scope needs tablespace")
		}
		if item.Privilege != "" || item.Role != "" || item.Database != "" {
			return fmt.Errorf("tablespace scope takes tablespace only")
		}
	}
	return nil
}

// ParseRule parses a stored rule's expression, wrapping failures in the
// rule-skip error type.
func ParseRule(rule *domain.ClassificationRule) (*Expression, error) {
	expr, err := Parse(rule.Expression)
	if err != nil {
		return nil, &domain.RuleExpressionError{RuleID: rule.ID, Err: err}
	}
	return expr, nil
}
