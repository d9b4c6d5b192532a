package rules

import (
	"permsync/internal/domain"
)

// Classifier evaluates a parsed expression against normalized facts for one
// engine. Evaluation is referentially transparent: identical inputs always
// yield the identical boolean.
type Classifier interface {
	Engine() domain.Engine
	Evaluate(facts *domain.PermissionFacts, expr *Expression) bool
}

// ForEngine returns the classifier for the given engine.
func ForEngine(e domain.Engine) (Classifier, error) {
	switch e {
	case domain.EngineMySQL:
		return &MySQLClassifier{}, nil
	case domain.EnginePostgres:
		return &PostgresClassifier{}, nil
	case domain.EngineSQLServer:
		return &SQLServerClassifier{}, nil
	case domain.EngineOracle:
		return &OracleClassifier{}, nil
	default:
		return nil, domain.ErrValidation("no classifier for engine %q", e)
	}
}

// categoryMode controls how a condition group naming several categories
// (privileges and roles) combines them. The engines documented different
// behaviors here; they are kept engine-specific on purpose.
type categoryMode int

const (
	// allCategories: every named category must hold (MySQL, PostgreSQL,
	// Oracle).
	allCategories categoryMode = iota
	// anyCategory: any one named category satisfies the group
	// (SQL Server, where server-role and database-role requirements were
	// historically alternatives).
	anyCategory
)

// MySQLClassifier evaluates rules against MySQL facts. Categories within a
// group combine with AND.
type MySQLClassifier struct{}

func (*MySQLClassifier) Engine() domain.Engine { return domain.EngineMySQL }

func (*MySQLClassifier) Evaluate(facts *domain.PermissionFacts, expr *Expression) bool {
	return evaluate(facts, expr, allCategories)
}

// PostgresClassifier evaluates rules against PostgreSQL facts. Categories
// within a group combine with AND.
type PostgresClassifier struct{}

func (*PostgresClassifier) Engine() domain.Engine { return domain.EnginePostgres }

func (*PostgresClassifier) Evaluate(facts *domain.PermissionFacts, expr *Expression) bool {
	return evaluate(facts, expr, allCategories)
}

// SQLServerClassifier evaluates rules against SQL Server facts. A group
// naming both privileges and roles is satisfied by either category.
type SQLServerClassifier struct{}

func (*SQLServerClassifier) Engine() domain.Engine { return domain.EngineSQLServer }

func (*SQLServerClassifier) Evaluate(facts *domain.PermissionFacts, expr *Expression) bool {
	return evaluate(facts, expr, anyCategory)
}

// OracleClassifier evaluates rules against Oracle facts. Categories within
// a group combine with AND.
type OracleClassifier struct{}

func (*OracleClassifier) Engine() domain.Engine { return domain.EngineOracle }

func (*OracleClassifier) Evaluate(facts *domain.PermissionFacts, expr *Expression) bool {
	return evaluate(facts, expr, allCategories)
}

func evaluate(facts *domain.PermissionFacts, expr *Expression, mode categoryMode) bool {
	// Exclusion veto first: short-circuits everything.
	for _, item := range expr.Excluded {
		if excludedHit(facts, item) {
			return false
		}
	}

	switch expr.Operator {
	case OpOr:
		for _, g := range expr.Required {
			if groupSatisfied(facts, g, mode) {
				return true
			}
		}
		return false
	default: // OpAnd
		for _, g := range expr.Required {
			if !groupSatisfied(facts, g, mode) {
				return false
			}
		}
		return true
	}
}

func groupSatisfied(facts *domain.PermissionFacts, g ConditionGroup, mode categoryMode) bool {
	var checks []bool

	switch g.Scope {
	case ScopeGlobal:
		if len(g.Privileges) > 0 {
			checks = append(checks, containsAll(facts.GlobalPrivs, g.Privileges))
		}
		if len(g.Roles) > 0 {
			checks = append(checks, containsAll(facts.Roles, g.Roles))
		}
	case ScopeRole:
		checks = append(checks, containsAll(facts.Roles, g.Roles))
	case ScopeDatabase:
		// A single database entry must hold every required privilege;
		// privileges split across databases do not satisfy the group.
		checks = append(checks, singleEntryHolds(facts.DatabasePrivs, g.Database, g.Privileges))
		if len(g.Roles) > 0 {
			checks = append(checks, singleEntryHolds(facts.DatabaseRoles, g.Database, g.Roles))
		}
	case ScopeDatabaseRole:
		checks = append(checks, singleEntryHolds(facts.DatabaseRoles, g.Database, g.Roles))
	case ScopeTablespace:
		ok := true
		for _, ts := range g.Tablespaces {
			if _, has := facts.TablespaceQuotas[ts]; !has {
				ok = false
				break
			}
		}
		checks = append(checks, ok)
	}

	if len(checks) == 0 {
		return false
	}
	if mode == anyCategory && len(checks) > 1 {
		for _, ok := range checks {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

func excludedHit(facts *domain.PermissionFacts, item ExcludedItem) bool {
	switch item.Scope {
	case ScopeGlobal:
		if item.Privilege != "" && facts.HasGlobalPriv(item.Privilege) {
			return true
		}
		if item.Role != "" && facts.HasRole(item.Role) {
			return true
		}
	case ScopeRole:
		return item.Role != "" && facts.HasRole(item.Role)
	case ScopeDatabase:
		return anyEntryHolds(facts.DatabasePrivs, item.Database, item.Privilege)
	case ScopeDatabaseRole:
		return anyEntryHolds(facts.DatabaseRoles, item.Database, item.Role)
	case ScopeTablespace:
		_, has := facts.TablespaceQuotas[item.Tablespace]
		return has
	}
	return false
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// singleEntryHolds reports whether one database entry holds all wanted
// items. database narrows the search to a named entry.
func singleEntryHolds(entries map[string][]string, database string, want []string) bool {
	if len(want) == 0 {
		return false
	}
	if database != "" {
		return containsAll(entries[database], want)
	}
	for _, items := range entries {
		if containsAll(items, want) {
			return true
		}
	}
	return false
}

func anyEntryHolds(entries map[string][]string, database, item string) bool {
	if item == "" {
		return false
	}
	if database != "" {
		return containsAll(entries[database], []string{item})
	}
	for _, items := range entries {
		if containsAll(items, []string{item}) {
			return true
		}
	}
	return false
}
