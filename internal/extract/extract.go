// Package extract pulls raw per-account permission payloads from live
// database engines using batched catalog queries. One extractor exists per
// engine, selected by engine tag at the orchestration boundary.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"permsync/internal/domain"
)

// Record is the tagged variant of raw per-engine account payloads. The
// normalize package switches on the concrete type.
type Record interface {
	// Key returns the engine identity key of the account.
	Key() string
	isRecord()
}

// MySQLAccount is the raw payload for one MySQL account. Identity is the
// (user, host) pair.
type MySQLAccount struct {
	User          string
	Host          string
	SuperPriv     bool
	AccountLocked bool // account_locked = 'Y' means the account cannot log in
	GlobalPrivs   []string
	DatabasePrivs map[string][]string
	Roles         []string // granted roles from role_edges (8.0+)
}

func (a MySQLAccount) Key() string { return domain.EngineMySQL.AccountKey(a.User, a.Host) }
func (MySQLAccount) isRecord()     {}

// PostgresAccount is the raw payload for one PostgreSQL role.
type PostgresAccount struct {
	RolName       string
	Super         bool
	CanLogin      bool // rolcanlogin = false means the role cannot log in
	CreateRole    bool
	CreateDB      bool
	Replication   bool
	BypassRLS     bool
	ValidUntil    *time.Time
	MemberOf      []string
	DatabasePrivs map[string][]string
}

func (a PostgresAccount) Key() string { return a.RolName }
func (PostgresAccount) isRecord()     {}

// SQLServerAccount is the raw payload for one SQL Server login.
type SQLServerAccount struct {
	LoginName     string
	Disabled      bool // is_disabled = 1 means the login cannot connect
	ServerRoles   []string
	ServerPerms   []string
	DatabaseRoles map[string][]string
}

func (a SQLServerAccount) Key() string { return a.LoginName }
func (SQLServerAccount) isRecord()     {}

// OracleAccount is the raw payload for one Oracle user.
type OracleAccount struct {
	Username          string
	AccountStatus     string // only "OPEN" can log in
	DefaultTablespace string
	SysPrivs          []string
	Roles             []string
	TablespaceQuotas  map[string]string
}

func (a OracleAccount) Key() string { return a.Username }
func (OracleAccount) isRecord()     {}

// Exclusions is the server-side account filter pushed into catalog queries.
// Filtered accounts never leave the engine.
type Exclusions struct {
	Users    []string
	Patterns []string // SQL LIKE patterns
}

// Extractor pulls the ordered raw account list from one engine. Any catalog
// query error is an extraction failure that aborts the whole instance's
// sync with no partial writes.
type Extractor interface {
	Engine() domain.Engine
	Extract(ctx context.Context, db *sql.DB, excl Exclusions) ([]Record, error)
}

// ForEngine returns the extractor for the given engine. The limiter paces
// catalog queries per instance; nil disables pacing.
func ForEngine(e domain.Engine, limiter *rate.Limiter) (Extractor, error) {
	switch e {
	case domain.EngineMySQL:
		return &MySQLExtractor{limiter: limiter}, nil
	case domain.EnginePostgres:
		return &PostgresExtractor{limiter: limiter}, nil
	case domain.EngineSQLServer:
		return &SQLServerExtractor{limiter: limiter}, nil
	case domain.EngineOracle:
		return &OracleExtractor{limiter: limiter}, nil
	default:
		return nil, domain.ErrValidation("no extractor for engine %q", e)
	}
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// placeholder styles per engine driver.

func qmark(int) string      { return "?" }
func dollar(i int) string   { return fmt.Sprintf("$%d", i) }
func atP(i int) string      { return fmt.Sprintf("@p%d", i) }
func colonNum(i int) string { return fmt.Sprintf(":%d", i) }

// exclusionClause renders " AND col NOT IN (...) AND col NOT LIKE ..." for
// the given placeholder style. next is the 1-based index of the first
// placeholder to emit.
func exclusionClause(col string, excl Exclusions, ph func(int) string, next int) (string, []any) {
	var (
		clause string
		args   []any
	)
	if len(excl.Users) > 0 {
		clause += " AND " + col + " NOT IN ("
		for i, u := range excl.Users {
			if i > 0 {
				clause += ", "
			}
			clause += ph(next)
			next++
			args = append(args, u)
		}
		clause += ")"
	}
	for _, p := range excl.Patterns {
		clause += " AND " + col + " NOT LIKE " + ph(next)
		next++
		args = append(args, p)
	}
	return clause, args
}
