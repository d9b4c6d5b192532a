package extract

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"permsync/internal/domain"
)

// MySQLExtractor pulls accounts and privileges from the mysql system schema
// and information_schema in four batched queries. Privileges are never
// fetched per account.
type MySQLExtractor struct {
	limiter *rate.Limiter
}

func (e *MySQLExtractor) Engine() domain.Engine { return domain.EngineMySQL }

// Extract returns one record per (user, host) pair, ordered by identity key.
func (e *MySQLExtractor) Extract(ctx context.Context, db *sql.DB, excl Exclusions) ([]Record, error) {
	accounts, err := e.fetchAccounts(ctx, db, excl)
	if err != nil {
		return nil, err
	}

	if err := e.fetchGlobalPrivs(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchDatabasePrivs(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchRoles(ctx, db, accounts); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(accounts))
	for k := range accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(accounts))
	for _, k := range keys {
		records = append(records, *accounts[k])
	}
	return records, nil
}

func (e *MySQLExtractor) fetchAccounts(ctx context.Context, db *sql.DB, excl Exclusions) (map[string]*MySQLAccount, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	clause, args := exclusionClause("user", excl, qmark, 1)
	rows, err := db.QueryContext(ctx,
		`SELECT user, host, super_priv, account_locked FROM mysql.user WHERE 1=1`+clause+
			` ORDER BY user, host`, args...)
	if err != nil {
		return nil, fmt.Errorf("query mysql.user: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*MySQLAccount)
	for rows.Next() {
		var a MySQLAccount
		var super, locked string
		if err := rows.Scan(&a.User, &a.Host, &super, &locked); err != nil {
			return nil, fmt.Errorf("scan mysql.user: %w", err)
		}
		a.SuperPriv = super == "Y"
		a.AccountLocked = locked == "Y"
		a.DatabasePrivs = make(map[string][]string)
		accounts[a.Key()] = &a
	}
	return accounts, rows.Err()
}

func (e *MySQLExtractor) fetchGlobalPrivs(ctx context.Context, db *sql.DB, accounts map[string]*MySQLAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT grantee, privilege_type FROM information_schema.user_privileges`)
	if err != nil {
		return fmt.Errorf("query user_privileges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grantee, priv string
		if err := rows.Scan(&grantee, &priv); err != nil {
			return fmt.Errorf("scan user_privileges: %w", err)
		}
		if a, ok := accounts[granteeKey(grantee)]; ok {
			a.GlobalPrivs = append(a.GlobalPrivs, priv)
		}
	}
	return rows.Err()
}

func (e *MySQLExtractor) fetchDatabasePrivs(ctx context.Context, db *sql.DB, accounts map[string]*MySQLAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT grantee, table_schema, privilege_type FROM information_schema.schema_privileges`)
	if err != nil {
		return fmt.Errorf("query schema_privileges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grantee, schema, priv string
		if err := rows.Scan(&grantee, &schema, &priv); err != nil {
			return fmt.Errorf("scan schema_privileges: %w", err)
		}
		if a, ok := accounts[granteeKey(grantee)]; ok {
			a.DatabasePrivs[schema] = append(a.DatabasePrivs[schema], priv)
		}
	}
	return rows.Err()
}

func (e *MySQLExtractor) fetchRoles(ctx context.Context, db *sql.DB, accounts map[string]*MySQLAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT from_user, to_user, to_host FROM mysql.role_edges`)
	if err != nil {
		// role_edges exists from 8.0 only; 5.7 servers have no roles.
		if strings.Contains(err.Error(), "doesn't exist") {
			return nil
		}
		return fmt.Errorf("query role_edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, user, host string
		if err := rows.Scan(&role, &user, &host); err != nil {
			return fmt.Errorf("scan role_edges: %w", err)
		}
		if a, ok := accounts[domain.EngineMySQL.AccountKey(user, host)]; ok {
			a.Roles = append(a.Roles, role)
		}
	}
	return rows.Err()
}

// granteeKey converts an information_schema GRANTEE value ('user'@'host')
// into the user@host identity key. The username itself may contain '@', so
// the split is on the quote-at-quote separator, not the first '@'.
func granteeKey(grantee string) string {
	user, host, ok := strings.Cut(grantee, "'@'")
	if !ok {
		return strings.Trim(grantee, "'")
	}
	return domain.EngineMySQL.AccountKey(strings.TrimPrefix(user, "'"), strings.TrimSuffix(host, "'"))
}
