package extract

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"permsync/internal/domain"
)

// PostgresExtractor pulls roles, memberships, and database ACLs in three
// batched catalog queries.
type PostgresExtractor struct {
	limiter *rate.Limiter
}

func (e *PostgresExtractor) Engine() domain.Engine { return domain.EnginePostgres }

// Extract returns one record per non-system role, ordered by role name.
func (e *PostgresExtractor) Extract(ctx context.Context, db *sql.DB, excl Exclusions) ([]Record, error) {
	accounts, err := e.fetchRoles(ctx, db, excl)
	if err != nil {
		return nil, err
	}
	if err := e.fetchMemberships(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchDatabaseACLs(ctx, db, accounts); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(accounts))
	for _, name := range names {
		records = append(records, *accounts[name])
	}
	return records, nil
}

func (e *PostgresExtractor) fetchRoles(ctx context.Context, db *sql.DB, excl Exclusions) (map[string]*PostgresAccount, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	clause, args := exclusionClause("rolname", excl, dollar, 1)
	rows, err := db.QueryContext(ctx,
		`SELECT rolname, rolsuper, rolcanlogin, rolcreaterole, rolcreatedb,
		        rolreplication, rolbypassrls, rolvaliduntil
		 FROM pg_roles
		 WHERE rolname NOT LIKE 'pg\_%'`+clause+`
		 ORDER BY rolname`, args...)
	if err != nil {
		return nil, fmt.Errorf("query pg_roles: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*PostgresAccount)
	for rows.Next() {
		var a PostgresAccount
		var validUntil sql.NullTime
		if err := rows.Scan(&a.RolName, &a.Super, &a.CanLogin, &a.CreateRole,
			&a.CreateDB, &a.Replication, &a.BypassRLS, &validUntil); err != nil {
			return nil, fmt.Errorf("scan pg_roles: %w", err)
		}
		if validUntil.Valid {
			t := validUntil.Time
			a.ValidUntil = &t
		}
		a.DatabasePrivs = make(map[string][]string)
		accounts[a.RolName] = &a
	}
	return accounts, rows.Err()
}

func (e *PostgresExtractor) fetchMemberships(ctx context.Context, db *sql.DB, accounts map[string]*PostgresAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT m.rolname AS member, g.rolname AS granted
		 FROM pg_auth_members am
		 JOIN pg_roles m ON m.oid = am.member
		 JOIN pg_roles g ON g.oid = am.roleid`)
	if err != nil {
		return fmt.Errorf("query pg_auth_members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member, granted string
		if err := rows.Scan(&member, &granted); err != nil {
			return fmt.Errorf("scan pg_auth_members: %w", err)
		}
		if a, ok := accounts[member]; ok {
			a.MemberOf = append(a.MemberOf, granted)
		}
	}
	return rows.Err()
}

func (e *PostgresExtractor) fetchDatabaseACLs(ctx context.Context, db *sql.DB, accounts map[string]*PostgresAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT d.datname, pr.rolname, a.privilege_type
		 FROM pg_database d
		 CROSS JOIN LATERAL aclexplode(d.datacl) a
		 JOIN pg_roles pr ON pr.oid = a.grantee
		 WHERE d.datistemplate = false`)
	if err != nil {
		return fmt.Errorf("query database acls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var datname, rolname, priv string
		if err := rows.Scan(&datname, &rolname, &priv); err != nil {
			return fmt.Errorf("scan database acls: %w", err)
		}
		if a, ok := accounts[rolname]; ok {
			a.DatabasePrivs[datname] = append(a.DatabasePrivs[datname], priv)
		}
	}
	return rows.Err()
}
