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

// SQLServerExtractor pulls logins, server roles, and server permissions in
// three batched queries, then database role memberships with one query per
// online database. Each per-database query covers every login at once;
// nothing is ever fetched per account.
type SQLServerExtractor struct {
	limiter *rate.Limiter
}

func (e *SQLServerExtractor) Engine() domain.Engine { return domain.EngineSQLServer }

// Extract returns one record per SQL or Windows login, ordered by name.
func (e *SQLServerExtractor) Extract(ctx context.Context, db *sql.DB, excl Exclusions) ([]Record, error) {
	accounts, err := e.fetchLogins(ctx, db, excl)
	if err != nil {
		return nil, err
	}
	if err := e.fetchServerRoles(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchServerPerms(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchDatabaseRoles(ctx, db, accounts); err != nil {
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

func (e *SQLServerExtractor) fetchLogins(ctx context.Context, db *sql.DB, excl Exclusions) (map[string]*SQLServerAccount, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	clause, args := exclusionClause("name", excl, atP, 1)
	rows, err := db.QueryContext(ctx,
		`SELECT name, is_disabled FROM sys.server_principals
		 WHERE type IN ('S', 'U', 'G') AND name NOT LIKE '##%'`+clause+`
		 ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("query server_principals: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*SQLServerAccount)
	for rows.Next() {
		var a SQLServerAccount
		var disabled sql.NullBool
		if err := rows.Scan(&a.LoginName, &disabled); err != nil {
			return nil, fmt.Errorf("scan server_principals: %w", err)
		}
		a.Disabled = disabled.Valid && disabled.Bool
		a.DatabaseRoles = make(map[string][]string)
		accounts[a.LoginName] = &a
	}
	return accounts, rows.Err()
}

func (e *SQLServerExtractor) fetchServerRoles(ctx context.Context, db *sql.DB, accounts map[string]*SQLServerAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT m.name AS login_name, r.name AS role_name
		 FROM sys.server_role_members rm
		 JOIN sys.server_principals r ON r.principal_id = rm.role_principal_id
		 JOIN sys.server_principals m ON m.principal_id = rm.member_principal_id`)
	if err != nil {
		return fmt.Errorf("query server_role_members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var login, role string
		if err := rows.Scan(&login, &role); err != nil {
			return fmt.Errorf("scan server_role_members: %w", err)
		}
		if a, ok := accounts[login]; ok {
			a.ServerRoles = append(a.ServerRoles, role)
		}
	}
	return rows.Err()
}

func (e *SQLServerExtractor) fetchServerPerms(ctx context.Context, db *sql.DB, accounts map[string]*SQLServerAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT pr.name, pe.permission_name
		 FROM sys.server_permissions pe
		 JOIN sys.server_principals pr ON pr.principal_id = pe.grantee_principal_id
		 WHERE pe.state IN ('G', 'W')`)
	if err != nil {
		return fmt.Errorf("query server_permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var login, perm string
		if err := rows.Scan(&login, &perm); err != nil {
			return fmt.Errorf("scan server_permissions: %w", err)
		}
		if a, ok := accounts[login]; ok {
			a.ServerPerms = append(a.ServerPerms, perm)
		}
	}
	return rows.Err()
}

func (e *SQLServerExtractor) fetchDatabaseRoles(ctx context.Context, db *sql.DB, accounts map[string]*SQLServerAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sys.databases WHERE state = 0 AND name <> 'tempdb' ORDER BY name`)
	if err != nil {
		return fmt.Errorf("query sys.databases: %w", err)
	}
	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan sys.databases: %w", err)
		}
		databases = append(databases, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, database := range databases {
		if err := e.fetchRolesInDatabase(ctx, db, database, accounts); err != nil {
			return err
		}
	}
	return nil
}

func (e *SQLServerExtractor) fetchRolesInDatabase(ctx context.Context, db *sql.DB, database string, accounts map[string]*SQLServerAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	// Database names cannot be bound as parameters; bracket-quote them.
	quoted := "[" + strings.ReplaceAll(database, "]", "]]") + "]"
	rows, err := db.QueryContext(ctx,
		`SELECT sp.name AS login_name, r.name AS role_name
		 FROM `+quoted+`.sys.database_role_members drm
		 JOIN `+quoted+`.sys.database_principals r ON r.principal_id = drm.role_principal_id
		 JOIN `+quoted+`.sys.database_principals dp ON dp.principal_id = drm.member_principal_id
		 JOIN sys.server_principals sp ON sp.sid = dp.sid`)
	if err != nil {
		return fmt.Errorf("query database roles in %s: %w", database, err)
	}
	defer rows.Close()

	for rows.Next() {
		var login, role string
		if err := rows.Scan(&login, &role); err != nil {
			return fmt.Errorf("scan database roles in %s: %w", database, err)
		}
		if a, ok := accounts[login]; ok {
			a.DatabaseRoles[database] = append(a.DatabaseRoles[database], role)
		}
	}
	return rows.Err()
}
