package extract

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/time/rate"

	"permsync/internal/domain"
)

// OracleExtractor pulls users, system privileges, granted roles, and
// tablespace quotas from the DBA_* views in four batched queries.
type OracleExtractor struct {
	limiter *rate.Limiter
}

func (e *OracleExtractor) Engine() domain.Engine { return domain.EngineOracle }

// Extract returns one record per user, ordered by username.
func (e *OracleExtractor) Extract(ctx context.Context, db *sql.DB, excl Exclusions) ([]Record, error) {
	accounts, err := e.fetchUsers(ctx, db, excl)
	if err != nil {
		return nil, err
	}
	if err := e.fetchSysPrivs(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchRoles(ctx, db, accounts); err != nil {
		return nil, err
	}
	if err := e.fetchQuotas(ctx, db, accounts); err != nil {
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

func (e *OracleExtractor) fetchUsers(ctx context.Context, db *sql.DB, excl Exclusions) (map[string]*OracleAccount, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	clause, args := exclusionClause("username", excl, colonNum, 1)
	rows, err := db.QueryContext(ctx,
		`SELECT username, account_status, default_tablespace
		 FROM dba_users WHERE oracle_maintained = 'N'`+clause+`
		 ORDER BY username`, args...)
	if err != nil {
		return nil, fmt.Errorf("query dba_users: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*OracleAccount)
	for rows.Next() {
		var a OracleAccount
		if err := rows.Scan(&a.Username, &a.AccountStatus, &a.DefaultTablespace); err != nil {
			return nil, fmt.Errorf("scan dba_users: %w", err)
		}
		a.TablespaceQuotas = make(map[string]string)
		accounts[a.Username] = &a
	}
	return accounts, rows.Err()
}

func (e *OracleExtractor) fetchSysPrivs(ctx context.Context, db *sql.DB, accounts map[string]*OracleAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT grantee, privilege FROM dba_sys_privs`)
	if err != nil {
		return fmt.Errorf("query dba_sys_privs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grantee, priv string
		if err := rows.Scan(&grantee, &priv); err != nil {
			return fmt.Errorf("scan dba_sys_privs: %w", err)
		}
		if a, ok := accounts[grantee]; ok {
			a.SysPrivs = append(a.SysPrivs, priv)
		}
	}
	return rows.Err()
}

func (e *OracleExtractor) fetchRoles(ctx context.Context, db *sql.DB, accounts map[string]*OracleAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT grantee, granted_role FROM dba_role_privs`)
	if err != nil {
		return fmt.Errorf("query dba_role_privs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grantee, role string
		if err := rows.Scan(&grantee, &role); err != nil {
			return fmt.Errorf("scan dba_role_privs: %w", err)
		}
		if a, ok := accounts[grantee]; ok {
			a.Roles = append(a.Roles, role)
		}
	}
	return rows.Err()
}

func (e *OracleExtractor) fetchQuotas(ctx context.Context, db *sql.DB, accounts map[string]*OracleAccount) error {
	if err := wait(ctx, e.limiter); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT username, tablespace_name, max_bytes FROM dba_ts_quotas WHERE dropped = 'NO'`)
	if err != nil {
		return fmt.Errorf("query dba_ts_quotas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var username, tablespace string
		var maxBytes int64
		if err := rows.Scan(&username, &tablespace, &maxBytes); err != nil {
			return fmt.Errorf("scan dba_ts_quotas: %w", err)
		}
		if a, ok := accounts[username]; ok {
			a.TablespaceQuotas[tablespace] = quotaString(maxBytes)
		}
	}
	return rows.Err()
}

// quotaString renders a quota byte count, with -1 meaning UNLIMITED.
func quotaString(maxBytes int64) string {
	if maxBytes < 0 {
		return "UNLIMITED"
	}
	return strconv.FormatInt(maxBytes, 10)
}
