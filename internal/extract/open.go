package extract

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"

	"permsync/internal/domain"
)

// driverNames maps engine tags to registered database/sql driver names.
var driverNames = map[domain.Engine]string{
	domain.EngineMySQL:     "mysql",
	domain.EnginePostgres:  "pgx",
	domain.EngineSQLServer: "sqlserver",
	domain.EngineOracle:    "oracle",
}

// Open dials a registered instance and verifies connectivity. The returned
// pool is sized for catalog scans, not OLTP traffic.
func Open(inst *domain.Instance) (*sql.DB, error) {
	driver, ok := driverNames[inst.Engine]
	if !ok {
		return nil, domain.ErrValidation("no driver for engine %q", inst.Engine)
	}

	db, err := sql.Open(driver, inst.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s instance %s: %w", inst.Engine, inst.Name, err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s instance %s: %w", inst.Engine, inst.Name, err)
	}

	return db, nil
}
