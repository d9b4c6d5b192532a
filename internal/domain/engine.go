// Package domain defines core types, interfaces, and errors for permsync.
package domain

import "fmt"

// Engine identifies a supported database engine.
type Engine string

const (
	EngineMySQL     Engine = "mysql"
	EnginePostgres  Engine = "postgres"
	EngineSQLServer Engine = "sqlserver"
	EngineOracle    Engine = "oracle"
)

// Engines lists all supported engines in stable order.
var Engines = []Engine{EngineMySQL, EnginePostgres, EngineSQLServer, EngineOracle}

// Valid reports whether e is a supported engine tag.
func (e Engine) Valid() bool {
	switch e {
	case EngineMySQL, EnginePostgres, EngineSQLServer, EngineOracle:
		return true
	}
	return false
}

// ParseEngine converts a string into an Engine, rejecting unknown tags.
func ParseEngine(s string) (Engine, error) {
	e := Engine(s)
	if !e.Valid() {
		return "", ErrValidation("unknown engine %q", s)
	}
	return e, nil
}

// AccountKey returns the identity key for an account on this engine.
//
// MySQL account identity is the (user, host) pair: 'app'@'10.%' and
// 'app'@'localhost' are distinct accounts with independent privileges.
// Every other engine identifies accounts by bare username.
func (e Engine) AccountKey(username, host string) string {
	if e == EngineMySQL {
		return fmt.Sprintf("%s@%s", username, host)
	}
	return username
}
