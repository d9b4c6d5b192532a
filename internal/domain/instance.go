package domain

import "time"

// Instance is a registered database instance to inventory. Connectivity
// (DSN contents, credential rotation) is owned by an external collaborator;
// permsync only reads the registry.
type Instance struct {
	ID     string
	Name   string
	Engine Engine
	DSN    string

	// ExcludedUsers and ExcludedPatterns are pushed into the catalog
	// queries so filtered accounts never leave the engine.
	ExcludedUsers    []string
	ExcludedPatterns []string

	Active    bool
	CreatedAt time.Time
}
