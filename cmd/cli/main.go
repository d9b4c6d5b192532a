// Package main is the entry point for the permsync CLI binary.
package main

import (
	"os"

	cli "permsync/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
