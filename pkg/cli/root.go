// Package cli implements the permsync command-line interface. Commands run
// against the metastore directly, sharing the server's wiring.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"permsync/internal/app"
	"permsync/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "permsync",
		Short:         "Database account permission inventory",
		Long:          "Synchronize, inspect, and classify database account permissions across registered instances.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("db", "", "path to the SQLite metastore (overrides META_DB_PATH)")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// openApp loads configuration (honoring the --db override) and wires the
// application. Callers must Close the returned App.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.MetaDBPath = dbPath
	}
	return app.New(cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
