package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply metastore migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// app.New runs migrations as part of wiring.
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			_, _ = fmt.Fprintf(os.Stdout, "metastore at %s is up to date\n", a.Cfg.MetaDBPath)
			return nil
		},
	}
}
