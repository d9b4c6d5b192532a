package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile account permissions from registered instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.SeedInstances(cmd.Context()); err != nil {
				return err
			}

			session, results, err := a.Sync.Run(cmd.Context(), instanceID, "cli")
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, map[string]any{
				"session": session,
				"results": results,
			})
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "sync a single instance by id (default: all active)")
	return cmd
}
