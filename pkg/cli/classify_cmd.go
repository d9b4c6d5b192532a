package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Run a classification batch over synced accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Orchestrator.Run(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		},
	}
}
