package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"permsync/internal/domain"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the rule evaluation cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var engine string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached rule sets and evaluation results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if engine == "" {
				a.Cache.ClearAll()
				_, _ = fmt.Fprintln(os.Stdout, "cache cleared")
				return nil
			}
			parsed, err := domain.ParseEngine(engine)
			if err != nil {
				return err
			}
			a.Cache.ClearEngine(parsed)
			_, _ = fmt.Fprintf(os.Stdout, "cache cleared for %s\n", parsed)
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", "clear only one engine's partition")
	return cmd
}
