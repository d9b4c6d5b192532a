package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"permsync/internal/domain"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage classification rules",
	}
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesCreateCmd())
	cmd.AddCommand(newRulesDeactivateCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active classification rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ruleSet, err := a.RuleService.ListActive(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, ruleSet)
		},
	}
}

func newRulesCreateCmd() *cobra.Command {
	var (
		engine           string
		classificationID string
		name             string
		expression       string
		expressionFile   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new classification rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expression == "" && expressionFile == "" {
				return fmt.Errorf("one of --expression or --expression-file is required")
			}
			if expressionFile != "" {
				data, err := os.ReadFile(expressionFile)
				if err != nil {
					return fmt.Errorf("read expression file: %w", err)
				}
				expression = string(data)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := a.RuleService.Create(cmd.Context(), &domain.ClassificationRule{
				Engine:           domain.Engine(engine),
				ClassificationID: classificationID,
				Name:             name,
				Expression:       expression,
			})
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, rule)
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", "target engine (mysql, postgres, sqlserver, oracle)")
	cmd.Flags().StringVar(&classificationID, "classification", "", "classification id the rule assigns")
	cmd.Flags().StringVar(&name, "name", "", "human-readable rule name")
	cmd.Flags().StringVar(&expression, "expression", "", "rule expression JSON")
	cmd.Flags().StringVar(&expressionFile, "expression-file", "", "path to a file holding the rule expression JSON")
	_ = cmd.MarkFlagRequired("engine")
	_ = cmd.MarkFlagRequired("classification")
	return cmd
}

func newRulesDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <rule-id>",
		Short: "Deactivate a rule version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.RuleService.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "rule %s deactivated\n", args[0])
			return nil
		},
	}
}
