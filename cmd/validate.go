package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check asp-targets.toml and every locked space against each harness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		hs, _ := cmd.Flags().GetStringSlice("harness")
		ctx, cancel := setupSignalContext(cmd)
		defer cancel()
		e, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		found, err := e.installer.Validate(ctx, hs)
		if err != nil {
			return err
		}
		if n := e.printer.Findings(found); n > 0 {
			return fmt.Errorf("validation failed with %d error(s)", n)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringSlice("harness", nil, "harnesses to validate against (default: all)")
	rootCmd.AddCommand(validateCmd)
}
