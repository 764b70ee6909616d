package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/asp/internal/ui"
)

var explainCmd = &cobra.Command{
	Use:   "explain <target>",
	Short: "Show a locked target's load order and integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalContext(cmd)
		defer cancel()
		e, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ex, err := e.installer.Explain(args[0])
		if err != nil {
			return err
		}
		ui.New(cmd.OutOrStdout()).Explain(ex)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
}
