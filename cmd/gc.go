package cmd

import (
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove store snapshots and cache entries no project lock references",
	Long: `Collects garbage across every project that has installed into the store.
Projects whose lock file no longer exists are forgotten first. Entries in
use by a running install are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := setupSignalContext(cmd)
		defer cancel()
		e, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.installer.GC(ctx)
		if err != nil {
			return err
		}
		e.printer.GCResult(res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
