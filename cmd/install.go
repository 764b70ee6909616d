package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/asp/internal/install"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve targets, write asp-lock.json and build every bundle",
	Long: `Resolves each target's compose list against the registry, pinning every
previously locked Space unless it is named with --upgrade, then writes the
lock file and materializes one bundle per target and harness.

With --frozen the lock file must already match asp-targets.toml; nothing is
re-resolved or rewritten.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringSliceP("target", "t", nil, "targets to install (default: all)")
	installCmd.Flags().StringSlice("harness", nil, "harnesses to build (default: all)")
	installCmd.Flags().StringSlice("upgrade", nil, "space ids to re-resolve against their selectors")
	installCmd.Flags().Bool("frozen", false, "fail instead of updating the lock file")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	targets, _ := cmd.Flags().GetStringSlice("target")
	hs, _ := cmd.Flags().GetStringSlice("harness")
	upgrade, _ := cmd.Flags().GetStringSlice("upgrade")
	frozen, _ := cmd.Flags().GetBool("frozen")

	ctx, cancel := setupSignalContext(cmd)
	defer cancel()
	e, err := openEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.installer.Install(ctx, install.Request{
		Targets:   targets,
		Harnesses: hs,
		Upgrade:   upgrade,
		Frozen:    frozen,
	})
	if err != nil {
		return err
	}
	e.printer.InstallReport(report)
	return nil
}
