package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/asp/internal/install"
	"github.com/papapumpkin/asp/internal/materialize"
)

var buildCmd = &cobra.Command{
	Use:   "build [target...]",
	Short: "Materialize bundles from the existing lock file",
	Long: `Builds bundles from asp-lock.json without resolving. With --watch, dev
Spaces (space:<id>@dev) are watched and the bundles rebuilt on every change.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSlice("harness", nil, "harnesses to build (default: all)")
	buildCmd.Flags().BoolP("watch", "w", false, "rebuild when a dev space changes")
	buildCmd.Flags().Duration("debounce", 300*time.Millisecond, "quiet period before a watch rebuild")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	hs, _ := cmd.Flags().GetStringSlice("harness")
	watch, _ := cmd.Flags().GetBool("watch")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	ctx, cancel := setupSignalContext(cmd)
	defer cancel()
	e, err := openEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	req := install.BuildRequest{Targets: args, Harnesses: hs}
	if err := buildOnce(ctx, e, req); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	return watchBuild(ctx, e, req, debounce)
}

func buildOnce(ctx context.Context, e *env, req install.BuildRequest) error {
	results, err := e.installer.Build(ctx, req)
	if err != nil {
		return err
	}
	e.printer.BuildResults(results)
	return nil
}

// watchBuild rebuilds on every debounced dev-space change until ctx ends.
// Build errors are printed and watching continues.
func watchBuild(ctx context.Context, e *env, req install.BuildRequest, debounce time.Duration) error {
	spaces, err := e.installer.DevSpaces(req.Targets)
	if err != nil {
		return err
	}
	if len(spaces) == 0 {
		e.printer.Warn("no dev spaces to watch")
		return nil
	}
	w, err := materialize.NewWatcher(spaces, debounce)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()
	e.printer.Info("watching %d dev space(s); ctrl-c to stop", len(spaces))

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-w.Changes:
			if !ok {
				return nil
			}
			e.printer.WatchChange(c)
			if err := buildOnce(ctx, e, req); err != nil {
				e.printer.Error(err.Error())
			}
		}
	}
}
