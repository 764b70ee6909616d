package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/asp/internal/harnesses"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ui"
)

var harnessesCmd = &cobra.Command{
	Use:   "harnesses",
	Short: "Detect every registered harness",
	Long: `Locates and version-checks each harness binary. Binaries configured under
[harness.<id>] in asp-targets.toml are honored when the project has one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := setupSignalContext(cmd)
		defer cancel()

		dir, _ := cmd.Flags().GetString("project")
		project, err := manifest.LoadProject(filepath.Join(dir, cfg.ProjectFile))
		if err != nil {
			project = &manifest.Project{}
		}

		reg := harnesses.Default()
		var statuses []ui.HarnessStatus
		for _, id := range reg.IDs() {
			a, err := reg.Get(id)
			if err != nil {
				return err
			}
			opts := a.DefaultRunOptions(project.Harness[string(id)])
			statuses = append(statuses, ui.HarnessStatus{ID: id, Detect: a.Detect(ctx, opts)})
		}
		ui.New(cmd.OutOrStdout()).Harnesses(statuses)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(harnessesCmd)
}
