package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/install"
)

var runArgsCmd = &cobra.Command{
	Use:   "run-args <target>",
	Short: "Print the harness argv and env for a built target as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunArgs,
}

func init() {
	runArgsCmd.Flags().String("harness", string(harness.Claude), "harness to launch")
	runArgsCmd.Flags().StringP("prompt", "p", "", "initial prompt")
	runArgsCmd.Flags().BoolP("interactive", "i", false, "keep the session interactive when a prompt is given")
	rootCmd.AddCommand(runArgsCmd)
}

func runRunArgs(cmd *cobra.Command, args []string) error {
	h, _ := cmd.Flags().GetString("harness")
	prompt, _ := cmd.Flags().GetString("prompt")
	interactive, _ := cmd.Flags().GetBool("interactive")

	ctx, cancel := setupSignalContext(cmd)
	defer cancel()
	e, err := openEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	spec, err := e.installer.RunSpec(install.RunRequest{
		Target:      args[0],
		Harness:     h,
		Prompt:      prompt,
		Interactive: interactive,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(spec)
}
