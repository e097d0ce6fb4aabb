// Command televibe is the core's CLI entrypoint: process wiring, flag
// parsing, signal handling, and the serve/migrate/sessions/tasks
// subcommand tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	root       string
	configPath string
}

func main() {
	root := &cobra.Command{
		Use:           "televibe",
		Short:         "Remote orchestration harness for coding-assistant subprocesses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	root.PersistentFlags().StringVar(&rootFlags.root, "root", cwd, "project repository root (holds .televibe/)")
	root.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "settings.json path (default: <root>/.televibe/settings.json)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newTasksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "televibe:", err)
		os.Exit(1)
	}
}

func configPathFor(root string) string {
	if rootFlags.configPath != "" {
		return rootFlags.configPath
	}
	return filepath.Join(root, ".televibe", "settings.json")
}
