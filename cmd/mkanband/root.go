package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mkanband",
	Short: "Background daemon for mkanban file-backed boards and notes",
	Long: `mkanband watches a shared data directory of kanban boards, notes,
agenda entries, and project descriptors, publishes domain change events,
keeps read caches and a SQLite index coherent, and runs user-defined
automation actions.

Data layout under the data root:
  boards/*.md            kanban boards
  notes/**               notes
  agenda/**              agenda entries
  projects/*/project.yaml project descriptors

Configuration is read from ~/.config/mkanban/config.yaml (or --config),
with MKANBAN_* environment overrides.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/mkanban/config.yaml)")
}
