package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blendonl/mkanban-mobile/internal/config"
	"github.com/blendonl/mkanban-mobile/internal/types"
	"github.com/blendonl/mkanban-mobile/internal/watch"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan the data root and show how files classify",
	Long: `Scan the data root once and print every file the watcher would track,
with the entity kind each one classifies as.

This uses the same scanner and classification rules as the running daemon,
without starting it. Files that do not classify (wrong directory, wrong
extension) are counted but not listed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		snap, err := watch.NewDetector().Scan(context.Background(), cfg.DataRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning %s: %v\n", cfg.DataRoot, err)
			os.Exit(1)
		}

		var mapped []types.MappedFileChange
		files := 0
		for path, state := range snap {
			if state.IsDir {
				continue
			}
			files++
			mc, ok := watch.Classify(types.FileChange{Path: path, Type: types.ChangeAdded})
			if ok {
				mapped = append(mapped, mc)
			}
		}
		sort.Slice(mapped, func(i, j int) bool { return mapped[i].Path < mapped[j].Path })

		counts := make(map[types.EntityType]int)
		for _, mc := range mapped {
			counts[mc.Entity]++
			rel, err := filepath.Rel(cfg.DataRoot, mc.Path)
			if err != nil {
				rel = mc.Path
			}
			fmt.Printf("  %-8s %s\n", mc.Entity, rel)
		}

		fmt.Printf("%s: %d files, %d tracked (%d boards, %d notes, %d agendas, %d projects)\n",
			cfg.DataRoot, files, len(mapped),
			counts[types.EntityBoard], counts[types.EntityNote],
			counts[types.EntityAgenda], counts[types.EntityProject])
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
