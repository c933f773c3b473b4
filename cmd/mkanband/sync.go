package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blendonl/mkanban-mobile/internal/config"
	"github.com/blendonl/mkanban-mobile/internal/store"
	"github.com/blendonl/mkanban-mobile/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Full sync from board files to the SQLite index",
	Long: `Sync all board files under the data root into the SQLite index.

This performs a full sync:
  1. Walks the data root for boards/*.md files
  2. Upserts an index record per board
  3. Prunes index records whose files are gone

The running daemon does this incrementally; this command is for first-time
setup and for repairing the index after offline edits.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		db, err := store.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Syncing from %s...\n", cfg.DataRoot)
		start := time.Now()

		syncer := sync.New(db, nil)
		stats, err := syncer.FullSync(context.Background(), cfg.DataRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync complete in %v: %d boards synced, %d failed, %d pruned\n",
			time.Since(start).Round(time.Millisecond),
			stats.BoardsSynced, stats.BoardsFailed, stats.BoardsPruned)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
