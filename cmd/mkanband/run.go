package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blendonl/mkanban-mobile/internal/action"
	"github.com/blendonl/mkanban-mobile/internal/cache"
	"github.com/blendonl/mkanban-mobile/internal/config"
	"github.com/blendonl/mkanban-mobile/internal/dashboard"
	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/filestore"
	"github.com/blendonl/mkanban-mobile/internal/store"
	"github.com/blendonl/mkanban-mobile/internal/sync"
	"github.com/blendonl/mkanban-mobile/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon (foreground)",
	Long: `Run the mkanband daemon in foreground mode.

The daemon:
  1. Polls the data root for file changes and publishes domain events
  2. Keeps board/note read caches invalidated on relevant changes
  3. Syncs board files into the SQLite index
  4. Evaluates time- and event-triggered automation actions
  5. Optionally streams events to WebSocket dashboard clients

Run it under a process manager for background operation.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		logOut := logWriter(cfg.Log)
		logger := log.New(logOut, "[mkanband] ", log.LstdFlags)
		logger.Printf("Starting daemon, data root %s", cfg.DataRoot)

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

		bus := events.NewBus(log.New(logOut, "[events] ", log.LstdFlags))

		files := filestore.New(cfg.DataRoot)
		boards := cache.NewCachedBoards(files, bus, log.New(logOut, "[cache] ", log.LstdFlags))
		defer boards.Close()
		notes := cache.NewCachedNotes(files, bus, log.New(logOut, "[cache] ", log.LstdFlags))
		defer notes.Close()

		syncer := sync.New(db, log.New(logOut, "[sync] ", log.LstdFlags))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Initial full sync so the index reflects the tree before the
		// watcher takes over incremental updates.
		stats, err := syncer.FullSync(ctx, cfg.DataRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during initial sync: %v\n", err)
			os.Exit(1)
		}
		logger.Printf("Initial sync: %d boards synced, %d failed, %d pruned",
			stats.BoardsSynced, stats.BoardsFailed, stats.BoardsPruned)

		var subs []*events.Subscription
		subs = append(subs, bus.Subscribe(events.FileChanged, syncer.HandleFileChange))
		for _, et := range []string{events.TaskCreated, events.TaskUpdated, events.TaskMoved, events.TaskDeleted} {
			subs = append(subs, bus.Subscribe(et, syncer.HandleTaskEvent(et)))
		}
		defer func() {
			for _, sub := range subs {
				sub.Unsubscribe()
			}
		}()

		detector := watch.NewDetector()
		watcher := watch.New(cfg.DataRoot, detector, bus, watch.Config{
			PollingInterval: cfg.Watcher.PollingInterval,
			DebounceDelay:   cfg.Watcher.DebounceDelay,
			Enabled:         cfg.Watcher.Enabled,
			Notify:          cfg.Watcher.Notify,
		}, log.New(logOut, "[watch] ", log.LstdFlags))
		watcher.Start()
		defer watcher.Stop()

		engine := action.NewEngine(db, db, nil, bus, log.New(logOut, "[action] ", log.LstdFlags))
		actionDaemon := action.NewDaemon(engine, bus, action.DaemonConfig{
			EvaluationInterval:  cfg.Actions.EvaluationInterval,
			OrphanCheckInterval: cfg.Actions.OrphanCheckInterval,
		}, watcher, log.New(logOut, "[action] ", log.LstdFlags))
		actionDaemon.Start()
		defer actionDaemon.Stop()

		var dash *dashboard.Server
		if cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(bus, dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
			})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			logger.Printf("Dashboard listening on ws://localhost:%d/ws", cfg.Dashboard.Port)
		}

		fmt.Printf("mkanband running, watching %s (Ctrl+C to stop)\n", cfg.DataRoot)
		<-ctx.Done()

		logger.Printf("Shutting down")
		if dash != nil {
			if err := dash.Stop(); err != nil {
				logger.Printf("Dashboard shutdown error: %v", err)
			}
		}
	},
}

// logWriter returns the daemon log destination: a rotated file when one
// is configured, stderr otherwise.
func logWriter(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
