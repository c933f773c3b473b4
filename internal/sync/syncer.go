// Package sync keeps the SQLite entity index consistent with the file
// root. It consumes classified file-change events for boards and the
// task lifecycle events published by the app's own write path, so the
// index reflects both external edits and in-app changes.
//
// Only identity is indexed (id, title, path, mtime); parsing board or
// note content is out of scope here. A board's id derives from its
// filename stem, which is stable under last-write-wins semantics.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/store"
	"github.com/blendonl/mkanban-mobile/internal/types"
	"github.com/blendonl/mkanban-mobile/internal/watch"
)

// Stats summarizes a full sync pass.
type Stats struct {
	BoardsSynced int
	BoardsFailed int
	BoardsPruned int
}

// Syncer maintains the board/task index in the store.
type Syncer interface {
	// SyncBoard indexes (or, if the file is gone, unindexes) one board file.
	SyncBoard(ctx context.Context, path string) error

	// FullSync walks the root, indexes every board file, and prunes index
	// records whose files no longer exist. Individual file failures are
	// logged, not fatal.
	FullSync(ctx context.Context, root string) (Stats, error)

	// HandleFileChange is the event-bus handler for FileChanged events.
	HandleFileChange(ctx context.Context, payload any) error

	// HandleTaskEvent returns an event-bus handler for the given task
	// lifecycle event type.
	HandleTaskEvent(eventType string) events.Handler
}

// syncer implements Syncer against the SQLite store.
type syncer struct {
	db     *store.DB
	logger *log.Logger
}

// New creates a Syncer. The database must have its schema initialized.
// If logger is nil, a default logger writing to stderr is used.
func New(db *store.DB, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{db: db, logger: logger}
}

// SyncBoard implements Syncer.SyncBoard.
func (s *syncer) SyncBoard(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := s.db.DeleteBoardByPath(ctx, path); err != nil {
			return fmt.Errorf("failed to unindex board: %w", err)
		}
		s.logger.Printf("Unindexed board at %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat board file: %w", err)
	}

	board := boardFromPath(path, info.ModTime())
	if err := s.db.UpsertBoard(ctx, board); err != nil {
		return fmt.Errorf("failed to index board: %w", err)
	}

	s.logger.Printf("Indexed board: %s (%s)", board.ID, board.Path)
	return nil
}

// FullSync implements Syncer.FullSync.
func (s *syncer) FullSync(ctx context.Context, root string) (Stats, error) {
	var stats Stats

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil
		}
		change := types.FileChange{Path: path, Type: types.ChangeAdded, IsDir: entry.IsDir()}
		mapped, ok := watch.Classify(change)
		if !ok || mapped.Entity != types.EntityBoard {
			return nil
		}
		if err := s.SyncBoard(ctx, path); err != nil {
			s.logger.Printf("Warning: failed to sync %s: %v", path, err)
			stats.BoardsFailed++
			return nil
		}
		stats.BoardsSynced++
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("full sync aborted: %w", err)
	}

	pruned, err := s.pruneBoards(ctx)
	if err != nil {
		return stats, err
	}
	stats.BoardsPruned = pruned

	s.logger.Printf("Full sync complete: boards=%d (failed=%d, pruned=%d)",
		stats.BoardsSynced, stats.BoardsFailed, stats.BoardsPruned)
	return stats, nil
}

// HandleFileChange implements Syncer.HandleFileChange.
func (s *syncer) HandleFileChange(ctx context.Context, payload any) error {
	change, ok := payload.(events.FileChangedPayload)
	if !ok || change.Entity != types.EntityBoard {
		return nil
	}

	switch change.Change {
	case types.ChangeAdded, types.ChangeModified:
		return s.SyncBoard(ctx, change.Path)
	case types.ChangeDeleted:
		return s.db.DeleteBoardByPath(ctx, change.Path)
	}
	return nil
}

// HandleTaskEvent implements Syncer.HandleTaskEvent.
func (s *syncer) HandleTaskEvent(eventType string) events.Handler {
	return func(ctx context.Context, payload any) error {
		scoped, ok := payload.(events.ScopedPayload)
		if !ok || scoped.TaskID == "" {
			return nil
		}

		switch eventType {
		case events.TaskCreated, events.TaskUpdated, events.TaskMoved:
			task := &types.Task{ID: scoped.TaskID, BoardID: scoped.BoardID, Title: scoped.TaskID}
			return s.db.UpsertTask(ctx, task)
		case events.TaskDeleted:
			return s.db.DeleteTask(ctx, scoped.TaskID)
		}
		return nil
	}
}

// pruneBoards deletes index records whose files are gone.
func (s *syncer) pruneBoards(ctx context.Context) (int, error) {
	boards, err := s.db.ListBoards(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed boards: %w", err)
	}

	pruned := 0
	for _, board := range boards {
		if _, err := os.Stat(board.Path); os.IsNotExist(err) {
			if err := s.db.DeleteBoard(ctx, board.ID); err != nil {
				s.logger.Printf("Warning: failed to prune board %s: %v", board.ID, err)
				continue
			}
			pruned++
		}
	}
	return pruned, nil
}

// boardFromPath derives a board index record from its file path. The id
// is the filename stem; the title is the stem with separators humanized.
func boardFromPath(path string, modTime time.Time) *types.Board {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := strings.ReplaceAll(strings.ReplaceAll(stem, "-", " "), "_", " ")
	return &types.Board{
		ID:        stem,
		Title:     title,
		Path:      path,
		UpdatedAt: modTime,
	}
}
