// Package filestore is the minimal file-backed entity service for the
// daemon binary. It resolves boards and notes by walking the data root;
// entity identity derives from filename stems, matching the watcher's
// classification rules. Field-level content parsing belongs to the app
// layer, not here.
package filestore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/types"
	"github.com/blendonl/mkanban-mobile/internal/watch"
)

// ErrNotFound is returned when no file backs the requested id.
var ErrNotFound = fmt.Errorf("entity not found")

// Store serves board and note records from the data root.
type Store struct {
	root string
}

// New creates a store over the given data root.
func New(root string) *Store {
	return &Store{root: root}
}

// Board returns the board backed by <stem>==id, or ErrNotFound.
func (s *Store) Board(ctx context.Context, id string) (*types.Board, error) {
	boards, err := s.Boards(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
}

// Boards returns every board file under the root.
func (s *Store) Boards(ctx context.Context) ([]*types.Board, error) {
	var boards []*types.Board
	err := s.walkEntities(ctx, types.EntityBoard, func(path string, info fs.FileInfo) {
		boards = append(boards, &types.Board{
			ID:        stem(path),
			Title:     humanize(stem(path)),
			Path:      path,
			UpdatedAt: info.ModTime(),
		})
	})
	if err != nil {
		return nil, err
	}
	return boards, nil
}

// SaveBoard creates or touches the board's backing file. Content beyond
// the title heading is owned by the app layer.
func (s *Store) SaveBoard(_ context.Context, board *types.Board) error {
	dir := filepath.Join(s.root, "boards")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create boards directory: %w", err)
	}

	path := board.Path
	if path == "" {
		path = filepath.Join(dir, board.ID+watch.BoardFileExt)
	}
	if _, err := os.Stat(path); err == nil {
		// Existing file keeps its content; just bump the mtime so the
		// watcher sees the write.
		return os.Chtimes(path, touchTime(board.UpdatedAt), touchTime(board.UpdatedAt))
	}

	content := fmt.Sprintf("# %s\n", board.Title)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write board file: %w", err)
	}
	return nil
}

// DeleteBoard removes the board's backing file.
func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	board, err := s.Board(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(board.Path); err != nil {
		return fmt.Errorf("failed to delete board file: %w", err)
	}
	return nil
}

// Note returns the note backed by <stem>==id, or ErrNotFound.
func (s *Store) Note(ctx context.Context, id string) (*types.Note, error) {
	notes, err := s.Notes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
}

// Notes returns every note file under the root.
func (s *Store) Notes(ctx context.Context) ([]*types.Note, error) {
	var notes []*types.Note
	err := s.walkEntities(ctx, types.EntityNote, func(path string, info fs.FileInfo) {
		notes = append(notes, &types.Note{
			ID:        stem(path),
			Title:     humanize(stem(path)),
			Path:      path,
			UpdatedAt: info.ModTime(),
		})
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// SaveNote creates or touches the note's backing file.
func (s *Store) SaveNote(_ context.Context, note *types.Note) error {
	dir := filepath.Join(s.root, "notes")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}

	path := note.Path
	if path == "" {
		path = filepath.Join(dir, note.ID+".md")
	}
	if _, err := os.Stat(path); err == nil {
		return os.Chtimes(path, touchTime(note.UpdatedAt), touchTime(note.UpdatedAt))
	}

	content := fmt.Sprintf("# %s\n", note.Title)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write note file: %w", err)
	}
	return nil
}

// DeleteNote removes the note's backing file.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	note, err := s.Note(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(note.Path); err != nil {
		return fmt.Errorf("failed to delete note file: %w", err)
	}
	return nil
}

// walkEntities visits every file under the root that classifies to the
// given entity kind. Unreadable subtrees are skipped.
func (s *Store) walkEntities(ctx context.Context, entity types.EntityType, visit func(path string, info fs.FileInfo)) error {
	return filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil
		}
		mapped, ok := watch.Classify(types.FileChange{Path: path, IsDir: entry.IsDir()})
		if !ok || mapped.Entity != entity {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		visit(path, info)
		return nil
	})
}

// touchTime never hands a zero time to Chtimes.
func touchTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func humanize(stem string) string {
	return strings.ReplaceAll(strings.ReplaceAll(stem, "-", " "), "_", " ")
}
