package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/types"
)

// UpsertBoard inserts or updates a board index record.
func (db *DB) UpsertBoard(ctx context.Context, board *types.Board) error {
	if board.ID == "" {
		return fmt.Errorf("board id is required")
	}

	query := `
	INSERT INTO boards (id, title, path, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		path = excluded.path,
		updated_at = excluded.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query,
		board.ID, board.Title, board.Path, board.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert board %s: %w", board.ID, err)
	}
	return nil
}

// DeleteBoard removes a board index record. Idempotent.
func (db *DB) DeleteBoard(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete board %s: %w", id, err)
	}
	return nil
}

// DeleteBoardByPath removes the board indexed under the given file path.
func (db *DB) DeleteBoardByPath(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM boards WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete board at %s: %w", path, err)
	}
	return nil
}

// BoardExists reports whether a board with the given id is indexed.
func (db *DB) BoardExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM boards WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check board %s: %w", id, err)
	}
	return true, nil
}

// ListBoards returns every indexed board.
func (db *DB) ListBoards(ctx context.Context) ([]*types.Board, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, path, updated_at FROM boards ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	var boards []*types.Board
	for rows.Next() {
		var b types.Board
		var updatedAt string
		if err := rows.Scan(&b.ID, &b.Title, &b.Path, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			b.UpdatedAt = t
		}
		boards = append(boards, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boards: %w", err)
	}
	return boards, nil
}

// UpsertTask inserts or updates a task index record.
func (db *DB) UpsertTask(ctx context.Context, task *types.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	query := `
	INSERT INTO tasks (id, board_id, title, path, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		board_id = excluded.board_id,
		title = excluded.title,
		path = excluded.path,
		updated_at = excluded.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query,
		task.ID, task.BoardID, task.Title, task.Path, task.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes a task index record. Idempotent.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// TaskExists reports whether a task with the given id is indexed.
func (db *DB) TaskExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check task %s: %w", id, err)
	}
	return true, nil
}

// BoardCount returns the number of indexed boards.
func (db *DB) BoardCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM boards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count boards: %w", err)
	}
	return count, nil
}

// TaskCount returns the number of indexed tasks.
func (db *DB) TaskCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
