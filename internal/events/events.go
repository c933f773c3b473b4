// Package events provides the process-wide event bus that decouples
// producers (file watcher, services, VCS hooks) from consumers (cache
// invalidators, the action engine, the dashboard).
//
// Events are identified by string tags. Payloads are plain structs; nothing
// is persisted, and a handler registered after a publish never sees that
// publish.
package events

import (
	"time"

	"github.com/blendonl/mkanban-mobile/internal/types"
)

// Domain event types published across the application. This module defines
// the subscriber contract for all of them; producers for the task, board,
// column, note, and VCS families live outside this core.
const (
	TaskCreated  = "task_created"
	TaskUpdated  = "task_updated"
	TaskDeleted  = "task_deleted"
	TaskMoved    = "task_moved"
	BoardCreated = "board_created"
	BoardUpdated = "board_updated"
	BoardDeleted = "board_deleted"

	ColumnCreated = "column_created"
	ColumnUpdated = "column_updated"
	ColumnDeleted = "column_deleted"
	ColumnMoved   = "column_moved"

	NoteCreated = "note_created"
	NoteUpdated = "note_updated"
	NoteDeleted = "note_deleted"

	VCSBranchCreated = "vcs_branch_created"
	VCSCommitCreated = "vcs_commit_created"

	AppForeground = "app_foreground"
	AppBackground = "app_background"

	// FileChanged is published by the file watcher for every classified
	// external change, one event per changed file.
	FileChanged = "file_changed"

	// ActionExecuted is published after the action engine runs an action.
	ActionExecuted = "action_executed"

	BoardCacheInvalidated = "board_cache_invalidated"
	NoteCacheInvalidated  = "note_cache_invalidated"
)

// FileChangedPayload is the payload for FileChanged events.
type FileChangedPayload struct {
	Entity types.EntityType
	Change types.ChangeType
	Path   string
}

// ScopedPayload carries the board/task identity an event pertains to.
// Events published by the task/board producers use it so scoped actions
// can match against their target.
type ScopedPayload struct {
	BoardID string
	TaskID  string
}

// ActionExecutedPayload is the payload for ActionExecuted events.
type ActionExecutedPayload struct {
	ActionID   string
	ActionType string
	FiredAt    time.Time
}
