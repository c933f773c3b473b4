// Package types provides the shared domain vocabulary for mkanban-mobile.
//
// Boards, tasks, notes, agendas, and project descriptors live as loose
// files under a single data root. The types here are the closed set of
// entity kinds and change kinds that the watcher, caches, index, and
// action engine agree on.
package types

import "time"

// EntityType identifies which kind of entity a file belongs to.
type EntityType int

const (
	// EntityNote is a markdown note under a notes/ segment.
	EntityNote EntityType = iota
	// EntityAgenda is an agenda file under an agenda/ segment.
	EntityAgenda
	// EntityBoard is a kanban board file under a boards/ segment.
	EntityBoard
	// EntityProject is a project descriptor (project.yaml).
	EntityProject
)

// String returns a human-readable representation of the entity type.
func (e EntityType) String() string {
	switch e {
	case EntityNote:
		return "note"
	case EntityAgenda:
		return "agenda"
	case EntityBoard:
		return "board"
	case EntityProject:
		return "project"
	default:
		return "unknown"
	}
}

// ChangeType identifies what happened to a file between two scans.
type ChangeType int

const (
	// ChangeAdded indicates the file appeared since the previous snapshot.
	ChangeAdded ChangeType = iota
	// ChangeModified indicates the file's modification time changed.
	ChangeModified
	// ChangeDeleted indicates the file disappeared since the previous snapshot.
	ChangeDeleted
)

// String returns a human-readable representation of the change type.
func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange is a raw change derived by diffing two snapshots.
type FileChange struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Type is the operation that occurred.
	Type ChangeType
	// IsDir reports whether the path is a directory.
	IsDir bool
}

// MappedFileChange is a FileChange classified to a domain entity kind.
// Directory changes and unrecognized paths never map.
type MappedFileChange struct {
	Entity EntityType
	Type   ChangeType
	Path   string
}

// Board is the index record for a board file. Field-level board content
// (columns, card order) is parsed elsewhere; the index only needs identity.
type Board struct {
	ID        string
	Title     string
	Path      string
	UpdatedAt time.Time
}

// Task is the index record for a task belonging to a board.
type Task struct {
	ID        string
	BoardID   string
	Title     string
	Path      string
	UpdatedAt time.Time
}

// Note is the record cached for a note file.
type Note struct {
	ID        string
	Title     string
	Path      string
	UpdatedAt time.Time
}
