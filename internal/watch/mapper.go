package watch

import (
	"path/filepath"
	"strings"

	"github.com/blendonl/mkanban-mobile/internal/types"
)

const (
	// BoardFileExt is the extension board files carry under boards/.
	BoardFileExt = ".md"

	// ProjectDescriptorName is the canonical project descriptor filename.
	ProjectDescriptorName = "project.yaml"
)

// Classify maps a raw file change to a domain entity kind using path
// pattern rules, first match wins:
//
//  1. path contains an "agenda" segment  -> agenda
//  2. path contains a "notes" segment    -> note
//  3. path contains a "boards" segment and has the board extension -> board
//  4. path contains a "projects" segment and is the project descriptor -> project
//
// Directory changes and unrecognized paths return ok=false; only leaf-file
// changes are meaningful downstream.
func Classify(change types.FileChange) (types.MappedFileChange, bool) {
	if change.IsDir {
		return types.MappedFileChange{}, false
	}

	mapped := types.MappedFileChange{Type: change.Type, Path: change.Path}

	switch {
	case hasSegment(change.Path, "agenda"):
		mapped.Entity = types.EntityAgenda
	case hasSegment(change.Path, "notes"):
		mapped.Entity = types.EntityNote
	case hasSegment(change.Path, "boards") && filepath.Ext(change.Path) == BoardFileExt:
		mapped.Entity = types.EntityBoard
	case hasSegment(change.Path, "projects") && filepath.Base(change.Path) == ProjectDescriptorName:
		mapped.Entity = types.EntityProject
	default:
		return types.MappedFileChange{}, false
	}

	return mapped, true
}

// hasSegment reports whether any path component equals segment exactly.
// Substring matches ("my-notes") don't count.
func hasSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}
