// Package watch provides external change detection for the mkanban data
// root: a polling snapshot/diff detector, a path classifier, and the
// debouncing file watcher that publishes classified changes onto the
// event bus.
//
// Detection is polling-based on purpose. The data root is frequently a
// synced or mounted directory where inotify-style notification is lossy;
// the mtime snapshot diff is the single source of truth, and fsnotify is
// used only as an optional promptness hint (see Watcher).
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/types"
)

// FileState is the per-file metadata recorded by a scan.
type FileState struct {
	Path    string
	ModTime time.Time
	IsDir   bool
}

// Snapshot is a point-in-time map of file path to metadata for a root.
// Snapshots are ephemeral and recomputed on every scan.
type Snapshot map[string]FileState

// Detector diffs consecutive snapshots of a directory tree.
//
// A Detector instance is owned by exactly one watcher; Diff always runs
// against the last snapshot passed to Commit. The first scan after Reset
// (or construction) primes the stored snapshot and reports no changes,
// even if files exist.
type Detector struct {
	mu     sync.Mutex
	prev   Snapshot
	primed bool
}

// NewDetector creates a detector with no stored snapshot.
func NewDetector() *Detector {
	return &Detector{}
}

// Scan walks the directory tree rooted at root and returns its snapshot.
//
// Transient I/O failures are tolerated: an unreadable root yields an empty
// snapshot and a nil error, and unreadable subtrees are skipped, so the
// watcher loop survives unmounted paths and permissions revoked
// mid-session.
func (d *Detector) Scan(ctx context.Context, root string) (Snapshot, error) {
	snap := make(Snapshot)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				// Unreadable root reads as an empty tree, not a failure.
				return filepath.SkipAll
			}
			return nil
		}
		if path == root {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			// File vanished between listing and stat.
			return nil
		}

		snap[path] = FileState{
			Path:    path,
			ModTime: info.ModTime(),
			IsDir:   entry.IsDir(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// Diff compares next against the stored snapshot and returns the raw
// changes. Ordering is unspecified; callers treat the result as a set.
// Before the first Commit, Diff returns nil (priming, not a burst of
// "added" events).
func (d *Detector) Diff(next Snapshot) []types.FileChange {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.primed {
		return nil
	}

	var changes []types.FileChange

	for path, state := range next {
		old, ok := d.prev[path]
		switch {
		case !ok:
			changes = append(changes, types.FileChange{Path: path, Type: types.ChangeAdded, IsDir: state.IsDir})
		case !old.ModTime.Equal(state.ModTime):
			changes = append(changes, types.FileChange{Path: path, Type: types.ChangeModified, IsDir: state.IsDir})
		}
	}

	for path, old := range d.prev {
		if _, ok := next[path]; !ok {
			changes = append(changes, types.FileChange{Path: path, Type: types.ChangeDeleted, IsDir: old.IsDir})
		}
	}

	return changes
}

// Commit replaces the stored snapshot. Callers must queue any change
// events derived from the previous snapshot before committing, otherwise
// a change can be silently absorbed as "no diff".
func (d *Detector) Commit(next Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prev = next
	d.primed = true
}

// Reset clears the stored snapshot. The next Scan+Diff primes again and
// reports no changes.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prev = nil
	d.primed = false
}
