package cache

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/types"
	"github.com/blendonl/mkanban-mobile/internal/watch"
)

// Creating a board file while the watcher runs must produce exactly one
// FileChanged event and clear the board cache exactly once.
func TestWatcherFileChangeClearsBoardCache(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "boards"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	bus := events.NewBus(log.New(io.Discard, "", 0))
	source := newFakeBoardSource()
	cached := NewCachedBoards(source, bus, log.New(io.Discard, "", 0))
	t.Cleanup(cached.Close)

	received := make(chan events.FileChangedPayload, 8)
	bus.Subscribe(events.FileChanged, func(_ context.Context, payload any) error {
		if p, ok := payload.(events.FileChangedPayload); ok {
			received <- p
		}
		return nil
	})

	cfg := watch.Config{
		PollingInterval: 50 * time.Millisecond,
		DebounceDelay:   100 * time.Millisecond,
		Enabled:         true,
	}
	w := watch.New(root, watch.NewDetector(), bus, cfg, log.New(io.Discard, "", 0))
	w.Start()
	t.Cleanup(w.Stop)

	// Let the priming scan commit before mutating the tree.
	time.Sleep(200 * time.Millisecond)

	ctx := context.Background()
	if _, err := cached.Board(ctx, "work"); err != nil {
		t.Fatalf("Board failed: %v", err)
	}
	if source.loads != 1 {
		t.Fatalf("expected 1 source load before the change, got %d", source.loads)
	}

	path := filepath.Join(root, "boards", "x.md")
	if err := os.WriteFile(path, []byte("# X\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var got events.FileChangedPayload
	select {
	case got = <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("no file_changed event for the new board file")
	}
	if got.Entity != types.EntityBoard || got.Change != types.ChangeAdded {
		t.Errorf("expected board/added, got %v/%v", got.Entity, got.Change)
	}
	if got.Path != path {
		t.Errorf("expected path %s, got %s", path, got.Path)
	}

	// The single change must flush exactly once.
	select {
	case extra := <-received:
		t.Errorf("unexpected extra event: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}

	if _, err := cached.Board(ctx, "work"); err != nil {
		t.Fatalf("Board failed: %v", err)
	}
	if source.loads != 2 {
		t.Errorf("expected exactly one cache clear (2 loads), got %d loads", source.loads)
	}
}
