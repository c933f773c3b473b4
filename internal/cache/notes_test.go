package cache

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/types"
)

type fakeNoteSource struct {
	notes map[string]*types.Note
	loads int
}

func (f *fakeNoteSource) Note(_ context.Context, id string) (*types.Note, error) {
	f.loads++
	return f.notes[id], nil
}

func (f *fakeNoteSource) Notes(_ context.Context) ([]*types.Note, error) {
	f.loads++
	out := make([]*types.Note, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNoteSource) SaveNote(_ context.Context, note *types.Note) error {
	f.notes[note.ID] = note
	return nil
}

func (f *fakeNoteSource) DeleteNote(_ context.Context, id string) error {
	delete(f.notes, id)
	return nil
}

func TestNoteCacheInvalidatesOnNoteChangeOnly(t *testing.T) {
	source := &fakeNoteSource{notes: map[string]*types.Note{
		"idea": {ID: "idea", Title: "Idea", Path: "notes/idea.md"},
	}}
	bus := events.NewBus(log.New(io.Discard, "", 0))
	cached := NewCachedNotes(source, bus, log.New(io.Discard, "", 0))
	defer cached.Close()

	ctx := context.Background()

	if _, err := cached.Note(ctx, "idea"); err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	if _, err := cached.Note(ctx, "idea"); err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	if source.loads != 1 {
		t.Fatalf("expected 1 load before invalidation, got %d", source.loads)
	}

	// A board change leaves the note cache warm.
	_ = bus.Publish(ctx, events.FileChanged, events.FileChangedPayload{
		Entity: types.EntityBoard, Change: types.ChangeModified, Path: "boards/work.md",
	})
	if _, err := cached.Note(ctx, "idea"); err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	if source.loads != 1 {
		t.Errorf("board change must not clear note cache, got %d loads", source.loads)
	}

	// A note change clears it.
	_ = bus.Publish(ctx, events.FileChanged, events.FileChangedPayload{
		Entity: types.EntityNote, Change: types.ChangeDeleted, Path: "notes/other.md",
	})
	if _, err := cached.Note(ctx, "idea"); err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	if source.loads != 2 {
		t.Errorf("expected reload after note change, got %d loads", source.loads)
	}
}
