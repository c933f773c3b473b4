package cache

import (
	"context"
	"log"
	"os"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/types"
)

// NoteSource is the plain note service a CachedNotes wraps.
type NoteSource interface {
	Note(ctx context.Context, id string) (*types.Note, error)
	Notes(ctx context.Context) ([]*types.Note, error)
	SaveNote(ctx context.Context, note *types.Note) error
	DeleteNote(ctx context.Context, id string) error
}

// CachedNotes wraps a NoteSource with a lookup cache, mirroring
// CachedBoards but keyed on the note entity kind.
type CachedNotes struct {
	source NoteSource
	bus    *events.Bus
	logger *log.Logger

	byID  *Cache[string, *types.Note]
	lists *Cache[string, []*types.Note]
	sub   *events.Subscription
}

// NewCachedNotes wraps source and subscribes to file-change events. The
// caller must Close the wrapper to release the subscription.
func NewCachedNotes(source NoteSource, bus *events.Bus, logger *log.Logger) *CachedNotes {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	c := &CachedNotes{
		source: source,
		bus:    bus,
		logger: logger,
		byID:   New[string, *types.Note](),
		lists:  New[string, []*types.Note](),
	}
	c.sub = bus.Subscribe(events.FileChanged, c.onFileChanged)
	return c
}

// Close releases the file-change subscription.
func (c *CachedNotes) Close() {
	c.sub.Unsubscribe()
}

// Note returns the note by id, consulting the cache first.
func (c *CachedNotes) Note(ctx context.Context, id string) (*types.Note, error) {
	if note, ok := c.byID.Get(id); ok {
		return note, nil
	}

	note, err := c.source.Note(ctx, id)
	if err != nil {
		return nil, err
	}
	c.byID.Set(id, note)
	return note, nil
}

// Notes returns all notes, consulting the cached listing first.
func (c *CachedNotes) Notes(ctx context.Context) ([]*types.Note, error) {
	if notes, ok := c.lists.Get(listKey); ok {
		return notes, nil
	}

	notes, err := c.source.Notes(ctx)
	if err != nil {
		return nil, err
	}
	c.lists.Set(listKey, notes)
	return notes, nil
}

// SaveNote writes through to the source and invalidates.
func (c *CachedNotes) SaveNote(ctx context.Context, note *types.Note) error {
	if err := c.source.SaveNote(ctx, note); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// DeleteNote deletes through to the source and invalidates.
func (c *CachedNotes) DeleteNote(ctx context.Context, id string) error {
	if err := c.source.DeleteNote(ctx, id); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// onFileChanged clears the cache when a note file changed externally.
func (c *CachedNotes) onFileChanged(_ context.Context, payload any) error {
	change, ok := payload.(events.FileChangedPayload)
	if !ok || change.Entity != types.EntityNote {
		return nil
	}
	c.invalidate()
	return nil
}

func (c *CachedNotes) invalidate() {
	c.byID.Clear()
	c.lists.Clear()
	c.bus.PublishSync(events.NoteCacheInvalidated, nil)
}
