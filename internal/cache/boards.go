package cache

import (
	"context"
	"log"
	"os"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/types"
)

// listKey is the composite key under which full listings are cached.
const listKey = "__all__"

// BoardSource is the plain board service a CachedBoards wraps. It loads
// and stores boards against the backing file store; its concrete parsing
// and serialization live outside this core.
type BoardSource interface {
	Board(ctx context.Context, id string) (*types.Board, error)
	Boards(ctx context.Context) ([]*types.Board, error)
	SaveBoard(ctx context.Context, board *types.Board) error
	DeleteBoard(ctx context.Context, id string) error
}

// CachedBoards wraps a BoardSource with a lookup cache. Reads populate on
// miss; writes pass through and clear the cache wholesale. The wrapper
// also self-invalidates on file-change events for boards, so edits made
// outside the app are reflected without the app's own write path firing.
type CachedBoards struct {
	source BoardSource
	bus    *events.Bus
	logger *log.Logger

	byID  *Cache[string, *types.Board]
	lists *Cache[string, []*types.Board]
	sub   *events.Subscription
}

// NewCachedBoards wraps source and subscribes to file-change events. The
// caller must Close the wrapper to release the subscription. If logger is
// nil, a default logger writing to stderr is used.
func NewCachedBoards(source BoardSource, bus *events.Bus, logger *log.Logger) *CachedBoards {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	c := &CachedBoards{
		source: source,
		bus:    bus,
		logger: logger,
		byID:   New[string, *types.Board](),
		lists:  New[string, []*types.Board](),
	}
	c.sub = bus.Subscribe(events.FileChanged, c.onFileChanged)
	return c
}

// Close releases the file-change subscription.
func (c *CachedBoards) Close() {
	c.sub.Unsubscribe()
}

// Board returns the board by id, consulting the cache first.
func (c *CachedBoards) Board(ctx context.Context, id string) (*types.Board, error) {
	if board, ok := c.byID.Get(id); ok {
		return board, nil
	}

	board, err := c.source.Board(ctx, id)
	if err != nil {
		return nil, err
	}
	c.byID.Set(id, board)
	return board, nil
}

// Boards returns all boards, consulting the cached listing first.
func (c *CachedBoards) Boards(ctx context.Context) ([]*types.Board, error) {
	if boards, ok := c.lists.Get(listKey); ok {
		return boards, nil
	}

	boards, err := c.source.Boards(ctx)
	if err != nil {
		return nil, err
	}
	c.lists.Set(listKey, boards)
	return boards, nil
}

// SaveBoard writes through to the source and invalidates.
func (c *CachedBoards) SaveBoard(ctx context.Context, board *types.Board) error {
	if err := c.source.SaveBoard(ctx, board); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// DeleteBoard deletes through to the source and invalidates.
func (c *CachedBoards) DeleteBoard(ctx context.Context, id string) error {
	if err := c.source.DeleteBoard(ctx, id); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// onFileChanged clears the cache when a board file changed externally.
// Changes to other entity kinds are ignored.
func (c *CachedBoards) onFileChanged(_ context.Context, payload any) error {
	change, ok := payload.(events.FileChangedPayload)
	if !ok || change.Entity != types.EntityBoard {
		return nil
	}
	c.invalidate()
	return nil
}

// invalidate clears both caches and broadcasts the invalidation so UI
// layers can react without polling.
func (c *CachedBoards) invalidate() {
	c.byID.Clear()
	c.lists.Clear()
	c.bus.PublishSync(events.BoardCacheInvalidated, nil)
}
