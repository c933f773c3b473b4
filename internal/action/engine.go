package action

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/events"
)

// Store is what the engine needs from action persistence.
type Store interface {
	ListActionsContext(ctx context.Context) ([]*Definition, error)
	ListEnabledByTriggerKindContext(ctx context.Context, kind TriggerKind) ([]*Definition, error)
	DeleteActionContext(ctx context.Context, id string) error
	MarkActionFired(ctx context.Context, id string, firedAt time.Time) error
}

// Resolver reports whether a scoped target still resolves to a live
// board or task. Backed by the store's entity index.
type Resolver interface {
	BoardExists(ctx context.Context, id string) (bool, error)
	TaskExists(ctx context.Context, id string) (bool, error)
}

// Invocation carries the context of one action firing.
type Invocation struct {
	EventType string
	BoardID   string
	TaskID    string
	FiredAt   time.Time
}

// Executor performs the side effect of a single action. Implementations
// should be idempotent by their own definition; the engine does not
// deduplicate overlapping evaluations.
type Executor interface {
	Execute(ctx context.Context, def *Definition, inv Invocation) error
}

// LogExecutor is the default Executor: it records the firing and does
// nothing else. Real side effects (notifications, cleanup writes) plug in
// through the Executor interface.
type LogExecutor struct {
	Logger *log.Logger
}

// Execute implements Executor.
func (e *LogExecutor) Execute(_ context.Context, def *Definition, inv Invocation) error {
	logger := e.Logger
	if logger == nil {
		logger = log.Default()
	}
	if inv.EventType != "" {
		logger.Printf("Action %s (%s) fired on %s", def.ID, def.Type, inv.EventType)
	} else {
		logger.Printf("Action %s (%s) fired on schedule", def.ID, def.Type)
	}
	return nil
}

// Engine evaluates triggers against the stored action definitions and
// executes the ones that match. All evaluation entry points are safe to
// call concurrently; each action execution is independent.
type Engine struct {
	store    Store
	resolver Resolver
	executor Executor
	bus      *events.Bus
	logger   *log.Logger

	// now is a seam for tests.
	now func() time.Time
}

// NewEngine creates an engine. A nil executor falls back to LogExecutor;
// a nil logger falls back to a stderr logger.
func NewEngine(store Store, resolver Resolver, executor Executor, bus *events.Bus, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[action] ", log.LstdFlags)
	}
	if executor == nil {
		executor = &LogExecutor{Logger: logger}
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		executor: executor,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// EvaluateTimeTriggers loads enabled time-triggered actions and executes
// every one whose schedule is satisfied by "now". Overlapping invocations
// (a forced evaluation racing a scheduled tick) are allowed; dedup is the
// action's own responsibility.
func (e *Engine) EvaluateTimeTriggers(ctx context.Context) error {
	defs, err := e.store.ListEnabledByTriggerKindContext(ctx, TriggerTime)
	if err != nil {
		return fmt.Errorf("failed to load time-triggered actions: %w", err)
	}

	now := e.now()
	for _, def := range defs {
		var lastFired time.Time
		if def.LastFiredAt != nil {
			lastFired = *def.LastFiredAt
		}
		if !def.Trigger.Due(now, lastFired) {
			continue
		}
		e.runOne(ctx, def, Invocation{FiredAt: now})
	}
	return nil
}

// EvaluateEventTriggers loads enabled event-triggered actions interested
// in eventType and executes the ones whose scope matches the payload's
// board/task identity.
func (e *Engine) EvaluateEventTriggers(ctx context.Context, eventType string, payload any) error {
	defs, err := e.store.ListEnabledByTriggerKindContext(ctx, TriggerEvent)
	if err != nil {
		return fmt.Errorf("failed to load event-triggered actions: %w", err)
	}

	var boardID, taskID string
	if scoped, ok := payload.(events.ScopedPayload); ok {
		boardID, taskID = scoped.BoardID, scoped.TaskID
	}

	now := e.now()
	for _, def := range defs {
		if !def.Trigger.WantsEvent(eventType) {
			continue
		}
		if !def.ScopeMatches(boardID, taskID) {
			continue
		}
		e.runOne(ctx, def, Invocation{EventType: eventType, BoardID: boardID, TaskID: taskID, FiredAt: now})
	}
	return nil
}

// ReconcileOrphans deletes actions whose scoped target no longer resolves
// to a live board or task, bounding storage growth when entities are
// deleted outside the automation system's awareness. Returns the number
// of actions removed.
func (e *Engine) ReconcileOrphans(ctx context.Context) (int, error) {
	defs, err := e.store.ListActionsContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load actions: %w", err)
	}

	removed := 0
	for _, def := range defs {
		if def.Scope.Kind == ScopeGlobal {
			continue
		}

		var exists bool
		var resolveErr error
		switch def.Scope.Kind {
		case ScopeBoard:
			exists, resolveErr = e.resolver.BoardExists(ctx, def.Scope.TargetID)
		case ScopeTask:
			exists, resolveErr = e.resolver.TaskExists(ctx, def.Scope.TargetID)
		}
		if resolveErr != nil {
			// Resolution failures are transient; never delete on doubt.
			e.logger.Printf("Warning: failed to resolve target for action %s: %v", def.ID, resolveErr)
			continue
		}
		if exists {
			continue
		}

		if err := e.store.DeleteActionContext(ctx, def.ID); err != nil {
			e.logger.Printf("Warning: failed to delete orphaned action %s: %v", def.ID, err)
			continue
		}
		e.logger.Printf("Deleted orphaned action %s (%s target %s gone)",
			def.ID, def.Scope.Kind, def.Scope.TargetID)
		removed++
	}

	return removed, nil
}

// runOne executes a single action, containing errors and panics so one
// broken action cannot block the rest of the batch.
func (e *Engine) runOne(ctx context.Context, def *Definition, inv Invocation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("Action %s panicked: %v", def.ID, r)
		}
	}()

	if err := e.executor.Execute(ctx, def, inv); err != nil {
		e.logger.Printf("Action %s failed: %v", def.ID, err)
		return
	}

	if err := e.store.MarkActionFired(ctx, def.ID, inv.FiredAt); err != nil {
		e.logger.Printf("Warning: failed to record firing of action %s: %v", def.ID, err)
	}

	if e.bus != nil {
		e.bus.PublishSync(events.ActionExecuted, events.ActionExecutedPayload{
			ActionID:   def.ID,
			ActionType: def.Type,
			FiredAt:    inv.FiredAt,
		})
	}
}
