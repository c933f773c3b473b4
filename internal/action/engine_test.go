package action

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/events"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu   sync.Mutex
	defs map[string]*Definition
}

func newMemStore(defs ...*Definition) *memStore {
	s := &memStore{defs: make(map[string]*Definition)}
	for _, d := range defs {
		s.defs[d.ID] = d
	}
	return s
}

func (s *memStore) ListActionsContext(_ context.Context) ([]*Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	return out, nil
}

func (s *memStore) ListEnabledByTriggerKindContext(_ context.Context, kind TriggerKind) ([]*Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Definition
	for _, d := range s.defs {
		if d.Enabled && d.Trigger.Kind == kind {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) DeleteActionContext(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, id)
	return nil
}

func (s *memStore) MarkActionFired(_ context.Context, id string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.defs[id]; ok {
		t := firedAt
		d.LastFiredAt = &t
	}
	return nil
}

func (s *memStore) lastFired(id string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.defs[id]; ok {
		return d.LastFiredAt
	}
	return nil
}

func (s *memStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[id]
	return ok
}

// memResolver resolves board/task existence from fixed sets.
type memResolver struct {
	boards map[string]bool
	tasks  map[string]bool
	err    error
}

func (r *memResolver) BoardExists(_ context.Context, id string) (bool, error) {
	return r.boards[id], r.err
}

func (r *memResolver) TaskExists(_ context.Context, id string) (bool, error) {
	return r.tasks[id], r.err
}

// recordingExecutor captures invocations.
type recordingExecutor struct {
	mu    sync.Mutex
	fired []Invocation
	byID  map[string]int
	fail  map[string]bool
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{byID: make(map[string]int), fail: make(map[string]bool)}
}

func (e *recordingExecutor) Execute(_ context.Context, def *Definition, inv Invocation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[def.ID] {
		return fmt.Errorf("executor refused")
	}
	e.fired = append(e.fired, inv)
	e.byID[def.ID]++
	return nil
}

func (e *recordingExecutor) count(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byID[id]
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func intervalDef(id string, every time.Duration) *Definition {
	return &Definition{
		ID:      id,
		Type:    "notify",
		Scope:   Scope{Kind: ScopeGlobal},
		Enabled: true,
		Trigger: Trigger{Kind: TriggerTime, Every: every},
	}
}

func eventDef(id string, scope Scope, eventTypes ...string) *Definition {
	return &Definition{
		ID:      id,
		Type:    "notify",
		Scope:   scope,
		Enabled: true,
		Trigger: Trigger{Kind: TriggerEvent, Events: eventTypes},
	}
}

func TestEvaluateTimeTriggersFiresDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)

	due := intervalDef("due", 15*time.Minute)
	notDue := intervalDef("not-due", 15*time.Minute)
	notDue.LastFiredAt = &recent

	store := newMemStore(due, notDue)
	exec := newRecordingExecutor()
	engine := NewEngine(store, &memResolver{}, exec, nil, discardLogger())
	engine.now = func() time.Time { return now }

	if err := engine.EvaluateTimeTriggers(context.Background()); err != nil {
		t.Fatalf("EvaluateTimeTriggers failed: %v", err)
	}

	if exec.count("due") != 1 {
		t.Errorf("due action fired %d times, expected 1", exec.count("due"))
	}
	if exec.count("not-due") != 0 {
		t.Errorf("not-due action fired %d times, expected 0", exec.count("not-due"))
	}
	if fired := store.lastFired("due"); fired == nil || !fired.Equal(now) {
		t.Errorf("expected due action marked fired at %v, got %v", now, fired)
	}
}

func TestEvaluateTimeTriggersSkipsDisabled(t *testing.T) {
	def := intervalDef("off", time.Minute)
	def.Enabled = false

	store := newMemStore(def)
	exec := newRecordingExecutor()
	engine := NewEngine(store, &memResolver{}, exec, nil, discardLogger())

	if err := engine.EvaluateTimeTriggers(context.Background()); err != nil {
		t.Fatalf("EvaluateTimeTriggers failed: %v", err)
	}
	if exec.count("off") != 0 {
		t.Error("disabled action fired")
	}
}

func TestEvaluateEventTriggersScope(t *testing.T) {
	global := eventDef("global", Scope{Kind: ScopeGlobal}, "task_moved")
	workOnly := eventDef("work-only", Scope{Kind: ScopeBoard, TargetID: "work"}, "task_moved")
	homeOnly := eventDef("home-only", Scope{Kind: ScopeBoard, TargetID: "home"}, "task_moved")
	otherEvent := eventDef("other-event", Scope{Kind: ScopeGlobal}, "note_created")

	store := newMemStore(global, workOnly, homeOnly, otherEvent)
	exec := newRecordingExecutor()
	engine := NewEngine(store, &memResolver{}, exec, nil, discardLogger())

	payload := events.ScopedPayload{BoardID: "work", TaskID: "t-1"}
	if err := engine.EvaluateEventTriggers(context.Background(), "task_moved", payload); err != nil {
		t.Fatalf("EvaluateEventTriggers failed: %v", err)
	}

	if exec.count("global") != 1 {
		t.Error("global action did not fire")
	}
	if exec.count("work-only") != 1 {
		t.Error("matching board-scoped action did not fire")
	}
	if exec.count("home-only") != 0 {
		t.Error("non-matching board-scoped action fired")
	}
	if exec.count("other-event") != 0 {
		t.Error("action for a different event type fired")
	}
}

func TestEvaluateEventTriggersCarriesInvocation(t *testing.T) {
	def := eventDef("a", Scope{Kind: ScopeTask, TargetID: "t-1"}, "task_updated")
	store := newMemStore(def)
	exec := newRecordingExecutor()
	engine := NewEngine(store, &memResolver{}, exec, nil, discardLogger())

	payload := events.ScopedPayload{BoardID: "work", TaskID: "t-1"}
	if err := engine.EvaluateEventTriggers(context.Background(), "task_updated", payload); err != nil {
		t.Fatalf("EvaluateEventTriggers failed: %v", err)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.fired) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(exec.fired))
	}
	inv := exec.fired[0]
	if inv.EventType != "task_updated" || inv.BoardID != "work" || inv.TaskID != "t-1" {
		t.Errorf("unexpected invocation: %+v", inv)
	}
}

func TestExecutorFailureDoesNotMarkFired(t *testing.T) {
	def := intervalDef("flaky", time.Minute)
	store := newMemStore(def)
	exec := newRecordingExecutor()
	exec.fail["flaky"] = true

	engine := NewEngine(store, &memResolver{}, exec, nil, discardLogger())
	if err := engine.EvaluateTimeTriggers(context.Background()); err != nil {
		t.Fatalf("EvaluateTimeTriggers failed: %v", err)
	}

	if store.lastFired("flaky") != nil {
		t.Error("failed execution must not be marked fired")
	}
}

func TestExecutorPanicIsContained(t *testing.T) {
	def := intervalDef("bomb", time.Minute)
	other := intervalDef("fine", time.Minute)
	store := newMemStore(def, other)

	exec := &panicExecutor{inner: newRecordingExecutor()}
	engine := NewEngine(store, &memResolver{}, exec, nil, discardLogger())

	if err := engine.EvaluateTimeTriggers(context.Background()); err != nil {
		t.Fatalf("EvaluateTimeTriggers failed: %v", err)
	}
	if exec.inner.count("fine") != 1 {
		t.Error("panicking action blocked the rest of the batch")
	}
}

type panicExecutor struct {
	inner *recordingExecutor
}

func (e *panicExecutor) Execute(ctx context.Context, def *Definition, inv Invocation) error {
	if def.ID == "bomb" {
		panic("executor blew up")
	}
	return e.inner.Execute(ctx, def, inv)
}

func TestReconcileOrphans(t *testing.T) {
	global := eventDef("global", Scope{Kind: ScopeGlobal}, "task_moved")
	liveBoard := eventDef("live-board", Scope{Kind: ScopeBoard, TargetID: "work"}, "task_moved")
	deadBoard := eventDef("dead-board", Scope{Kind: ScopeBoard, TargetID: "gone"}, "task_moved")
	deadTask := intervalDef("dead-task", time.Minute)
	deadTask.Scope = Scope{Kind: ScopeTask, TargetID: "t-gone"}

	store := newMemStore(global, liveBoard, deadBoard, deadTask)
	resolver := &memResolver{boards: map[string]bool{"work": true}, tasks: map[string]bool{}}
	engine := NewEngine(store, resolver, newRecordingExecutor(), nil, discardLogger())

	removed, err := engine.ReconcileOrphans(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOrphans failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}
	if !store.has("global") || !store.has("live-board") {
		t.Error("live actions were removed")
	}
	if store.has("dead-board") || store.has("dead-task") {
		t.Error("orphaned actions survived")
	}
}

func TestReconcileOrphansKeepsOnResolverError(t *testing.T) {
	def := eventDef("maybe-dead", Scope{Kind: ScopeBoard, TargetID: "gone"}, "task_moved")
	store := newMemStore(def)
	resolver := &memResolver{err: fmt.Errorf("index unavailable")}
	engine := NewEngine(store, resolver, newRecordingExecutor(), nil, discardLogger())

	removed, err := engine.ReconcileOrphans(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOrphans failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removals on resolver error, got %d", removed)
	}
	if !store.has("maybe-dead") {
		t.Error("action deleted despite resolver error")
	}
}

func TestActionExecutedBroadcast(t *testing.T) {
	bus := events.NewBus(discardLogger())
	executed := make(chan events.ActionExecutedPayload, 1)
	bus.Subscribe(events.ActionExecuted, func(_ context.Context, payload any) error {
		executed <- payload.(events.ActionExecutedPayload)
		return nil
	})

	store := newMemStore(intervalDef("a-1", time.Minute))
	engine := NewEngine(store, &memResolver{}, newRecordingExecutor(), bus, discardLogger())

	if err := engine.EvaluateTimeTriggers(context.Background()); err != nil {
		t.Fatalf("EvaluateTimeTriggers failed: %v", err)
	}

	select {
	case p := <-executed:
		if p.ActionID != "a-1" || p.ActionType != "notify" {
			t.Errorf("unexpected broadcast payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no executed broadcast")
	}
}
