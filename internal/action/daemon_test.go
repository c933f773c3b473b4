package action

import (
	"context"
	"testing"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/events"
)

func newTestDaemon(t *testing.T, store Store, exec Executor, bus *events.Bus, refresher Refresher) *Daemon {
	t.Helper()
	engine := NewEngine(store, &memResolver{}, exec, bus, discardLogger())
	d := NewDaemon(engine, bus, DaemonConfig{
		EvaluationInterval:  50 * time.Millisecond,
		OrphanCheckInterval: time.Hour,
	}, refresher, discardLogger())
	t.Cleanup(func() {
		if d.Status() == StateRunning {
			d.Stop()
		}
	})
	return d
}

func TestDaemonLifecycle(t *testing.T) {
	bus := events.NewBus(discardLogger())
	d := newTestDaemon(t, newMemStore(), newRecordingExecutor(), bus, nil)

	if d.Status() != StateStopped {
		t.Fatalf("initial state = %v, want stopped", d.Status())
	}

	d.Start()
	if d.Status() != StateRunning {
		t.Fatalf("state after Start = %v, want running", d.Status())
	}
	if bus.TotalSubscriptions() == 0 {
		t.Fatal("Start registered no subscriptions")
	}

	d.Stop()
	if d.Status() != StateStopped {
		t.Fatalf("state after Stop = %v, want stopped", d.Status())
	}
	if got := bus.TotalSubscriptions(); got != 0 {
		t.Errorf("teardown left %d subscriptions", got)
	}
}

func TestDaemonStartTwiceIgnored(t *testing.T) {
	bus := events.NewBus(discardLogger())
	d := newTestDaemon(t, newMemStore(), newRecordingExecutor(), bus, nil)

	d.Start()
	before := bus.TotalSubscriptions()
	d.Start()
	if got := bus.TotalSubscriptions(); got != before {
		t.Errorf("second Start changed subscriptions from %d to %d", before, got)
	}
	d.Stop()
}

func TestDaemonStopIdempotent(t *testing.T) {
	bus := events.NewBus(discardLogger())
	d := newTestDaemon(t, newMemStore(), newRecordingExecutor(), bus, nil)

	d.Start()
	d.Stop()
	d.Stop()

	if d.Status() != StateStopped {
		t.Fatalf("state = %v, want stopped", d.Status())
	}
}

func TestDaemonRestartDoesNotDoubleFire(t *testing.T) {
	bus := events.NewBus(discardLogger())
	def := eventDef("a", Scope{Kind: ScopeGlobal}, events.TaskMoved)
	exec := newRecordingExecutor()
	d := newTestDaemon(t, newMemStore(def), exec, bus, nil)

	d.Start()
	d.Restart()

	if err := bus.Publish(context.Background(), events.TaskMoved,
		events.ScopedPayload{BoardID: "work", TaskID: "t-1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := exec.count("a"); got != 1 {
		t.Errorf("action fired %d times after restart, expected 1", got)
	}
	d.Stop()
}

func TestDaemonTimeTriggerPolling(t *testing.T) {
	bus := events.NewBus(discardLogger())
	def := intervalDef("tick", time.Millisecond)
	exec := newRecordingExecutor()
	d := newTestDaemon(t, newMemStore(def), exec, bus, nil)

	d.Start()
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for exec.count("tick") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("action fired %d times, expected repeated firing", exec.count("tick"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonEventTriggerFlow(t *testing.T) {
	bus := events.NewBus(discardLogger())
	def := eventDef("on-move", Scope{Kind: ScopeBoard, TargetID: "work"}, events.TaskMoved)
	exec := newRecordingExecutor()
	d := newTestDaemon(t, newMemStore(def), exec, bus, nil)

	d.Start()
	defer d.Stop()

	if err := bus.Publish(context.Background(), events.TaskMoved,
		events.ScopedPayload{BoardID: "work", TaskID: "t-1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := exec.count("on-move"); got != 1 {
		t.Errorf("action fired %d times, expected 1", got)
	}

	// A non-matching board leaves it alone.
	if err := bus.Publish(context.Background(), events.TaskMoved,
		events.ScopedPayload{BoardID: "home", TaskID: "t-2"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := exec.count("on-move"); got != 1 {
		t.Errorf("action fired %d times after non-matching event, expected 1", got)
	}
}

type fakeRefresher struct {
	checked chan struct{}
}

func (f *fakeRefresher) ForceCheck(_ context.Context) error {
	select {
	case f.checked <- struct{}{}:
	default:
	}
	return nil
}

func TestDaemonForegroundForcesRefresh(t *testing.T) {
	bus := events.NewBus(discardLogger())
	refresher := &fakeRefresher{checked: make(chan struct{}, 1)}
	d := newTestDaemon(t, newMemStore(), newRecordingExecutor(), bus, refresher)

	d.Start()
	defer d.Stop()

	if err := bus.Publish(context.Background(), events.AppForeground, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-refresher.checked:
	case <-time.After(2 * time.Second):
		t.Fatal("foreground event did not force a watcher check")
	}
}
