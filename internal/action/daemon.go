package action

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/blendonl/mkanban-mobile/internal/events"
)

// DaemonState tracks the daemon's lifecycle.
type DaemonState int

const (
	// StateStopped means no timers or subscriptions are live.
	StateStopped DaemonState = iota
	// StateStarting means Start is registering timers and subscriptions.
	StateStarting
	// StateRunning means evaluation is active.
	StateRunning
	// StateStopping means Stop is tearing down.
	StateStopping
)

// String returns a human-readable representation of the daemon state.
func (s DaemonState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// triggerableEvents is the domain event vocabulary the daemon forwards to
// event-trigger evaluation. Producers live elsewhere in the application.
var triggerableEvents = []string{
	events.TaskCreated, events.TaskUpdated, events.TaskDeleted, events.TaskMoved,
	events.BoardCreated, events.BoardUpdated, events.BoardDeleted,
	events.ColumnCreated, events.ColumnUpdated, events.ColumnDeleted, events.ColumnMoved,
	events.NoteCreated, events.NoteUpdated, events.NoteDeleted,
	events.VCSBranchCreated, events.VCSCommitCreated,
	events.FileChanged,
}

// Refresher is the slice of the file watcher the daemon needs when the
// app returns to foreground.
type Refresher interface {
	ForceCheck(ctx context.Context) error
}

// DaemonConfig holds the daemon's timer intervals.
type DaemonConfig struct {
	// EvaluationInterval is how often time triggers are polled.
	EvaluationInterval time.Duration

	// OrphanCheckInterval is how often orphan reconciliation runs. It is
	// typically much longer than the evaluation interval.
	OrphanCheckInterval time.Duration
}

// DefaultDaemonConfig returns sensible defaults.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		EvaluationInterval:  time.Minute,
		OrphanCheckInterval: 30 * time.Minute,
	}
}

// Daemon owns the engine's lifecycle: periodic time-trigger polling,
// periodic orphan reconciliation, the event-bus subscriptions, and
// foreground/background adaptation.
//
// While the host keeps the process scheduled in background, polling
// continues; on platforms that suspend backgrounded processes it simply
// lapses until the foreground event arrives, at which point the daemon
// forces a watcher check and an immediate evaluation. That lapse is a
// documented limitation, not a hidden one.
type Daemon struct {
	engine    *Engine
	bus       *events.Bus
	cfg       DaemonConfig
	refresher Refresher
	logger    *log.Logger

	// lifecycleMu serializes Start/Stop/Restart so only one transition is
	// in flight at a time.
	lifecycleMu sync.Mutex

	mu     sync.Mutex
	state  DaemonState
	stopCh chan struct{}
	subs   []*events.Subscription
	wg     sync.WaitGroup
}

// NewDaemon creates a daemon around the engine. refresher may be nil when
// no file watcher is wired (e.g. in tests). If logger is nil, a default
// logger writing to stderr is used.
func NewDaemon(engine *Engine, bus *events.Bus, cfg DaemonConfig, refresher Refresher, logger *log.Logger) *Daemon {
	if logger == nil {
		logger = log.New(os.Stderr, "[actiond] ", log.LstdFlags)
	}
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = DefaultDaemonConfig().EvaluationInterval
	}
	if cfg.OrphanCheckInterval <= 0 {
		cfg.OrphanCheckInterval = DefaultDaemonConfig().OrphanCheckInterval
	}
	return &Daemon{
		engine:    engine,
		bus:       bus,
		cfg:       cfg,
		refresher: refresher,
		logger:    logger,
	}
}

// Start begins evaluation: an immediate time-trigger pass, the polling
// and orphan timers, and the event subscriptions. A no-op with a logged
// warning if the daemon is not stopped, since lifecycle calls may race
// with UI-driven toggles.
func (d *Daemon) Start() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	d.mu.Lock()
	if d.state != StateStopped {
		d.mu.Unlock()
		d.logger.Printf("Start ignored: daemon is %s", d.state)
		return
	}
	d.state = StateStarting
	d.stopCh = make(chan struct{})

	for _, eventType := range triggerableEvents {
		et := eventType
		d.subs = append(d.subs, d.bus.Subscribe(et, func(ctx context.Context, payload any) error {
			return d.engine.EvaluateEventTriggers(ctx, et, payload)
		}))
	}
	d.subs = append(d.subs,
		d.bus.Subscribe(events.AppForeground, d.onForeground),
		d.bus.Subscribe(events.AppBackground, d.onBackground),
	)

	d.wg.Add(2)
	go d.evaluationLoop(d.stopCh)
	go d.orphanLoop(d.stopCh)

	d.state = StateRunning
	d.mu.Unlock()

	d.logger.Printf("Action daemon started (eval=%v orphan=%v)",
		d.cfg.EvaluationInterval, d.cfg.OrphanCheckInterval)
}

// Stop cancels both timers and removes every subscription Start
// registered, symmetric teardown so the next Start cannot double-fire.
// Idempotent.
func (d *Daemon) Stop() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		d.logger.Printf("Stop ignored: daemon is %s", d.state)
		return
	}
	d.state = StateStopping
	close(d.stopCh)
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	d.wg.Wait()

	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()

	d.logger.Println("Action daemon stopped")
}

// Restart is Stop then Start, sequential.
func (d *Daemon) Restart() {
	d.Stop()
	d.Start()
}

// ForceEvaluation runs one time-trigger pass immediately. It may overlap
// a scheduled tick; executions are independent by design.
func (d *Daemon) ForceEvaluation(ctx context.Context) error {
	return d.engine.EvaluateTimeTriggers(ctx)
}

// Status returns the current lifecycle state.
func (d *Daemon) Status() DaemonState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// evaluationLoop polls time triggers, starting with an immediate pass.
func (d *Daemon) evaluationLoop(stopCh <-chan struct{}) {
	defer d.wg.Done()

	d.evaluateOnce()

	ticker := time.NewTicker(d.cfg.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			d.evaluateOnce()
		}
	}
}

// orphanLoop periodically reconciles orphaned actions.
func (d *Daemon) orphanLoop(stopCh <-chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.OrphanCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			removed, err := d.engine.ReconcileOrphans(context.Background())
			if err != nil {
				d.logger.Printf("Orphan reconciliation failed: %v", err)
				continue
			}
			if removed > 0 {
				d.logger.Printf("Orphan reconciliation removed %d actions", removed)
			}
		}
	}
}

// evaluateOnce runs a single time-trigger pass, logging failures.
func (d *Daemon) evaluateOnce() {
	if err := d.engine.EvaluateTimeTriggers(context.Background()); err != nil {
		d.logger.Printf("Time-trigger evaluation failed: %v", err)
	}
}

// onForeground reacts to the app returning to foreground: refresh the
// file view and evaluate immediately in case polling lapsed while the
// process was suspended.
func (d *Daemon) onForeground(ctx context.Context, _ any) error {
	d.logger.Println("App foregrounded, refreshing")
	if d.refresher != nil {
		if err := d.refresher.ForceCheck(ctx); err != nil {
			d.logger.Printf("Foreground refresh failed: %v", err)
		}
	}
	d.evaluateOnce()
	return nil
}

// onBackground records the transition. Timers keep running as long as
// the host schedules the process.
func (d *Daemon) onBackground(_ context.Context, _ any) error {
	d.logger.Println("App backgrounded, polling continues while scheduled")
	return nil
}
