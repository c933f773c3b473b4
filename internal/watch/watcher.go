package watch

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blendonl/mkanban-mobile/internal/events"
	"github.com/blendonl/mkanban-mobile/internal/types"
)

const (
	// backoffIdleTicks is how many consecutive no-change ticks are needed
	// before the polling interval is grown.
	backoffIdleTicks = 60

	// backoffFactor multiplies the polling interval on each backoff step.
	backoffFactor = 1.5

	// MaxPollingInterval caps adaptive backoff. A debounce delay at or
	// beyond this would outlast every quiet period between scans.
	MaxPollingInterval = 15 * time.Second
)

// Config holds the watcher's tunables. PollingInterval is the base scan
// period; it grows adaptively (bounded) while the data root is idle and is
// restored only by UpdateConfig or a restart.
type Config struct {
	PollingInterval time.Duration
	DebounceDelay   time.Duration
	Enabled         bool

	// Notify enables the fsnotify nudge: raw notification events on the
	// root only schedule an immediate poll tick. The snapshot diff stays
	// the single source of truth, so lossy notification backends cost
	// promptness, never correctness.
	Notify bool
}

// DefaultConfig returns sensible watcher defaults.
func DefaultConfig() Config {
	return Config{
		PollingInterval: 1 * time.Second,
		DebounceDelay:   300 * time.Millisecond,
		Enabled:         true,
	}
}

// Watcher owns the recurring scan loop for the data root. Each tick scans,
// diffs against the detector's stored snapshot, classifies the changes,
// and debounces bursts into single flushes; every flushed change is
// published as an individual FileChanged event in buffered order.
type Watcher struct {
	root     string
	detector *Detector
	bus      *events.Bus
	logger   *log.Logger

	// scanMu serializes whole scan-diff-commit cycles so a ForceCheck can
	// never interleave with a periodic tick between diff and commit.
	scanMu sync.Mutex

	mu         sync.Mutex
	cfg        Config
	running    bool
	generation uint64
	idleTicks  int
	pending    []types.MappedFileChange
	debounce   *time.Timer
	stopCh     chan struct{}
	nudge      chan struct{}
	notify     *fsnotify.Watcher
	wg         sync.WaitGroup
}

// New creates a watcher for the given data root. The detector must be
// owned exclusively by this watcher. If logger is nil, a default logger
// writing to stderr is used.
func New(root string, detector *Detector, bus *events.Bus, cfg Config, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	return &Watcher{
		root:     root,
		detector: detector,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins the periodic scan loop and performs one immediate
// scan-and-flush. It is a no-op if the watcher is already running or
// disabled by config; lifecycle calls may race with UI toggles, so misuse
// is logged, never an error.
func (w *Watcher) Start() {
	w.mu.Lock()

	if w.running {
		w.mu.Unlock()
		w.logger.Println("Start ignored: watcher already running")
		return
	}
	if !w.cfg.Enabled {
		w.mu.Unlock()
		w.logger.Println("Start ignored: watcher disabled by config")
		return
	}

	w.running = true
	w.idleTicks = 0
	w.stopCh = make(chan struct{})
	w.nudge = make(chan struct{}, 1)
	gen := w.generation

	if w.cfg.Notify {
		w.startNotifyLocked()
	}

	w.wg.Add(1)
	go w.run(gen)
	w.mu.Unlock()

	w.logger.Printf("Watching %s (poll=%v debounce=%v)", w.root, w.cfg.PollingInterval, w.cfg.DebounceDelay)
}

// Stop cancels the periodic scan loop and any pending debounce flush. It
// is idempotent. An in-flight scan is allowed to complete but its result
// is discarded rather than committed or published.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.logger.Println("Stop ignored: watcher not running")
		return
	}

	w.running = false
	w.generation++
	close(w.stopCh)
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.pending = nil
	if w.notify != nil {
		_ = w.notify.Close()
		w.notify = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Println("Watcher stopped")
}

// ForceCheck performs one scan and flush synchronously, bypassing the
// debounce delay. Any already-buffered changes are flushed along with the
// newly detected ones. Callers use it when they need an up-to-date view
// before proceeding, e.g. the app returning to foreground.
func (w *Watcher) ForceCheck(ctx context.Context) error {
	w.scanMu.Lock()

	snap, err := w.detector.Scan(ctx, w.root)
	if err != nil {
		w.scanMu.Unlock()
		return err
	}

	w.mu.Lock()
	raw := w.detector.Diff(snap)
	queued := classifyAll(raw)
	buf := append(w.pending, queued...)
	w.pending = nil
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.idleTicks = 0
	w.detector.Commit(snap)
	w.mu.Unlock()
	w.scanMu.Unlock()

	w.publish(ctx, buf)
	return nil
}

// UpdateConfig replaces the watcher configuration. This is the only path,
// besides a restart, that restores a backed-off polling interval. The
// Notify setting takes effect on the next Start.
func (w *Watcher) UpdateConfig(cfg Config) {
	w.mu.Lock()
	w.cfg = cfg
	w.idleTicks = 0
	running := w.running
	nudge := w.nudge
	w.mu.Unlock()

	if running {
		select {
		case nudge <- struct{}{}:
		default:
		}
	}
}

// Config returns the current configuration, including any adaptively
// grown polling interval.
func (w *Watcher) Config() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// IsRunning reports whether the scan loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the scan loop. It re-reads the polling interval after every pass
// so backoff follows the stop-timer, mutate, start-timer discipline
// instead of mutating a field a live timer closure reads.
func (w *Watcher) run(gen uint64) {
	defer w.wg.Done()

	// Immediate scan-and-flush on start.
	w.checkOnce(gen, true)

	interval := w.pollingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkOnce(gen, false)
		case <-w.nudge:
			w.checkOnce(gen, false)
		}

		if d := w.pollingInterval(); d != interval {
			interval = d
			ticker.Reset(d)
		}
	}
}

// checkOnce performs one scan-diff-classify pass. When immediate is true
// the resulting changes are flushed directly instead of through the
// debounce timer.
func (w *Watcher) checkOnce(gen uint64, immediate bool) {
	w.scanMu.Lock()

	snap, err := w.detector.Scan(context.Background(), w.root)
	if err != nil {
		w.scanMu.Unlock()
		w.logger.Printf("Scan failed: %v", err)
		return
	}

	var flush []types.MappedFileChange

	w.mu.Lock()
	if !w.running || w.generation != gen {
		// Stop raced the scan; discard the result without committing.
		w.mu.Unlock()
		w.scanMu.Unlock()
		return
	}

	raw := w.detector.Diff(snap)
	if queued := classifyAll(raw); len(queued) > 0 {
		w.pending = append(w.pending, queued...)
		if immediate {
			flush = w.pending
			w.pending = nil
			if w.debounce != nil {
				w.debounce.Stop()
				w.debounce = nil
			}
		} else {
			w.scheduleDebounceLocked(gen)
		}
	}

	if len(raw) == 0 {
		w.idleTicks++
		if w.idleTicks >= backoffIdleTicks {
			w.growIntervalLocked()
			w.idleTicks = 0
		}
	} else {
		w.idleTicks = 0
	}

	// Commit only after the derived changes are queued.
	w.detector.Commit(snap)
	w.mu.Unlock()
	w.scanMu.Unlock()

	w.publish(context.Background(), flush)
}

// scheduleDebounceLocked (re)starts the debounce timer. Each burst of
// changes refreshes the timer, so the flush fires exactly once per quiet
// period. Caller holds w.mu.
func (w *Watcher) scheduleDebounceLocked(gen uint64) {
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.cfg.DebounceDelay, func() {
		w.flush(gen)
	})
}

// flush drains the pending buffer and publishes every buffered change.
// The buffer swap-and-clear happens in a single critical section so a
// concurrent scan appending to the buffer can never be half-observed.
func (w *Watcher) flush(gen uint64) {
	w.mu.Lock()
	if !w.running || w.generation != gen {
		w.mu.Unlock()
		return
	}
	buf := w.pending
	w.pending = nil
	w.debounce = nil
	w.mu.Unlock()

	w.publish(context.Background(), buf)
}

// publish delivers the flushed changes as individual FileChanged events,
// in the order they were buffered.
func (w *Watcher) publish(ctx context.Context, changes []types.MappedFileChange) {
	for _, c := range changes {
		payload := events.FileChangedPayload{Entity: c.Entity, Change: c.Type, Path: c.Path}
		if err := w.bus.Publish(ctx, events.FileChanged, payload); err != nil {
			w.logger.Printf("Publish aborted: %v", err)
			return
		}
	}
}

// growIntervalLocked applies one backoff step to the polling interval.
// Caller holds w.mu.
func (w *Watcher) growIntervalLocked() {
	next := time.Duration(float64(w.cfg.PollingInterval) * backoffFactor)
	if next > MaxPollingInterval {
		next = MaxPollingInterval
	}
	if next != w.cfg.PollingInterval {
		w.logger.Printf("No changes for %d ticks, polling interval now %v", backoffIdleTicks, next)
		w.cfg.PollingInterval = next
	}
}

// pollingInterval returns the current scan period.
func (w *Watcher) pollingInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.PollingInterval
}

// classifyAll maps raw changes, dropping directories and unrecognized
// paths.
func classifyAll(raw []types.FileChange) []types.MappedFileChange {
	var mapped []types.MappedFileChange
	for _, c := range raw {
		if m, ok := Classify(c); ok {
			mapped = append(mapped, m)
		}
	}
	return mapped
}

// startNotifyLocked wires the optional fsnotify nudge. Failures are
// logged and leave the watcher on pure polling. Caller holds w.mu.
func (w *Watcher) startNotifyLocked() {
	nw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Printf("fsnotify unavailable, polling only: %v", err)
		return
	}

	// Watch every directory under the root, best effort. Directories
	// created later are picked up by the next poll anyway.
	added := 0
	_ = filepath.WalkDir(w.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if entry.IsDir() {
			if err := nw.Add(path); err == nil {
				added++
			}
		}
		return nil
	})
	if added == 0 {
		w.logger.Printf("fsnotify added no watches, polling only")
		_ = nw.Close()
		return
	}

	w.notify = nw
	stopCh := w.stopCh
	nudge := w.nudge

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-stopCh:
				return
			case _, ok := <-nw.Events:
				if !ok {
					return
				}
				select {
				case nudge <- struct{}{}:
				default:
				}
			case err, ok := <-nw.Errors:
				if !ok {
					return
				}
				w.logger.Printf("fsnotify error: %v", err)
			}
		}
	}()
}
