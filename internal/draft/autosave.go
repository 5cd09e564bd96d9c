package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Autosave defaults.
const (
	DefaultDebounce       = 750 * time.Millisecond
	DefaultMinVisible     = 300 * time.Millisecond
	DefaultPersistTimeout = 10 * time.Second
)

// PersistFunc writes one snapshot.
type PersistFunc func(ctx context.Context, snap Snapshot) error

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*Autosaver)

// WithDebounce sets the quiet period after the last dirty signal.
func WithDebounce(d time.Duration) AutosaveOption {
	return func(a *Autosaver) { a.delay = d }
}

// WithMinVisible sets the minimum time the saving indicator stays asserted.
func WithMinVisible(d time.Duration) AutosaveOption {
	return func(a *Autosaver) { a.minVisible = d }
}

// WithPersistTimeout bounds timer-driven persists.
func WithPersistTimeout(d time.Duration) AutosaveOption {
	return func(a *Autosaver) { a.persistTimeout = d }
}

// WithLogger sets the logger used for swallowed persist failures.
func WithLogger(l *slog.Logger) AutosaveOption {
	return func(a *Autosaver) { a.logger = l }
}

// WithOnSaved registers a callback run after each successful persist.
func WithOnSaved(fn func(snap Snapshot, at time.Time)) AutosaveOption {
	return func(a *Autosaver) { a.onSaved = fn }
}

// WithOnSavingChanged registers a callback run when the saving indicator flips.
func WithOnSavingChanged(fn func(saving bool)) AutosaveOption {
	return func(a *Autosaver) { a.onSavingChanged = fn }
}

// Autosaver debounces dirty signals into persists. At most one deferred save is pending at
// any time; each OnDirty cancels and replaces it.
type Autosaver struct {
	persist         PersistFunc
	delay           time.Duration
	minVisible      time.Duration
	persistTimeout  time.Duration
	logger          *slog.Logger
	onSaved         func(Snapshot, time.Time)
	onSavingChanged func(bool)

	group singleflight.Group

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	pending   *Snapshot
	saving    bool
	hideTimer *time.Timer
}

// NewAutosaver returns an Autosaver that writes through persist.
func NewAutosaver(persist PersistFunc, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		persist:        persist,
		delay:          DefaultDebounce,
		minVisible:     DefaultMinVisible,
		persistTimeout: DefaultPersistTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnDirty schedules snap to be persisted once the debounce period passes with no further
// signal. Only the most recent snapshot is kept.
func (a *Autosaver) OnDirty(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = &snap
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.delay, func() { a.fire(gen) })
}

func (a *Autosaver) fire(gen uint64) {
	snap, ok := a.takePending(gen)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.persistTimeout)
	defer cancel()
	if joined, _ := a.save(ctx, snap); joined {
		// Joined a persist that started with an older snapshot.
		a.requeue(snap)
	}
}

// requeue schedules snap again unless a newer one is already pending.
func (a *Autosaver) requeue(snap Snapshot) {
	a.mu.Lock()
	pending := a.pending != nil
	a.mu.Unlock()
	if !pending {
		a.OnDirty(snap)
	}
}

// takePending claims the pending snapshot if gen is still the live timer generation.
func (a *Autosaver) takePending(gen uint64) (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.pending == nil {
		return Snapshot{}, false
	}
	snap := *a.pending
	a.pending = nil
	a.timer = nil
	return snap, true
}

// Flush cancels the pending timer and persists its snapshot immediately. It is a no-op
// when nothing is pending.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	if pending == nil {
		return nil
	}
	return a.SaveNow(ctx, *pending)
}

// Cancel drops any pending save without persisting it.
func (a *Autosaver) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.pending = nil
}

// Pending reports whether a deferred save is scheduled.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Saving reports whether the saving indicator is asserted.
func (a *Autosaver) Saving() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saving
}

// SaveNow persists snap right away. Calls made while a persist is in flight wait for it and
// share its result instead of starting another. Failures are logged and returned; the
// caller's in-memory draft stays authoritative.
func (a *Autosaver) SaveNow(ctx context.Context, snap Snapshot) error {
	_, err := a.save(ctx, snap)
	return err
}

// save reports joined when snap was not the snapshot written.
func (a *Autosaver) save(ctx context.Context, snap Snapshot) (joined bool, err error) {
	led := false
	_, err, _ = a.group.Do(Key, func() (any, error) {
		led = true
		return nil, a.run(ctx, snap)
	})
	return !led, err
}

func (a *Autosaver) run(ctx context.Context, snap Snapshot) error {
	a.setSaving(true)
	start := time.Now()

	err := a.persist(ctx, snap)
	if err != nil {
		a.logger.Warn("Autosaver.run: persist failed", "error", err, "step", snap.CurrentStep)
	} else if a.onSaved != nil {
		a.onSaved(snap, time.Now().UTC())
	}

	remaining := a.minVisible - time.Since(start)
	if remaining <= 0 {
		a.setSaving(false)
		return err
	}
	a.mu.Lock()
	a.hideTimer = time.AfterFunc(remaining, func() { a.setSaving(false) })
	a.mu.Unlock()
	return err
}

func (a *Autosaver) setSaving(saving bool) {
	a.mu.Lock()
	if a.hideTimer != nil {
		a.hideTimer.Stop()
		a.hideTimer = nil
	}
	changed := a.saving != saving
	a.saving = saving
	a.mu.Unlock()

	if changed && a.onSavingChanged != nil {
		a.onSavingChanged(saving)
	}
}

// Stop cancels pending work and clears the saving indicator.
func (a *Autosaver) Stop() {
	a.Cancel()
	a.setSaving(false)
}
