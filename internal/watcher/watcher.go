package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/monitor"
	"github.com/blackwell-systems/capwatch/internal/store"
)

// eventBuffer bounds how many events may wait for the dispatcher before
// monitor workers block.
const eventBuffer = 64

// ErrNoMonitors is returned by Start when no capability could be monitored.
var ErrNoMonitors = errors.New("no capability could be monitored")

// Options configures a Watcher.
type Options struct {
	// Store, if set, receives a live mirror of every monitored capability.
	Store *store.Store

	// Sink receives every published event after it is mirrored.
	Sink func(monitor.Event)

	// OnError receives resample errors from any monitor.
	OnError func(capability string, err error)

	// Monitor is the template for each monitor. OnChange and OnError are
	// replaced by the watcher.
	Monitor monitor.Options

	Logger *slog.Logger
}

// Watcher runs one monitor per capability and funnels their events through
// a single dispatcher goroutine.
type Watcher struct {
	opts      Options
	store     *store.Store
	logger    *slog.Logger
	sessionID string

	mu       sync.Mutex
	monitors map[string]*monitor.Monitor
	running  bool

	events chan monitor.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new Watcher instance.
func New(opts Options) *Watcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Monitor.Logger == nil {
		opts.Monitor.Logger = opts.Logger
	}
	return &Watcher{
		opts:      opts,
		store:     opts.Store,
		logger:    opts.Logger,
		sessionID: uuid.NewString(),
		monitors:  make(map[string]*monitor.Monitor),
		events:    make(chan monitor.Event, eventBuffer),
		stopCh:    make(chan struct{}),
	}
}

// SessionID identifies this watch session in the store.
func (w *Watcher) SessionID() string {
	return w.sessionID
}

// Start creates and starts a monitor for every capability. Capabilities that
// fail are logged and skipped; Start fails only if none could be started.
func (w *Watcher) Start(capabilities []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already started")
	}
	select {
	case <-w.stopCh:
		return errors.New("watcher already stopped")
	default:
	}

	if w.store != nil {
		if err := w.store.Reset(); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}

	w.wg.Add(1)
	go w.dispatch()
	w.running = true

	var errs []error
	for _, name := range capabilities {
		if _, ok := w.monitors[name]; ok {
			continue
		}
		if err := w.add(name); err != nil {
			w.logger.Warn("skipping capability", "capability", name, "error", err)
			errs = append(errs, err)
		}
	}

	if len(w.monitors) == 0 && len(capabilities) > 0 {
		w.running = false
		close(w.stopCh)
		w.wg.Wait()
		return fmt.Errorf("%w: %w", ErrNoMonitors, errors.Join(errs...))
	}

	w.logger.Info("watcher started",
		"session", w.sessionID,
		"capabilities", w.capabilitiesLocked())
	return nil
}

// Stop disposes every monitor and waits for pending events to be
// dispatched. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false

	var errs []error
	for name, m := range w.monitors {
		if err := m.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(w.monitors, name)
	}
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	w.logger.Info("watcher stopped", "session", w.sessionID)
	return errors.Join(errs...)
}

// Reconcile starts monitors for capabilities not yet watched and disposes
// monitors whose capability is no longer listed.
func (w *Watcher) Reconcile(capabilities []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return errors.New("watcher not started")
	}

	want := make(map[string]bool, len(capabilities))
	for _, name := range capabilities {
		want[name] = true
	}

	var errs []error
	for name, m := range w.monitors {
		if want[name] {
			continue
		}
		if err := m.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		delete(w.monitors, name)
		if w.store != nil {
			if err := w.store.RemoveCapability(name); err != nil {
				errs = append(errs, err)
			}
		}
		w.logger.Info("capability removed", "capability", name)
	}

	for _, name := range capabilities {
		if _, ok := w.monitors[name]; ok {
			continue
		}
		if err := w.add(name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		w.logger.Info("capability added", "capability", name)
	}

	return errors.Join(errs...)
}

// Capabilities returns the monitored capability names in order.
func (w *Watcher) Capabilities() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capabilitiesLocked()
}

// InUse returns the apps currently using any monitored capability,
// according to each monitor's baseline.
func (w *Watcher) InUse() []consent.UsageRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []consent.UsageRecord
	for _, name := range w.capabilitiesLocked() {
		baseline, err := w.monitors[name].Baseline()
		if err != nil {
			continue
		}
		out = append(out, baseline.InUse()...)
	}
	return out
}

// add must be called with mu held.
func (w *Watcher) add(name string) error {
	opts := w.opts.Monitor
	opts.OnChange = w.publish
	opts.OnError = func(err error) {
		if w.opts.OnError != nil {
			w.opts.OnError(name, err)
		}
	}

	m, err := monitor.New(name, opts)
	if err != nil {
		return err
	}

	// Mirror before starting so events always find the capability row.
	if err := w.mirror(m); err != nil {
		w.logger.Warn("failed to mirror baseline", "capability", name, "error", err)
	}

	if err := m.Start(); err != nil {
		if derr := m.Dispose(); derr != nil {
			w.logger.Error("failed to dispose monitor", "capability", name, "error", derr)
		}
		if w.store != nil {
			if rerr := w.store.RemoveCapability(name); rerr != nil {
				w.logger.Warn("failed to remove capability", "capability", name, "error", rerr)
			}
		}
		return err
	}

	w.monitors[name] = m
	return nil
}

// publish runs on a monitor worker with the monitor lock held.
func (w *Watcher) publish(e monitor.Event) {
	w.events <- e
}

func (w *Watcher) dispatch() {
	defer w.wg.Done()
	for {
		select {
		case e := <-w.events:
			w.handle(e)
		case <-w.stopCh:
			for {
				select {
				case e := <-w.events:
					w.handle(e)
				default:
					return
				}
			}
		}
	}
}

func (w *Watcher) handle(e monitor.Event) {
	if w.store != nil {
		info := &store.CapabilityInfo{
			Name:        e.Capability,
			ChangeStamp: e.ChangeStamp,
			UpdatedAt:   e.At,
			SessionID:   w.sessionID,
		}
		if err := w.updateCapability(info); err != nil {
			w.logger.Warn("failed to mirror capability", "capability", e.Capability, "error", err)
		} else if err := w.store.ApplyChanges(e.Capability, e.Changed); err != nil {
			w.logger.Warn("failed to mirror changes", "capability", e.Capability, "error", err)
		}
	}
	if w.opts.Sink != nil {
		w.opts.Sink(e)
	}
}

// updateCapability keeps the stored state name, which events do not carry.
func (w *Watcher) updateCapability(info *store.CapabilityInfo) error {
	prev, err := w.store.GetCapability(info.Name)
	if err != nil {
		return err
	}
	info.StateName = prev.StateName
	return w.store.UpdateCapability(info)
}

func (w *Watcher) mirror(m *monitor.Monitor) error {
	if w.store == nil {
		return nil
	}
	baseline, err := m.Baseline()
	if err != nil {
		return err
	}
	info := &store.CapabilityInfo{
		Name:      m.Capability(),
		StateName: m.StateName(),
		UpdatedAt: time.Now(),
		SessionID: w.sessionID,
	}
	if err := w.store.UpdateCapability(info); err != nil {
		return err
	}
	return w.store.ReplaceSnapshot(m.Capability(), baseline)
}

func (w *Watcher) capabilitiesLocked() []string {
	names := make([]string, 0, len(w.monitors))
	for name := range w.monitors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
