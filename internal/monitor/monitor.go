// Package monitor watches one capability and publishes the apps whose
// in-use status changed each time the platform signals a consent store
// update.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackwell-systems/capwatch/internal/capability"
	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/wnf"
)

var (
	// ErrDisposed is returned by every operation on a disposed monitor.
	ErrDisposed = errors.New("monitor: use after dispose")

	// ErrAlreadyStarted is returned by Start on a started monitor.
	ErrAlreadyStarted = errors.New("monitor: already started")
)

// Sampler reads consent store snapshots.
type Sampler interface {
	Sample(capability string) (consent.Snapshot, error)
}

// Resolver maps a capability to its state name.
type Resolver interface {
	Resolve(capability string) (uint64, error)
}

// Notifier queries and subscribes to state names.
type Notifier interface {
	Query(stateName uint64) (wnf.StateData, error)
	Subscribe(stateName uint64, stamp uint32, cb wnf.Callback) (*wnf.Subscription, error)
	Unsubscribe(sub *wnf.Subscription) error
}

// Event is published once per resample.
type Event struct {
	Capability  string                `json:"capability"`
	Changed     []consent.UsageRecord `json:"changed"`
	ChangeStamp uint32                `json:"change_stamp"`
	At          time.Time             `json:"at"`
}

// Options configures a Monitor. Nil collaborators select the system
// implementations.
type Options struct {
	Reader     Sampler
	Resolver   Resolver
	Subscriber Notifier
	Logger     *slog.Logger

	// OnChange receives events. It runs while the monitor lock is held and
	// must not call back into the monitor.
	OnChange func(Event)

	// OnError receives errors from notification-triggered resamples.
	OnError func(error)

	// SuppressEmpty drops events whose Changed list is empty.
	SuppressEmpty bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Monitor tracks one capability.
type Monitor struct {
	capability string
	stateName  uint64
	opts       Options
	logger     *slog.Logger

	mu        sync.Mutex
	life      *lifecycle
	baseline  consent.Snapshot
	sub       *wnf.Subscription
	lastStamp uint32
	done      chan struct{}
	state     atomic.Value

	wg sync.WaitGroup
}

// New resolves the state name for the named capability and takes the baseline
// snapshot. Both failures are returned.
func New(name string, opts Options) (*Monitor, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Reader == nil {
		opts.Reader = consent.NewReader(nil)
	}
	if opts.Resolver == nil {
		opts.Resolver = capability.NewResolver(nil)
	}
	if opts.Subscriber == nil {
		opts.Subscriber = wnf.NewSubscriber(nil, opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	stateName, err := opts.Resolver.Resolve(name)
	if err != nil {
		return nil, err
	}

	baseline, err := opts.Reader.Sample(name)
	if err != nil {
		return nil, err
	}

	life, err := newLifecycle(name)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		capability: name,
		stateName:  stateName,
		opts:       opts,
		logger:     opts.Logger.With("capability", name),
		life:       life,
		baseline:   baseline,
	}
	m.state.Store(life.current())

	m.logger.Debug("monitor created",
		"state_name", fmt.Sprintf("%#x", stateName),
		"apps", len(baseline))
	return m, nil
}

// Capability returns the monitored capability name.
func (m *Monitor) Capability() string {
	return m.capability
}

// StateName returns the resolved WNF state name.
func (m *Monitor) StateName() uint64 {
	return m.stateName
}

// State returns the lifecycle state. It does not take the monitor lock and
// is safe to call from OnChange.
func (m *Monitor) State() State {
	return m.state.Load().(State)
}

// Baseline returns a copy of the last observed snapshot.
func (m *Monitor) Baseline() (consent.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.life.current() == StateDisposed {
		return nil, ErrDisposed
	}
	return append(consent.Snapshot(nil), m.baseline...), nil
}

// Start arms the subscription and starts the worker that resamples on
// every notification. On failure the state is unchanged.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.life.current() {
	case StateDisposed:
		return ErrDisposed
	case StateStarted:
		return ErrAlreadyStarted
	}

	current, err := m.opts.Subscriber.Query(m.stateName)
	if err != nil {
		return fmt.Errorf("monitor: start %s: %w", m.capability, err)
	}

	wake := make(chan struct{}, 1)
	var latest atomic.Uint32
	latest.Store(current.ChangeStamp)

	sub, err := m.opts.Subscriber.Subscribe(m.stateName, current.ChangeStamp, func(n wnf.Notification) {
		for {
			seen := latest.Load()
			if n.ChangeStamp <= seen || latest.CompareAndSwap(seen, n.ChangeStamp) {
				break
			}
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("monitor: start %s: %w", m.capability, err)
	}

	if err := m.transition(eventStart); err != nil {
		if uerr := m.opts.Subscriber.Unsubscribe(sub); uerr != nil {
			m.logger.Error("failed to release subscription", "error", uerr)
		}
		return err
	}

	m.sub = sub
	m.lastStamp = current.ChangeStamp
	m.done = make(chan struct{})

	m.wg.Add(1)
	go m.run(wake, m.done, &latest)

	m.logger.Info("monitor started", "change_stamp", current.ChangeStamp)
	return nil
}

// Stop unsubscribes and stops the worker. Stopping a monitor that is not
// started is a no-op. If the platform unsubscribe fails the monitor stays
// started.
func (m *Monitor) Stop() error {
	m.mu.Lock()

	switch m.life.current() {
	case StateDisposed:
		m.mu.Unlock()
		return ErrDisposed
	case StateStarted:
	default:
		m.mu.Unlock()
		return nil
	}

	if err := m.opts.Subscriber.Unsubscribe(m.sub); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor: stop %s: %w", m.capability, err)
	}
	m.sub = nil
	if err := m.transition(eventStop); err != nil {
		m.mu.Unlock()
		return err
	}
	close(m.done)
	m.mu.Unlock()

	// The worker may be waiting on the lock; it sees Stopped and exits.
	m.wg.Wait()
	m.logger.Info("monitor stopped")
	return nil
}

// Dispose stops the monitor if needed and releases its state. Every later
// call returns ErrDisposed.
func (m *Monitor) Dispose() error {
	if err := m.Stop(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.life.current() == StateDisposed {
		return ErrDisposed
	}
	if err := m.transition(eventDispose); err != nil {
		return err
	}
	m.baseline = nil
	m.logger.Debug("monitor disposed")
	return nil
}

// Refresh resamples immediately and publishes the result like a
// notification would. Errors are returned instead of reported.
func (m *Monitor) Refresh() ([]consent.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.life.current() == StateDisposed {
		return nil, ErrDisposed
	}
	return m.resample(m.lastStamp)
}

func (m *Monitor) run(wake <-chan struct{}, done <-chan struct{}, latest *atomic.Uint32) {
	defer m.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-wake:
			m.handle(latest.Load())
		}
	}
}

// handle is one notification-triggered resample. Errors go to OnError and
// the log; the baseline is kept.
func (m *Monitor) handle(stamp uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.life.current() != StateStarted {
		return
	}
	if stamp > m.lastStamp {
		m.lastStamp = stamp
	}

	if _, err := m.resample(m.lastStamp); err != nil {
		m.logger.Warn("resample failed, keeping baseline", "error", err)
		if m.opts.OnError != nil {
			m.opts.OnError(err)
		}
	}
}

// resample must be called with mu held.
func (m *Monitor) resample(stamp uint32) ([]consent.UsageRecord, error) {
	current, err := m.opts.Reader.Sample(m.capability)
	if err != nil {
		return nil, err
	}

	changed := consent.Diff(m.baseline, current)
	m.baseline = current

	m.logger.Debug("resampled",
		"change_stamp", stamp,
		"apps", len(current),
		"changed", len(changed))

	if len(changed) == 0 && m.opts.SuppressEmpty {
		return changed, nil
	}
	if m.opts.OnChange != nil {
		m.opts.OnChange(Event{
			Capability:  m.capability,
			Changed:     changed,
			ChangeStamp: stamp,
			At:          m.opts.Now(),
		})
	}
	return changed, nil
}

// transition must be called with mu held.
func (m *Monitor) transition(event string) error {
	if err := m.life.send(event); err != nil {
		return err
	}
	m.state.Store(m.life.current())
	return nil
}
