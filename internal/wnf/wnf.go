// Package wnf queries and subscribes to Windows Notification Facility
// state names.
//
// Native callbacks cannot carry Go pointers, so every subscription is
// registered in a process-wide table and the native side only sees an
// integer key. The table entry is inserted before the platform subscription
// is armed and removed only after the platform unsubscribe returns.
package wnf

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// StatusBufferTooSmall is STATUS_BUFFER_TOO_SMALL.
	StatusBufferTooSmall = 0xC0000023

	// MaxQueryAttempts bounds Query when the platform keeps reporting a
	// too-small buffer.
	MaxQueryAttempts = 10

	// InitialBufferSize is the first read size used by Query.
	InitialBufferSize = 4096

	// MaxBufferSize caps buffer growth; WNF payloads are at most 4 KiB in
	// practice.
	MaxBufferSize = 64 * 1024
)

var (
	// ErrBufferTooSmall is returned by a Platform when buf cannot hold the
	// state data.
	ErrBufferTooSmall = errors.New("wnf: buffer too small")

	// ErrQueryRetryExhausted is returned by Query after MaxQueryAttempts
	// too-small reads.
	ErrQueryRetryExhausted = errors.New("wnf: query retry budget exhausted")

	// ErrUnsupportedPlatform is returned by the system platform outside
	// 64-bit Windows.
	ErrUnsupportedPlatform = errors.New("wnf: notifications are only available on 64-bit Windows")

	errNilCallback = errors.New("wnf: nil callback")
)

// Handle is an opaque platform subscription handle.
type Handle uintptr

// Platform is the native notification surface.
type Platform interface {
	// QueryStateData reads the current state into buf and returns its change
	// stamp and payload size. When buf is too small it returns
	// ErrBufferTooSmall and, if known, the required size.
	QueryStateData(stateName uint64, buf []byte) (stamp uint32, size uint32, err error)

	// Subscribe arms delivery for stateName. The platform must call
	// Dispatch(key, ...) for every notification.
	Subscribe(stateName uint64, stamp uint32, key uintptr) (Handle, error)

	// Unsubscribe disarms h. Once it returns, no new deliveries start.
	Unsubscribe(h Handle) error
}

// StateData is the result of a one-shot query.
type StateData struct {
	ChangeStamp uint32
	Data        []byte
}

// Notification is one delivered state change. Data is owned by the
// receiver.
type Notification struct {
	StateName   uint64
	ChangeStamp uint32
	Data        []byte
}

// Callback receives notifications on a platform-owned thread.
type Callback func(Notification)

// SubscriptionError reports a failed subscribe or unsubscribe.
type SubscriptionError struct {
	Op        string
	StateName uint64
	Err       error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("wnf: %s state %#x: %v", e.Op, e.StateName, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Subscription is an armed subscription returned by Subscribe.
type Subscription struct {
	stateName uint64
	key       uintptr
	handle    Handle

	mu     sync.Mutex
	closed bool
}

// StateName returns the subscribed state name.
func (s *Subscription) StateName() uint64 {
	return s.stateName
}

// Subscriber wraps a Platform with bounded queries and the subscription
// table.
type Subscriber struct {
	platform Platform
	logger   *slog.Logger
}

// NewSubscriber creates a Subscriber. A nil platform selects
// SystemPlatform; a nil logger selects slog.Default.
func NewSubscriber(platform Platform, logger *slog.Logger) *Subscriber {
	if platform == nil {
		platform = SystemPlatform()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{platform: platform, logger: logger}
}

// Query reads the current state and change stamp. A too-small buffer is
// retried with the size the platform asks for, capped at MaxBufferSize, for
// at most MaxQueryAttempts reads.
func (s *Subscriber) Query(stateName uint64) (StateData, error) {
	size := InitialBufferSize
	for attempt := 1; attempt <= MaxQueryAttempts; attempt++ {
		buf := make([]byte, size)
		stamp, n, err := s.platform.QueryStateData(stateName, buf)
		if errors.Is(err, ErrBufferTooSmall) {
			if int(n) > size {
				size = min(int(n), MaxBufferSize)
			}
			s.logger.Debug("wnf query buffer too small",
				"state_name", fmt.Sprintf("%#x", stateName),
				"attempt", attempt,
				"next_size", size)
			continue
		}
		if err != nil {
			return StateData{}, fmt.Errorf("wnf: query state %#x: %w", stateName, err)
		}
		if int(n) > len(buf) {
			n = uint32(len(buf))
		}
		return StateData{ChangeStamp: stamp, Data: buf[:n]}, nil
	}
	return StateData{}, fmt.Errorf("wnf: query state %#x after %d attempts: %w",
		stateName, MaxQueryAttempts, ErrQueryRetryExhausted)
}

// Subscribe arms cb for changes of stateName after stamp. cb may run on any
// thread and concurrently with itself.
func (s *Subscriber) Subscribe(stateName uint64, stamp uint32, cb Callback) (*Subscription, error) {
	if cb == nil {
		return nil, &SubscriptionError{Op: "subscribe", StateName: stateName, Err: errNilCallback}
	}

	key := subscriptions.insert(cb)
	h, err := s.platform.Subscribe(stateName, stamp, key)
	if err != nil {
		subscriptions.remove(key)
		return nil, &SubscriptionError{Op: "subscribe", StateName: stateName, Err: err}
	}

	s.logger.Debug("wnf subscribed",
		"state_name", fmt.Sprintf("%#x", stateName),
		"change_stamp", stamp)
	return &Subscription{stateName: stateName, key: key, handle: h}, nil
}

// Unsubscribe disarms sub. Calling it again after success is a no-op. If
// the platform call fails the table entry is kept, since the platform may
// still deliver.
func (s *Subscriber) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return nil
	}
	if err := s.platform.Unsubscribe(sub.handle); err != nil {
		return &SubscriptionError{Op: "unsubscribe", StateName: sub.stateName, Err: err}
	}
	sub.closed = true
	subscriptions.remove(sub.key)

	s.logger.Debug("wnf unsubscribed", "state_name", fmt.Sprintf("%#x", sub.stateName))
	return nil
}
