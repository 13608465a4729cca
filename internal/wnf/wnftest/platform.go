// Package wnftest provides a scriptable wnf.Platform.
package wnftest

import (
	"errors"
	"sync"

	"github.com/blackwell-systems/capwatch/internal/wnf"
)

type subscription struct {
	stateName uint64
	key       uintptr
}

// Platform keeps WNF states in memory and delivers notifications through
// wnf.Dispatch, the same path the native trampoline uses.
type Platform struct {
	mu sync.Mutex

	stamps map[uint64]uint32
	data   map[uint64][]byte
	subs   map[wnf.Handle]subscription
	next   wnf.Handle

	// TooSmall makes the next TooSmall queries report ErrBufferTooSmall.
	// A negative value makes every query do so.
	TooSmall int

	// QueryErr, SubscribeErr and UnsubscribeErr force failures.
	QueryErr       error
	SubscribeErr   error
	UnsubscribeErr error

	queries      int
	unsubscribes int
	seeds        []uint32
}

// New returns an empty platform.
func New() *Platform {
	return &Platform{
		stamps: make(map[uint64]uint32),
		data:   make(map[uint64][]byte),
		subs:   make(map[wnf.Handle]subscription),
	}
}

// SetState sets the payload and change stamp of a state name without
// notifying.
func (p *Platform) SetState(stateName uint64, stamp uint32, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stamps[stateName] = stamp
	p.data[stateName] = data
}

// Publish bumps the change stamp of stateName and synchronously delivers a
// notification to every subscriber. It returns the number of deliveries.
func (p *Platform) Publish(stateName uint64, data []byte) int {
	p.mu.Lock()
	p.stamps[stateName]++
	p.data[stateName] = data
	stamp := p.stamps[stateName]
	var keys []uintptr
	for _, s := range p.subs {
		if s.stateName == stateName {
			keys = append(keys, s.key)
		}
	}
	p.mu.Unlock()

	delivered := 0
	for _, key := range keys {
		payload := append([]byte(nil), data...)
		if wnf.Dispatch(key, wnf.Notification{StateName: stateName, ChangeStamp: stamp, Data: payload}) {
			delivered++
		}
	}
	return delivered
}

// Queries returns how many QueryStateData calls were made.
func (p *Platform) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// Unsubscribes returns how many successful Unsubscribe calls were made.
func (p *Platform) Unsubscribes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubscribes
}

// Subscriptions returns the number of armed subscriptions.
func (p *Platform) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Seeds returns the change stamps subscriptions were armed with.
func (p *Platform) Seeds() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint32(nil), p.seeds...)
}

// QueryStateData implements wnf.Platform.
func (p *Platform) QueryStateData(stateName uint64, buf []byte) (uint32, uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries++

	if p.QueryErr != nil {
		return 0, 0, p.QueryErr
	}
	if p.TooSmall != 0 {
		if p.TooSmall > 0 {
			p.TooSmall--
		}
		return 0, uint32(len(buf)) * 2, wnf.ErrBufferTooSmall
	}

	data := p.data[stateName]
	if len(data) > len(buf) {
		return 0, uint32(len(data)), wnf.ErrBufferTooSmall
	}
	n := copy(buf, data)
	return p.stamps[stateName], uint32(n), nil
}

// Subscribe implements wnf.Platform.
func (p *Platform) Subscribe(stateName uint64, stamp uint32, key uintptr) (wnf.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubscribeErr != nil {
		return 0, p.SubscribeErr
	}
	p.next++
	p.subs[p.next] = subscription{stateName: stateName, key: key}
	p.seeds = append(p.seeds, stamp)
	return p.next, nil
}

// Unsubscribe implements wnf.Platform.
func (p *Platform) Unsubscribe(h wnf.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.UnsubscribeErr != nil {
		return p.UnsubscribeErr
	}
	if _, ok := p.subs[h]; !ok {
		return errors.New("wnftest: unknown subscription handle")
	}
	delete(p.subs, h)
	p.unsubscribes++
	return nil
}
