package wnf

import "sync"

// table maps the integer keys handed to the platform to callbacks.
type table struct {
	mu      sync.RWMutex
	next    uintptr
	entries map[uintptr]Callback
}

var subscriptions = &table{entries: make(map[uintptr]Callback)}

func (t *table) insert(cb Callback) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.entries[t.next] = cb
	return t.next
}

func (t *table) remove(key uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *table) lookup(key uintptr) (Callback, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cb, ok := t.entries[key]
	return cb, ok
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Dispatch delivers n to the callback registered under key. It reports
// false when no subscription holds key, which happens for deliveries racing
// an unsubscribe.
func Dispatch(key uintptr, n Notification) bool {
	cb, ok := subscriptions.lookup(key)
	if !ok {
		return false
	}
	cb(n)
	return true
}

// Active returns the number of registered subscriptions in the process.
func Active() int {
	return subscriptions.len()
}
