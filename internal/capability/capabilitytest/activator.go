// Package capabilitytest provides a fake capability.Activator.
package capabilitytest

import (
	"fmt"
	"sync"

	"github.com/blackwell-systems/capwatch/internal/capability"
)

// Activator hands out state names from a fixed table. Unknown capabilities
// are rejected the way the platform rejects them.
type Activator struct {
	mu sync.Mutex

	// StateNames maps capability name to state name.
	StateNames map[string]uint64

	// FactoryErr, CreateErr and StateNameErr force failures at each step.
	FactoryErr   error
	CreateErr    error
	StateNameErr error

	// LastClassID and LastIID record the most recent factory lookup.
	LastClassID string
	LastIID     string

	live int
}

// New returns an Activator that knows the given capabilities.
func New(stateNames map[string]uint64) *Activator {
	if stateNames == nil {
		stateNames = make(map[string]uint64)
	}
	return &Activator{StateNames: stateNames}
}

// Live returns the number of factory and usage objects not yet released.
func (a *Activator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// ActivationFactory implements capability.Activator.
func (a *Activator) ActivationFactory(classID, iid string) (capability.Factory, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.LastClassID = classID
	a.LastIID = iid
	if a.FactoryErr != nil {
		return nil, a.FactoryErr
	}
	a.live++
	return &factory{a: a}, nil
}

func (a *Activator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live--
}

type factory struct {
	a        *Activator
	released bool
}

func (f *factory) Create(name string) (capability.Usage, error) {
	f.a.mu.Lock()
	defer f.a.mu.Unlock()
	if f.a.CreateErr != nil {
		return nil, f.a.CreateErr
	}
	stateName, ok := f.a.StateNames[name]
	if !ok {
		return nil, fmt.Errorf("capability %q rejected: E_INVALIDARG", name)
	}
	f.a.live++
	return &usage{a: f.a, stateName: stateName}, nil
}

func (f *factory) Release() {
	if !f.released {
		f.released = true
		f.a.release()
	}
}

type usage struct {
	a         *Activator
	stateName uint64
	released  bool
}

func (u *usage) StateName() (uint64, error) {
	u.a.mu.Lock()
	defer u.a.mu.Unlock()
	if u.a.StateNameErr != nil {
		return 0, u.a.StateNameErr
	}
	return u.stateName, nil
}

func (u *usage) Release() {
	if !u.released {
		u.released = true
		u.a.release()
	}
}
