// Package capability resolves a capability name to the WNF state name that
// Windows uses to announce changes to that capability's usage.
package capability

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// UsageClassID is the activatable class exposing capability usage.
	UsageClassID = "Windows.Internal.CapabilityAccess.Management.CapabilityUsage"

	// UsageStaticsIID is the interface ID of the class factory.
	UsageStaticsIID = "42947746-4ea0-48c2-9274-062ed61f8daa"
)

var (
	// ErrEmptyCapability is returned for a blank capability name.
	ErrEmptyCapability = errors.New("capability: empty capability name")

	// ErrNoStateName is returned when the platform hands back a zero state
	// name.
	ErrNoStateName = errors.New("capability: platform returned no state name")

	// ErrUnsupportedPlatform is returned by the system activator outside
	// Windows.
	ErrUnsupportedPlatform = errors.New("capability: activation is only available on Windows")
)

// Activator looks up an activation factory by class and interface ID.
type Activator interface {
	ActivationFactory(classID, iid string) (Factory, error)
}

// Factory creates usage objects scoped to one capability.
type Factory interface {
	Create(capability string) (Usage, error)
	Release()
}

// Usage is a capability usage object.
type Usage interface {
	// StateName returns the WNF state name keyed to every usage change of
	// the capability, across all apps.
	StateName() (uint64, error)
	Release()
}

// ResolutionError reports a failure to resolve a capability.
type ResolutionError struct {
	Capability string
	Op         string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("capability: %s %q: %v", e.Op, e.Capability, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver turns capability names into WNF state names.
type Resolver struct {
	activator Activator
}

// NewResolver creates a Resolver. A nil activator selects SystemActivator.
func NewResolver(activator Activator) *Resolver {
	if activator == nil {
		activator = SystemActivator()
	}
	return &Resolver{activator: activator}
}

// Resolve returns the state name for capability. Every failure is a
// *ResolutionError.
func (r *Resolver) Resolve(capability string) (uint64, error) {
	if strings.TrimSpace(capability) == "" {
		return 0, &ResolutionError{Capability: capability, Op: "validate", Err: ErrEmptyCapability}
	}

	factory, err := r.activator.ActivationFactory(UsageClassID, UsageStaticsIID)
	if err != nil {
		return 0, &ResolutionError{Capability: capability, Op: "activate factory for", Err: err}
	}
	defer factory.Release()

	usage, err := factory.Create(capability)
	if err != nil {
		return 0, &ResolutionError{Capability: capability, Op: "create usage object for", Err: err}
	}
	defer usage.Release()

	name, err := usage.StateName()
	if err != nil {
		return 0, &ResolutionError{Capability: capability, Op: "get state name for", Err: err}
	}
	if name == 0 {
		return 0, &ResolutionError{Capability: capability, Op: "get state name for", Err: ErrNoStateName}
	}

	return name, nil
}
