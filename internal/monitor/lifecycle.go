package monitor

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// State is a monitor lifecycle state.
type State string

// Lifecycle states. Stopped can re-enter Started; Disposed is final.
const (
	StateCreated  = "created"
	StateStarted  = "started"
	StateStopped  = "stopped"
	StateDisposed = "disposed"
)

const (
	eventStart   = "start"
	eventStop    = "stop"
	eventDispose = "dispose"
)

type lifecycleContext struct {
	Capability string
}

// lifecycle wraps the statekit interpreter. It is not safe for concurrent
// use; Monitor serialises access under its mutex.
type lifecycle struct {
	interpreter *statekit.Interpreter[lifecycleContext]
}

func newLifecycle(capability string) (*lifecycle, error) {
	builder := statekit.NewMachine[lifecycleContext]("capability-monitor").
		WithInitial(statekit.StateID(StateCreated)).
		WithContext(lifecycleContext{Capability: capability})

	builder.State(StateCreated).
		On(eventStart).Target(StateStarted).
		On(eventDispose).Target(StateDisposed).
		Done()

	builder.State(StateStarted).
		On(eventStop).Target(StateStopped).
		Done()

	builder.State(StateStopped).
		On(eventStart).Target(StateStarted).
		On(eventDispose).Target(StateDisposed).
		Done()

	builder.State(StateDisposed).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build lifecycle machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &lifecycle{interpreter: interpreter}, nil
}

func (l *lifecycle) current() State {
	return State(l.interpreter.State().Value)
}

// send fires event and reports an error if the machine did not move.
func (l *lifecycle) send(event string) error {
	before := l.current()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if l.current() == before {
		return fmt.Errorf("monitor: %q is not allowed in state %q", event, before)
	}
	return nil
}
