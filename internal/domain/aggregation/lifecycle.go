package aggregation

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle events. Scans never change status; only operator actions and
// finalization do.
const (
	EventPause    statekit.EventType = "PAUSE"
	EventResume   statekit.EventType = "RESUME"
	EventClose    statekit.EventType = "CLOSE"
	EventFinalize statekit.EventType = "FINALIZE"
)

type lifecycleContext struct{}

func buildLifecycle(initial Status) (*statekit.Interpreter[lifecycleContext], error) {
	machine, err := statekit.NewMachine[lifecycleContext]("aggregation-session").
		WithInitial(statekit.StateID(initial)).
		State(statekit.StateID(StatusOpen)).
		On(EventPause).Target(statekit.StateID(StatusPaused)).
		On(EventClose).Target(statekit.StateID(StatusClosed)).
		On(EventFinalize).Target(statekit.StateID(StatusFinalized)).
		Done().
		State(statekit.StateID(StatusPaused)).
		On(EventResume).Target(statekit.StateID(StatusOpen)).
		On(EventClose).Target(statekit.StateID(StatusClosed)).
		Done().
		State(statekit.StateID(StatusClosed)).
		Final().
		Done().
		State(statekit.StateID(StatusFinalized)).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build session lifecycle: %w", err)
	}
	return statekit.NewInterpreter(machine), nil
}

// NextStatus resolves the status reached from current on ev. Events that the
// machine ignores are reported as INVALID_TRANSITION.
func NextStatus(current Status, ev statekit.EventType) (Status, error) {
	if current.Terminal() {
		return current, NewError(KindInvalidTransition, "session is %s", current)
	}
	switch current {
	case StatusOpen, StatusPaused:
	default:
		return current, NewError(KindInvalidTransition, "unknown status %q", current)
	}
	interp, err := buildLifecycle(current)
	if err != nil {
		return current, err
	}
	interp.Start()
	interp.Send(statekit.Event{Type: ev})
	next := Status(interp.State().Value)
	if next == current {
		return current, NewError(KindInvalidTransition, "cannot %s a %s session", ev, current)
	}
	return next, nil
}
