package reconcile

import (
	"errors"
	"fmt"

	"github.com/iw2rmb/modalsync/pane"
)

var (
	// ErrStalePane marks events and acknowledgements for panes that are no
	// longer registered. They are dropped.
	ErrStalePane = errors.New("reconcile: stale pane")

	// ErrReconciliationTimeout matches every *TimeoutError.
	ErrReconciliationTimeout = errors.New("reconcile: reconciliation timeout")
)

// EngineError is a command the engine rejected. It is not fatal: the
// authoritative cursor stays where it was.
type EngineError struct {
	Pane   pane.ID
	Ref    pane.EngineRef
	Reason string
}

func (e *EngineError) Error() string {
	if e.Pane == "" {
		return fmt.Sprintf("engine window %d: %s", e.Ref, e.Reason)
	}
	return fmt.Sprintf("engine window %d (pane %s): %s", e.Ref, e.Pane, e.Reason)
}

// HostError is a failed outbound host call.
type HostError struct {
	Pane pane.ID
	Op   string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host %s on pane %s: %v", e.Op, e.Pane, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// TimeoutError reports a track that waited past its deadline and was reset.
type TimeoutError struct {
	Pane  pane.ID
	Track string
	State pane.State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pane %s: %s track timed out in %s", e.Pane, e.Track, e.State)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrReconciliationTimeout }
