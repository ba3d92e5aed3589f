// Package synth provides cross-platform synthetic keyboard input.
package synth

import "fmt"

// OpKind identifies a primitive input operation.
type OpKind string

const (
	OpKeyDown    OpKind = "key_down"
	OpKeyUp      OpKind = "key_up"
	OpScreenshot OpKind = "screenshot"
)

// Op is a single OS input call: one key transition or a screenshot trigger.
type Op struct {
	Kind OpKind  `json:"kind"`
	Key  KeyCode `json:"key,omitempty"`
}

// KeyDown returns a key-down op for the given key.
func KeyDown(key KeyCode) Op { return Op{Kind: OpKeyDown, Key: key} }

// KeyUp returns a key-up op for the given key.
func KeyUp(key KeyCode) Op { return Op{Kind: OpKeyUp, Key: key} }

// Screenshot returns a screenshot-trigger op.
func Screenshot() Op { return Op{Kind: OpScreenshot} }

// Tap returns a key-down/key-up pair for the given key.
func Tap(key KeyCode) []Op { return []Op{KeyDown(key), KeyUp(key)} }

// Synthesizer injects primitive input operations into the OS.
// Implementations are stateless; each call performs exactly one
// primitive action and returns a *PlatformError on failure.
type Synthesizer interface {
	Emit(op Op) error
}

// PlatformError reports a failed OS input call (missing permissions,
// unsupported platform, device unavailable). It is never fatal to the
// relay; the triggering action is reported as failed to the client.
type PlatformError struct {
	Op  Op
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("input synthesis failed for %s: %v", e.Op.Kind, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// New returns the synthesizer backend for the current platform.
func New() Synthesizer {
	return newBackend()
}
