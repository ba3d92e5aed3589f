//go:build !darwin && !windows

package synth

import "errors"

// Stub implementation for platforms without a key injection backend.

var errUnsupported = errors.New("input synthesis not supported on this platform")

type backend struct{}

func newBackend() Synthesizer {
	return &backend{}
}

func (b *backend) Emit(op Op) error {
	return &PlatformError{Op: op, Err: errUnsupported}
}
