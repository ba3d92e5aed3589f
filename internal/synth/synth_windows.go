//go:build windows

package synth

import (
	"errors"
	"syscall"
	"unsafe"
)

// Windows implementation of input synthesis using SendInput.

var (
	user32        = syscall.NewLazyDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard  = 1
	keyeventfKeyup = 0x0002
)

type keybdInput struct {
	Vk          uint16
	Scan        uint16
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winInput struct {
	Type uint32
	_    uint32 // alignment padding before the union
	Ki   keybdInput
	_    [8]byte // pad union to MOUSEINPUT size
}

type backend struct{}

func newBackend() Synthesizer {
	return &backend{}
}

func (b *backend) Emit(op Op) error {
	switch op.Kind {
	case OpKeyDown:
		return b.sendKey(op, uint16(op.Key), false)
	case OpKeyUp:
		return b.sendKey(op, uint16(op.Key), true)
	case OpScreenshot:
		// PrintScreen
		if err := b.sendKey(op, uint16(KeyPrintScreen), false); err != nil {
			return err
		}
		return b.sendKey(op, uint16(KeyPrintScreen), true)
	default:
		return &PlatformError{Op: op, Err: errors.New("unknown op kind")}
	}
}

func (b *backend) sendKey(op Op, vk uint16, up bool) error {
	var input winInput
	input.Type = inputKeyboard
	input.Ki.Vk = vk
	if up {
		input.Ki.DwFlags = keyeventfKeyup
	}

	n, _, err := procSendInput.Call(
		1,
		uintptr(unsafe.Pointer(&input)),
		unsafe.Sizeof(input),
	)
	if n == 0 {
		return &PlatformError{Op: op, Err: err}
	}
	return nil
}
