//go:build darwin

package synth

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

// Check if we have accessibility permissions
bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

void postKey(CGKeyCode keyCode, bool pressed) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, keyCode, pressed);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}
*/
import "C"
import "errors"

// macOS implementation of input synthesis using CoreGraphics.

// Windows VK code to macOS CGKeyCode mapping
// Reference: https://developer.apple.com/documentation/coregraphics/cgkeycode
var vkToMacKeyMap = map[KeyCode]uint16{
	// Letters A-Z (Windows VK_A = 0x41, macOS kVK_ANSI_A = 0x00)
	0x41: 0x00, // A
	0x42: 0x0B, // B
	0x43: 0x08, // C
	0x44: 0x02, // D
	0x45: 0x0E, // E
	0x46: 0x03, // F
	0x47: 0x05, // G
	0x48: 0x04, // H
	0x49: 0x22, // I
	0x4A: 0x26, // J
	0x4B: 0x28, // K
	0x4C: 0x25, // L
	0x4D: 0x2E, // M
	0x4E: 0x2D, // N
	0x4F: 0x1F, // O
	0x50: 0x23, // P
	0x51: 0x0C, // Q
	0x52: 0x0F, // R
	0x53: 0x01, // S
	0x54: 0x11, // T
	0x55: 0x20, // U
	0x56: 0x09, // V
	0x57: 0x0D, // W
	0x58: 0x07, // X
	0x59: 0x10, // Y
	0x5A: 0x06, // Z

	// Top-row numbers 0-9 (Windows VK_0 = 0x30, macOS kVK_ANSI_0 = 0x1D)
	0x30: 0x1D, // 0
	0x31: 0x12, // 1
	0x32: 0x13, // 2
	0x33: 0x14, // 3
	0x34: 0x15, // 4
	0x35: 0x17, // 5
	0x36: 0x16, // 6
	0x37: 0x1A, // 7
	0x38: 0x1C, // 8
	0x39: 0x19, // 9

	// Special keys
	0x10: 0x38, // Shift (left)
	0x11: 0x3B, // Control (left)
	0x12: 0x3A, // Alt -> Option
	0x1B: 0x35, // Escape
	0x20: 0x31, // Space
	0x5B: 0x37, // Left Windows -> Left Command

	// Arrow keys
	0x25: 0x7B, // Left Arrow
	0x26: 0x7E, // Up Arrow
	0x27: 0x7C, // Right Arrow
	0x28: 0x7D, // Down Arrow
}

type backend struct{}

func newBackend() Synthesizer {
	return &backend{}
}

func (b *backend) Emit(op Op) error {
	if !bool(C.hasAccessibilityPermissions()) {
		return &PlatformError{Op: op, Err: errors.New("accessibility permissions not granted")}
	}

	switch op.Kind {
	case OpKeyDown, OpKeyUp:
		macKey, ok := vkToMacKeyMap[op.Key]
		if !ok {
			return &PlatformError{Op: op, Err: errors.New("key has no macOS key code")}
		}
		var cPressed C.bool
		if op.Kind == OpKeyDown {
			cPressed = C.bool(true)
		}
		C.postKey(C.CGKeyCode(macKey), cPressed)
		return nil

	case OpScreenshot:
		// Cmd+Shift+3, pressed outside-in like a human chord
		b.chord(KeyCommand, KeyShift, Key3)
		return nil

	default:
		return &PlatformError{Op: op, Err: errors.New("unknown op kind")}
	}
}

func (b *backend) chord(keys ...KeyCode) {
	for _, k := range keys {
		C.postKey(C.CGKeyCode(vkToMacKeyMap[k]), C.bool(true))
	}
	for i := len(keys) - 1; i >= 0; i-- {
		C.postKey(C.CGKeyCode(vkToMacKeyMap[keys[i]]), C.bool(false))
	}
}
