package synth

import "fmt"

// KeyCode is a platform-neutral key identifier. Windows virtual-key
// codes are used as the canonical encoding; platform backends translate
// as needed.
// Reference: https://docs.microsoft.com/en-us/windows/win32/inputdev/virtual-key-codes
type KeyCode uint16

const (
	KeyA KeyCode = 0x41
	KeyD KeyCode = 0x44
	KeyH KeyCode = 0x48
	KeyI KeyCode = 0x49
	KeyK KeyCode = 0x4B
	KeyU KeyCode = 0x55

	Key0 KeyCode = 0x30
	Key1 KeyCode = 0x31
	Key2 KeyCode = 0x32
	Key3 KeyCode = 0x33
	Key4 KeyCode = 0x34
	Key5 KeyCode = 0x35
	Key6 KeyCode = 0x36
	Key7 KeyCode = 0x37
	Key8 KeyCode = 0x38
	Key9 KeyCode = 0x39

	KeyEscape      KeyCode = 0x1B
	KeySpace       KeyCode = 0x20
	KeyPrintScreen KeyCode = 0x2C
	KeyShift       KeyCode = 0x10
	KeyControl     KeyCode = 0x11
	KeyAlt         KeyCode = 0x12
	KeyCommand     KeyCode = 0x5B // Left Windows / Left Command

	KeyLeft  KeyCode = 0x25
	KeyUpArr KeyCode = 0x26
	KeyRight KeyCode = 0x27
	KeyDown_ KeyCode = 0x28
)

// keyNames maps the symbolic names accepted in a bindings file to key
// codes. Letters and digits cover everything the stock control pad
// uses; the extras are for custom bindings.
var keyNames = map[string]KeyCode{
	"escape": KeyEscape,
	"space":  KeySpace,
	"shift":  KeyShift,
	"ctrl":   KeyControl,
	"alt":    KeyAlt,
	"left":   KeyLeft,
	"up":     KeyUpArr,
	"right":  KeyRight,
	"down":   KeyDown_,
}

// KeyFromName resolves a key name from a bindings file: a single letter
// ("a".."z"), a single digit ("0".."9"), or one of the named keys.
func KeyFromName(name string) (KeyCode, error) {
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return KeyCode(c - 'a' + 'A'), nil
		case c >= 'A' && c <= 'Z':
			return KeyCode(c), nil
		case c >= '0' && c <= '9':
			return KeyCode(c), nil
		}
	}
	if code, ok := keyNames[name]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown key name: %q", name)
}
