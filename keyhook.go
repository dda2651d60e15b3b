package secretflash

import "github.com/gentam/secretflash/internal/logging"

// KeyEscape is the HID usage ID of the Escape key (KC_ESC).
const KeyEscape = 0x29

// ProcessKey is the key event hook. While an operation is running every key
// is swallowed and an Escape press requests an abort. It returns true when
// the key should continue through the normal keymap processing.
func (d *Dispatcher) ProcessKey(keycode uint16, pressed bool) bool {
	if !d.guard.Busy() {
		return true
	}
	if pressed && keycode == KeyEscape {
		d.Abort()
	}
	return false
}

// Abort requests cancellation of the running operation. It reports whether
// an operation was running.
func (d *Dispatcher) Abort() bool {
	if !d.guard.RequestAbort() {
		return false
	}
	logging.Info(logging.ComponentDispatch, "abort requested")
	return true
}
