//go:build headless

// input_select_headless.go - Picks the raw-terminal input backend for the
// headless build, since there's no GUI window to poll keys/cursor from.

package main

// newConsoleInputDevice puts the controlling terminal into raw mode and
// reads guest keys from stdin.
func newConsoleInputDevice() (InputDevice, error) {
	return NewTerminalInputDevice()
}
