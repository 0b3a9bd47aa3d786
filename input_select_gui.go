//go:build !headless

// input_select_gui.go - Picks the GUI input backend for the default build.

package main

// newConsoleInputDevice returns the ebiten-polling input device that goes
// with the GUI video backend built under this tag.
func newConsoleInputDevice() (InputDevice, error) {
	return NewEbitenInputDevice(guestScreenHeight), nil
}
