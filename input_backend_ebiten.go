//go:build !headless

// input_backend_ebiten.go - GUI input device polling ebiten's key/cursor
// state.
//
// ebiten.IsKeyPressed polled per key and ebiten.CursorPosition for the
// pen, mapped onto the fixed 13-button/touch-point guest model.

package main

import "github.com/hajimehoshi/ebiten/v2"

// EbitenInputDevice implements InputDevice by polling ebiten's key state
// and cursor position against the CLI keyboard map.
type EbitenInputDevice struct {
	lowerScreenY int // logical Y where the lower (touch) screen begins
}

// NewEbitenInputDevice binds to the same logical window EbitenVideoDevice
// draws into; lowerScreenY is the Y coordinate where the bottom screen
// starts, used to gate touch reporting to that half.
func NewEbitenInputDevice(lowerScreenY int) *EbitenInputDevice {
	return &EbitenInputDevice{lowerScreenY: lowerScreenY}
}

func ebitenKeyFor(key GuestKey) (ebiten.Key, bool) {
	switch key {
	case KeyA:
		return ebiten.KeyA, true
	case KeyB:
		return ebiten.KeyS, true
	case KeyX:
		return ebiten.KeyQ, true
	case KeyY:
		return ebiten.KeyW, true
	case KeyL:
		return ebiten.KeyD, true
	case KeyR:
		return ebiten.KeyF, true
	case KeySelect:
		return ebiten.KeyBackspace, true
	case KeyStart:
		return ebiten.KeyEnter, true
	case KeyUp:
		return ebiten.KeyArrowUp, true
	case KeyDown:
		return ebiten.KeyArrowDown, true
	case KeyLeft:
		return ebiten.KeyArrowLeft, true
	case KeyRight:
		return ebiten.KeyArrowRight, true
	case KeyFastForward:
		return ebiten.KeySpace, true
	}
	return 0, false
}

func (d *EbitenInputDevice) IsKeyDown(key GuestKey) bool {
	k, ok := ebitenKeyFor(key)
	if !ok {
		return false
	}
	return ebiten.IsKeyPressed(k)
}

// TouchPoint reports the cursor position translated into the lower
// screen's coordinate space, pressed only while the left mouse button is
// held and the cursor is within the lower screen's bounds.
func (d *EbitenInputDevice) TouchPoint() TouchPoint {
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		return TouchPoint{}
	}
	x, y := ebiten.CursorPosition()
	localY := y - d.lowerScreenY
	if localY < 0 || localY >= guestScreenHeight || x < 0 || x >= guestScreenWidth {
		return TouchPoint{}
	}
	return TouchPoint{X: x, Y: localY, Pressed: true}
}
