//go:build !headless

// video_backend_ebiten.go - GUI video device over ebiten.
//
// A mutex-protected frame buffer pair written by Present from the
// simulation thread and presented by ebiten's own Draw callback on its
// own goroutine, with Layout reporting a fixed logical size.

package main

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// EbitenVideoDevice presents the two 256x192 guest framebuffers one above
// the other in one window, scaled up for visibility.
type EbitenVideoDevice struct {
	mu      sync.RWMutex
	top     []byte
	bottom  []byte
	topImg  *ebiten.Image
	botImg  *ebiten.Image
	started bool
	scale   int
}

// NewEbitenVideoDevice returns a device whose window isn't created until
// Start runs ebiten's game loop.
func NewEbitenVideoDevice(scale int) *EbitenVideoDevice {
	if scale < 1 {
		scale = 2
	}
	return &EbitenVideoDevice{
		top:    make([]byte, guestFrameBytes),
		bottom: make([]byte, guestFrameBytes),
		scale:  scale,
	}
}

// Start runs the ebiten window loop on its own goroutine so the caller
// isn't blocked for the window's lifetime.
func (e *EbitenVideoDevice) Start() error {
	if e.started {
		return nil
	}
	e.started = true
	ebiten.SetWindowSize(guestScreenWidth*e.scale, guestScreenHeight*2*e.scale)
	ebiten.SetWindowTitle("duocore")
	ebiten.SetWindowResizable(true)
	go func() {
		if err := ebiten.RunGame(e); err != nil {
			fmt.Printf("video: ebiten run loop exited: %v\n", err)
		}
	}()
	return nil
}

// Present implements VideoDevice: it copies both frames under the lock
// the ebiten callback also uses, held only for the copy itself.
func (e *EbitenVideoDevice) Present(top, bottom []byte) error {
	if len(top) != guestFrameBytes || len(bottom) != guestFrameBytes {
		return fmt.Errorf("video: frame buffer must be %d bytes, got top=%d bottom=%d", guestFrameBytes, len(top), len(bottom))
	}
	e.mu.Lock()
	copy(e.top, top)
	copy(e.bottom, bottom)
	e.mu.Unlock()
	return nil
}

func (e *EbitenVideoDevice) IsStarted() bool { return e.started }

func (e *EbitenVideoDevice) Close() error {
	e.started = false
	return nil
}

// Update implements ebiten.Game; the driver owns simulation timing, so
// this has nothing to advance.
func (e *EbitenVideoDevice) Update() error {
	if ebiten.IsWindowBeingClosed() || !e.started {
		return ebiten.Termination
	}
	return nil
}

// Draw implements ebiten.Game's Draw, called on ebiten's own
// goroutine once per host vsync.
func (e *EbitenVideoDevice) Draw(screen *ebiten.Image) {
	if e.topImg == nil {
		e.topImg = ebiten.NewImage(guestScreenWidth, guestScreenHeight)
		e.botImg = ebiten.NewImage(guestScreenWidth, guestScreenHeight)
	}
	e.mu.RLock()
	e.topImg.WritePixels(e.top)
	e.botImg.WritePixels(e.bottom)
	e.mu.RUnlock()

	screen.DrawImage(e.topImg, nil)
	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Translate(0, guestScreenHeight)
	screen.DrawImage(e.botImg, opts)
}

func (e *EbitenVideoDevice) Layout(_, _ int) (int, int) {
	return guestScreenWidth, guestScreenHeight * 2
}
