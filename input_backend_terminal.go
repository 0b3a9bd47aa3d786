// input_backend_terminal.go - Raw-mode terminal input device for headless
// CLI runs.
//
// Puts stdin in raw mode via golang.org/x/term, reads it byte-at-a-time
// on a dedicated goroutine, and restores the terminal state on Close.
// Guest buttons are discrete levels, so each recognized key latches a
// short-lived "pressed" window rather than being forwarded as text.

package main

import (
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// terminalKeyHoldWindow is how long a received keypress counts as "held"
// for IsKeyDown, since a raw terminal stream reports presses, not a
// continuous key-down level the way a GUI polling API does.
const terminalKeyHoldWindow = 150 * time.Millisecond

// TerminalInputDevice implements InputDevice by reading raw stdin bytes
// and mapping them onto the same keyboard bindings the GUI backend
// uses.
type TerminalInputDevice struct {
	fd       int
	oldState *term.State

	mu       sync.Mutex
	lastSeen [guestKeyCount]time.Time

	stopCh chan struct{}
	done   chan struct{}
}

// NewTerminalInputDevice puts stdin into raw mode and starts the reader
// goroutine. Call Close to restore the terminal.
func NewTerminalInputDevice() (*TerminalInputDevice, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	d := &TerminalInputDevice{
		fd:       fd,
		oldState: oldState,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

func terminalKeyFromByte(b byte) (GuestKey, bool) {
	switch b {
	case 'a', 'A':
		return KeyA, true
	case 's', 'S':
		return KeyB, true
	case 'q', 'Q':
		return KeyX, true
	case 'w', 'W':
		return KeyY, true
	case 'd', 'D':
		return KeyL, true
	case 'f', 'F':
		return KeyR, true
	case 0x08, 0x7F: // backspace / DEL
		return KeySelect, true
	case '\r', '\n':
		return KeyStart, true
	case ' ':
		return KeyFastForward, true
	}
	return 0, false
}

func (d *TerminalInputDevice) latch(key GuestKey) {
	d.mu.Lock()
	d.lastSeen[key] = time.Now()
	d.mu.Unlock()
}

// readLoop reads escape-sequence arrow keys and single-byte bindings,
// matching terminal_host.go's raw-mode-plus-goroutine shape.
func (d *TerminalInputDevice) readLoop() {
	defer close(d.done)
	buf := make([]byte, 3)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		n, err := os.Stdin.Read(buf[:1])
		if err != nil || n == 0 {
			if err != nil {
				return
			}
			continue
		}

		if buf[0] == 0x1B {
			if n2, _ := os.Stdin.Read(buf[1:3]); n2 == 2 && buf[1] == '[' {
				switch buf[2] {
				case 'A':
					d.latch(KeyUp)
				case 'B':
					d.latch(KeyDown)
				case 'C':
					d.latch(KeyRight)
				case 'D':
					d.latch(KeyLeft)
				}
			}
			continue
		}

		if key, ok := terminalKeyFromByte(buf[0]); ok {
			d.latch(key)
		}
	}
}

func (d *TerminalInputDevice) IsKeyDown(key GuestKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.lastSeen[key]) < terminalKeyHoldWindow
}

// TouchPoint always reports untouched: a raw terminal has no pointer.
func (d *TerminalInputDevice) TouchPoint() TouchPoint { return TouchPoint{} }

// Close restores the terminal to its prior state and stops the reader
// goroutine.
func (d *TerminalInputDevice) Close() error {
	close(d.stopCh)
	if d.oldState != nil {
		if err := term.Restore(d.fd, d.oldState); err != nil {
			log.Printf("input(terminal): failed to restore terminal state: %v", err)
		}
	}
	return nil
}
