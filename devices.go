// devices.go - Host-facing device interfaces.
//
// These three interfaces are the only contract between the simulation
// thread and whatever presents frames, produces audio, and reports input;
// concrete backends (ebiten/oto/terminal/headless) live in their own
// build-tagged files and never get referenced by name anywhere in the
// kernel itself.

package main

// GuestKey names one of the thirteen digital inputs the CLI's keyboard
// map and the ebiten input backend both bind to.
type GuestKey int

const (
	KeyA GuestKey = iota
	KeyB
	KeyX
	KeyY
	KeyL
	KeyR
	KeySelect
	KeyStart
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyFastForward
	guestKeyCount
)

// TouchPoint is the lower-screen pen position the input device reports.
// Pressed is false when the pen isn't down; X/Y are undefined in that case.
type TouchPoint struct {
	X, Y    int
	Pressed bool
}

// InputDevice reports live key and pen state. The simulation reads it
// from the host thread's state directly, on the assumption that torn
// reads of independent bits are harmless.
type InputDevice interface {
	IsKeyDown(key GuestKey) bool
	TouchPoint() TouchPoint
}

// AudioCallback receives one block of interleaved 16-bit stereo PCM to
// fill; it is invoked from the host's own audio thread, never the
// simulation thread.
type AudioCallback func(stereo []int16)

// AudioDevice is the host PCM output: opened once at driver startup,
// closed at shutdown.
type AudioDevice interface {
	Open(sampleRate, blockSize int, callback AudioCallback) error
	Close() error
	SampleRate() int
	BlockSize() int
}

// VideoDevice is the host display: started once at driver startup, then
// called once per frame with both 256x192 RGBA framebuffers.
type VideoDevice interface {
	Start() error
	Present(top, bottom []byte) error
	IsStarted() bool
	Close() error
}

const (
	guestScreenWidth  = 256
	guestScreenHeight = 192
	guestFrameBytes   = guestScreenWidth * guestScreenHeight * 4
)

// --- MMIO adapters over the input device ---

// keyInputBits is the guest-visible bit order of the primary key register.
var keyInputBits = [...]GuestKey{
	KeyA, KeyB, KeySelect, KeyStart, KeyRight, KeyLeft, KeyUp, KeyDown, KeyR, KeyL,
}

// KeyInputRegister presents the ten primary buttons as an active-low
// bitmask, polling the host input device live on every read. Torn reads
// of independent key bits are harmless, so no latching or locking sits
// between the host thread's key state and the guest.
type KeyInputRegister struct{ Input InputDevice }

func (r KeyInputRegister) value() uint16 {
	v := uint16(1<<len(keyInputBits)) - 1
	if r.Input == nil {
		return v
	}
	for bit, key := range keyInputBits {
		if r.Input.IsKeyDown(key) {
			v &^= 1 << bit
		}
	}
	return v
}

func (r KeyInputRegister) ReadByte(offset int) uint8         { return uint8(r.value() >> (offset * 8)) }
func (r KeyInputRegister) WriteByte(offset int, value uint8) {}
func (r KeyInputRegister) Width() int                        { return 2 }

// ExtKeyInputRegister presents the X/Y buttons and the pen-down level,
// active-low, on the audio CPU's side of the MMIO window (the side that
// owns the touchscreen's SPI link).
type ExtKeyInputRegister struct{ Input InputDevice }

func (r ExtKeyInputRegister) ReadByte(offset int) uint8 {
	if offset != 0 {
		return 0
	}
	v := uint8(0x43)
	if r.Input == nil {
		return v
	}
	if r.Input.IsKeyDown(KeyX) {
		v &^= 1 << 0
	}
	if r.Input.IsKeyDown(KeyY) {
		v &^= 1 << 1
	}
	if r.Input.TouchPoint().Pressed {
		v &^= 1 << 6
	}
	return v
}

func (r ExtKeyInputRegister) WriteByte(offset int, value uint8) {}
func (r ExtKeyInputRegister) Width() int                        { return 2 }
