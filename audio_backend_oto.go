//go:build !headless

// audio_backend_oto.go - oto v3 audio output implementation.
//
// An oto.Context wrapping a type that implements io.Reader, with the
// guest-audio callback held behind an atomic pointer so the realtime
// playback thread never blocks on a mutex the simulation thread might be
// holding.

package main

import (
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// OtoAudioDevice implements AudioDevice over oto's cross-platform output.
type OtoAudioDevice struct {
	ctx    *oto.Context
	player *oto.Player

	callback   atomic.Pointer[AudioCallback]
	sampleRate int
	blockSize  int

	mu      sync.Mutex
	started bool
}

// NewOtoAudioDevice returns an unopened device; Open builds the oto
// context, wires the guest callback, and starts playback.
func NewOtoAudioDevice() *OtoAudioDevice { return &OtoAudioDevice{} }

// Open implements AudioDevice. It builds the oto context at sampleRate
// with a stereo 16-bit format and starts a player reading from this
// device as an io.Reader.
func (d *OtoAudioDevice) Open(sampleRate, blockSize int, cb AudioCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sampleRate = sampleRate
	d.blockSize = blockSize
	d.callback.Store(&cb)

	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   0,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return err
	}
	<-ready

	d.ctx = ctx
	d.player = ctx.NewPlayer(d)
	d.player.Play()
	d.started = true
	return nil
}

// Read implements io.Reader for oto's player: it's called from oto's own
// playback thread and must never block on simulation-thread state.
func (d *OtoAudioDevice) Read(p []byte) (int, error) {
	cbPtr := d.callback.Load()
	if cbPtr == nil || *cbPtr == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	frames := len(p) / 4 // 2 channels * 2 bytes
	stereo := make([]int16, frames*2)
	(*cbPtr)(stereo)

	for i, s := range stereo {
		p[i*2] = byte(s)
		p[i*2+1] = byte(s >> 8)
	}
	return frames * 4, nil
}

func (d *OtoAudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
	d.started = false
	return nil
}

func (d *OtoAudioDevice) SampleRate() int { return d.sampleRate }
func (d *OtoAudioDevice) BlockSize() int  { return d.blockSize }
