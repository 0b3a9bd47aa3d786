//go:build headless

// audio_backend_headless.go - AudioDevice that discards every block.

package main

// HeadlessAudioDevice satisfies AudioDevice without opening any host
// audio output, for test and benchmark runs.
type HeadlessAudioDevice struct {
	sampleRate int
	blockSize  int
}

func NewOtoAudioDevice() *HeadlessAudioDevice { return &HeadlessAudioDevice{} }

func (d *HeadlessAudioDevice) Open(sampleRate, blockSize int, cb AudioCallback) error {
	d.sampleRate = sampleRate
	d.blockSize = blockSize
	return nil
}

func (d *HeadlessAudioDevice) Close() error { return nil }
func (d *HeadlessAudioDevice) SampleRate() int { return d.sampleRate }
func (d *HeadlessAudioDevice) BlockSize() int  { return d.blockSize }
