// apu_mixer.go - Sixteen-channel audio mixer (mixing side only).
//
// Per-channel waveform generation (ADPCM/PSG) lives behind the injected
// SampleGenerator; this file owns scheduling each active channel's next
// sample, summing into a stereo accumulator, and periodically
// snapshotting that accumulator into a mutex-protected ring buffer the
// host audio callback drains. The mutex is held only for the copy in and
// the copy out, never across scheduling work.

package main

import "sync"

const apuChannelCount = 16

// SampleGenerator produces the next waveform sample for one channel. The
// concrete ADPCM/PSG/noise generators are out of this kernel's scope; the
// mixer only calls this interface.
type SampleGenerator interface {
	NextSample() float32
}

// apuSnapshotPeriod is the cycle interval between accumulator snapshots
// into the host-facing ring buffer - a periodic event independent of any
// single channel's own sample rate.
const apuSnapshotPeriod = 512

// apuRingCapacity is the fixed depth (in stereo frames) of the ring buffer
// shared with the host audio thread.
const apuRingCapacity = 2048

type apuChannel struct {
	id      int
	enabled bool
	volumeL float32
	volumeR float32

	// timer is the channel's duty/period register: the scheduler interval
	// between samples is directly 0x10000-timer cycles (clamped to at
	// least 1), mirroring the hardware's "timer counts up, sample advances
	// on overflow" design without needing the real waveform generator this
	// kernel doesn't implement.
	timer uint16

	source SampleGenerator

	event    EventHandle
	hasEvent bool
}

func (c *apuChannel) periodCycles() uint64 {
	p := uint64(0x10000 - uint32(c.timer))
	if p == 0 {
		p = 1
	}
	return p
}

// APUMixer is sixteen scheduler-stepped channels accumulating into a
// stereo ring buffer.
type APUMixer struct {
	scheduler *Scheduler

	channels [apuChannelCount]apuChannel

	accumL float32
	accumR float32

	ringMu    sync.Mutex
	ringL     [apuRingCapacity]float32
	ringR     [apuRingCapacity]float32
	ringHead  int // next slot to write
	ringTail  int // next slot to read
	ringCount int

	snapshotEvent EventHandle
}

// NewAPUMixer wires the mixer to the scheduler that drives both per-channel
// sampling and the periodic ring-buffer snapshot.
func NewAPUMixer(scheduler *Scheduler) *APUMixer {
	m := &APUMixer{scheduler: scheduler}
	m.Reset()
	return m
}

// Reset disables every channel, cancels all scheduled events, and empties
// the ring buffer.
func (m *APUMixer) Reset() {
	for i := range m.channels {
		ch := &m.channels[i]
		if ch.hasEvent {
			m.scheduler.Cancel(ch.event)
		}
		*ch = apuChannel{id: i}
	}
	m.accumL, m.accumR = 0, 0
	m.ringMu.Lock()
	m.ringHead, m.ringTail, m.ringCount = 0, 0, 0
	m.ringMu.Unlock()

	m.snapshotEvent = m.scheduler.Add(apuSnapshotPeriod, m.onSnapshot)
}

// SetChannelSource wires channel id to the external generator that
// produces its waveform samples.
func (m *APUMixer) SetChannelSource(id int, src SampleGenerator) {
	m.channels[id].source = src
}

// SetChannelEnable starts or stops channel id. Enabling schedules its
// first sample event; disabling cancels any pending one.
func (m *APUMixer) SetChannelEnable(id int, enabled bool) {
	ch := &m.channels[id]
	if enabled == ch.enabled {
		return
	}
	ch.enabled = enabled
	if enabled {
		m.scheduleChannel(ch, 0)
	} else if ch.hasEvent {
		m.scheduler.Cancel(ch.event)
		ch.hasEvent = false
	}
}

// SetChannelTimer writes the channel's duty/period register.
func (m *APUMixer) SetChannelTimer(id int, timer uint16) {
	m.channels[id].timer = timer
}

// SetChannelVolume writes the per-channel stereo gain pair.
func (m *APUMixer) SetChannelVolume(id int, left, right float32) {
	m.channels[id].volumeL = left
	m.channels[id].volumeR = right
}

func (m *APUMixer) scheduleChannel(ch *apuChannel, cyclesLate int) {
	id := ch.id
	delay := ch.periodCycles()
	if uint64(cyclesLate) < delay {
		delay -= uint64(cyclesLate)
	} else {
		delay = 1
	}
	ch.event = m.scheduler.Add(delay, func(late int) { m.onChannelSample(id, late) })
	ch.hasEvent = true
}

func (m *APUMixer) onChannelSample(id int, cyclesLate int) {
	ch := &m.channels[id]
	if !ch.enabled {
		ch.hasEvent = false
		return
	}

	var s float32
	if ch.source != nil {
		s = ch.source.NextSample()
	}
	m.accumL += s * ch.volumeL
	m.accumR += s * ch.volumeR

	m.scheduleChannel(ch, cyclesLate)
}

// onSnapshot drains the running accumulator into the ring buffer under the
// mutex, held for only the copy itself, and reschedules itself.
func (m *APUMixer) onSnapshot(cyclesLate int) {
	left, right := m.accumL, m.accumR
	m.accumL, m.accumR = 0, 0

	m.ringMu.Lock()
	if m.ringCount < apuRingCapacity {
		m.ringL[m.ringHead] = left
		m.ringR[m.ringHead] = right
		m.ringHead = (m.ringHead + 1) % apuRingCapacity
		m.ringCount++
	}
	m.ringMu.Unlock()

	delay := uint64(apuSnapshotPeriod)
	if uint64(cyclesLate) < delay {
		delay -= uint64(cyclesLate)
	} else {
		delay = 1
	}
	m.snapshotEvent = m.scheduler.Add(delay, m.onSnapshot)
}

// ReadStereoSample pops one stereo frame from the ring buffer for the host
// audio callback, or returns silence if the buffer is empty - the host
// thread's only point of contact with simulation state.
func (m *APUMixer) ReadStereoSample() (left, right float32) {
	m.ringMu.Lock()
	defer m.ringMu.Unlock()
	if m.ringCount == 0 {
		return 0, 0
	}
	left = m.ringL[m.ringTail]
	right = m.ringR[m.ringTail]
	m.ringTail = (m.ringTail + 1) % apuRingCapacity
	m.ringCount--
	return left, right
}

// RingLevel reports how many stereo frames are buffered, chiefly for tests
// and diagnostics.
func (m *APUMixer) RingLevel() int {
	m.ringMu.Lock()
	defer m.ringMu.Unlock()
	return m.ringCount
}

// --- MMIO adapter: one channel's control/timer/volume block ---

type constSample float32

func (c constSample) NextSample() float32 { return float32(c) }

// APUChannelRegister adapts one channel's {control, pan, timer lo/hi} block
// to ByteRegister. Offset 0 is enable (bit 7) + left volume (bits 0-6,
// scaled to [0,1]); offset 1 is the right-channel volume in the same
// encoding; offsets 2-3 are the 16-bit timer/period register.
type APUChannelRegister struct {
	mixer  *APUMixer
	chanID int
}

func (r APUChannelRegister) ReadByte(offset int) uint8 {
	ch := &r.mixer.channels[r.chanID]
	switch offset {
	case 0:
		v := uint8(ch.volumeL * 127)
		if ch.enabled {
			v |= 0x80
		}
		return v
	case 1:
		return uint8(ch.volumeR * 127)
	case 2:
		return uint8(ch.timer)
	case 3:
		return uint8(ch.timer >> 8)
	}
	return 0
}

func (r APUChannelRegister) WriteByte(offset int, value uint8) {
	ch := &r.mixer.channels[r.chanID]
	switch offset {
	case 0:
		r.mixer.SetChannelVolume(r.chanID, float32(value&0x7F)/127, ch.volumeR)
		r.mixer.SetChannelEnable(r.chanID, value&0x80 != 0)
	case 1:
		r.mixer.SetChannelVolume(r.chanID, ch.volumeL, float32(value&0x7F)/127)
	case 2:
		r.mixer.SetChannelTimer(r.chanID, (ch.timer&0xFF00)|uint16(value))
	case 3:
		r.mixer.SetChannelTimer(r.chanID, (ch.timer&0x00FF)|uint16(value)<<8)
	}
}

func (r APUChannelRegister) Width() int { return 4 }
