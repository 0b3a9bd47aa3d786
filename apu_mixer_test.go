package main

import "testing"

func TestAPUMixerSilentRingWhenNoChannelsEnabled(t *testing.T) {
	sched := NewScheduler()
	m := NewAPUMixer(sched)

	sched.AddCycles(apuSnapshotPeriod * 4)
	sched.Step()

	l, r := m.ReadStereoSample()
	if l != 0 || r != 0 {
		t.Fatalf("expected silence with no channels enabled, got (%f, %f)", l, r)
	}
}

func TestAPUMixerAccumulatesEnabledChannel(t *testing.T) {
	sched := NewScheduler()
	m := NewAPUMixer(sched)

	m.SetChannelSource(0, constSample(1.0))
	m.SetChannelTimer(0, 0xFF00) // 256-cycle period, so a sample lands before the first snapshot
	m.SetChannelVolume(0, 1.0, 1.0)
	m.SetChannelEnable(0, true)

	sched.AddCycles(apuSnapshotPeriod)
	sched.Step()

	if m.RingLevel() == 0 {
		t.Fatalf("expected a snapshot frame to be produced")
	}
	l, r := m.ReadStereoSample()
	if l <= 0 || r <= 0 {
		t.Fatalf("expected positive accumulated sample, got (%f, %f)", l, r)
	}
}

func TestAPUChannelRegisterRoundTrip(t *testing.T) {
	sched := NewScheduler()
	m := NewAPUMixer(sched)
	reg := APUChannelRegister{mixer: m, chanID: 3}

	reg.WriteByte(2, 0x34)
	reg.WriteByte(3, 0x12)
	if got := m.channels[3].timer; got != 0x1234 {
		t.Fatalf("expected timer 0x1234, got 0x%04X", got)
	}

	reg.WriteByte(0, 0x80|64)
	if !m.channels[3].enabled {
		t.Fatalf("expected enable bit to start the channel")
	}
	if reg.ReadByte(0)&0x80 == 0 {
		t.Fatalf("expected readback to report enabled")
	}
}

func TestAPUMixerDisableCancelsScheduledSample(t *testing.T) {
	sched := NewScheduler()
	m := NewAPUMixer(sched)

	m.SetChannelTimer(0, 0x0000)
	m.SetChannelEnable(0, true)
	if sched.Pending() < 2 { // snapshot + channel event
		t.Fatalf("expected channel enable to schedule an event")
	}

	m.SetChannelEnable(0, false)
	pendingAfter := sched.Pending()
	sched.AddCycles(1 << 20)
	sched.Step()
	if sched.Pending() < pendingAfter {
		t.Fatalf("disabling a channel should not leave extra live events to misfire")
	}
}
