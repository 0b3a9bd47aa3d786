package main

import "testing"

type fakeTCMTarget struct {
	dtcm TCMConfig
	itcm TCMConfig
}

func (f *fakeTCMTarget) SetDTCM(cfg TCMConfig) { f.dtcm = cfg }
func (f *fakeTCMTarget) SetITCM(cfg TCMConfig) { f.itcm = cfg }

type fakeCoprocessorHost struct {
	waitedForIRQ  bool
	clearedCache  bool
	clearedLo     uint32
	clearedHi     uint32
}

func (f *fakeCoprocessorHost) WaitForIRQ()                    { f.waitedForIRQ = true }
func (f *fakeCoprocessorHost) ClearICache()                   { f.clearedCache = true }
func (f *fakeCoprocessorHost) ClearICacheRange(lo, hi uint32) { f.clearedLo, f.clearedHi = lo, hi }

func newTestCoprocessor() (*Coprocessor, *fakeTCMTarget, *fakeCoprocessorHost) {
	bus := &fakeTCMTarget{}
	host := &fakeCoprocessorHost{}
	return NewCoprocessor(bus, host), bus, host
}

func TestCoprocessorFixedIDWords(t *testing.T) {
	c, _, _ := newTestCoprocessor()

	if got := c.Read(0, 0, 0, 0); got != 0x41059461 {
		t.Fatalf("main ID = 0x%X, want 0x41059461", got)
	}
	if got := c.Read(0, 0, 0, 1); got != 0x0F0D2112 {
		t.Fatalf("cache type = 0x%X, want 0x0F0D2112", got)
	}
}

func TestCoprocessorResetMatchesDirectBootDefaults(t *testing.T) {
	c, _, _ := newTestCoprocessor()

	if got := c.Read(0, 1, 0, 0); got != 0x0005707D|0x78 {
		t.Fatalf("control register after reset = 0x%X, want 0x%X", got, 0x0005707D|0x78)
	}
}

func TestCoprocessorControlRegisterMasking(t *testing.T) {
	c, _, _ := newTestCoprocessor()

	// All bits set except the fatal big-endian (7) and pre-v5 (15) ones.
	value := uint32(0xFFFFFFFF) &^ 0x8080
	c.Write(0, 1, 0, 0, value)
	got := c.Read(0, 1, 0, 0)
	want := value&0x000FF085 | 0x78
	if got != want {
		t.Fatalf("masked control register = 0x%X, want 0x%X", got, want)
	}
}

func TestCoprocessorBigEndianModePanics(t *testing.T) {
	c, _, _ := newTestCoprocessor()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on big-endian mode request")
		}
	}()
	c.Write(0, 1, 0, 0, 0x80)
}

func TestCoprocessorDTCMEnableFlagsDeriveFromControlWrite(t *testing.T) {
	c, bus, _ := newTestCoprocessor()

	c.Write(0, 1, 0, 0, 0x10000) // DTCM enable, read also enabled (bit 17 clear)
	if !bus.dtcm.Enable || !bus.dtcm.EnableRead {
		t.Fatalf("DTCM config = %+v, want enable+read both true", bus.dtcm)
	}

	c.Write(0, 1, 0, 0, 0x10000|0x20000) // DTCM enable, but reads disabled
	if !bus.dtcm.Enable || bus.dtcm.EnableRead {
		t.Fatalf("DTCM config = %+v, want enable true / read false", bus.dtcm)
	}
}

func TestCoprocessorDTCMSizeEncoding(t *testing.T) {
	c, bus, _ := newTestCoprocessor()

	// size = 10 -> 512 << 10 = 512 KiB, base = 0x02000000
	value := uint32(0x02000000) | (10 << 1)
	c.Write(0, 9, 1, 0, value)

	if bus.dtcm.Base != 0x02000000 {
		t.Fatalf("DTCM base = 0x%X, want 0x02000000", bus.dtcm.Base)
	}
	wantLimit := uint32(0x02000000) + (512 << 10) - 1
	if bus.dtcm.Limit != wantLimit {
		t.Fatalf("DTCM limit = 0x%X, want 0x%X", bus.dtcm.Limit, wantLimit)
	}
}

func TestCoprocessorITCMBaseForcedToZero(t *testing.T) {
	c, bus, _ := newTestCoprocessor()

	value := uint32(0x01000000) | (5 << 1)
	c.Write(0, 9, 1, 1, value)

	if bus.itcm.Base != 0 {
		t.Fatalf("ITCM base = 0x%X, want 0 (non-zero base must be rejected)", bus.itcm.Base)
	}
}

func TestCoprocessorWaitForIRQDispatchesToHost(t *testing.T) {
	c, _, host := newTestCoprocessor()

	c.Write(0, 7, 0, 4, 0)
	if !host.waitedForIRQ {
		t.Fatal("WaitForIRQ not dispatched to host")
	}

	host.waitedForIRQ = false
	c.Write(0, 7, 8, 2, 0) // the alternate WFI opcode triple
	if !host.waitedForIRQ {
		t.Fatal("alternate WFI opcode triple not dispatched to host")
	}
}

func TestCoprocessorInvalidateICacheLineComputesRange(t *testing.T) {
	c, _, host := newTestCoprocessor()

	c.Write(0, 7, 5, 1, 0x02000037)
	if host.clearedLo != 0x02000020 || host.clearedHi != 0x0200003F {
		t.Fatalf("cache line range = [0x%X, 0x%X], want [0x02000020, 0x0200003F]", host.clearedLo, host.clearedHi)
	}
}

func TestCoprocessorUnregisteredTripleReadsZero(t *testing.T) {
	c, _, _ := newTestCoprocessor()
	if got := c.Read(0, 15, 15, 7); got != 0 {
		t.Fatalf("unregistered read = 0x%X, want 0", got)
	}
}

func TestCoprocessorNonzeroOpcode1IsIgnored(t *testing.T) {
	c, _, _ := newTestCoprocessor()
	if got := c.Read(1, 0, 0, 0); got != 0 {
		t.Fatalf("opcode1=1 read = 0x%X, want 0", got)
	}
}
