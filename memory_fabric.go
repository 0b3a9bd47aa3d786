// memory_fabric.go - Per-CPU address decoding and the shared memory map.
//
// The memory fabric is the sole path between the two CPUs and every other
// component: RAM, shared WRAM, VRAM, and the MMIO registry are all reached
// through it. The main CPU's decoder checks the TCM windows before the
// general address map; region selection then keys off the address's high
// byte.

package main

import (
	"log"
	"sync"
)

const (
	mainRAMSize    = 4 * 1024 * 1024 // main CPU / audio CPU shared main RAM
	mainRAMMask    = mainRAMSize - 1
	sharedWRAMSize = 32 * 1024
	sharedWRAMMask = sharedWRAMSize - 1
	audioIRAMSize  = 64 * 1024
	audioIRAMMask  = audioIRAMSize - 1
	mainVRAMSize   = 2 * 1024 * 1024
	mainVRAMMask   = mainVRAMSize - 1

	itcmDefaultSize = 0x8000
	dtcmDefaultSize = 0x4000
)

// Bus identifies the kind of access a memory request is made over. It
// gates TCM visibility (D-TCM only answers the data bus) and is forwarded
// to region handlers that care.
type Bus int

const (
	BusCode Bus = iota
	BusData
	BusSystem
)

// wramSplit enumerates the four valid shared-WRAM partitions; the two-bit
// WRAMCNT control register value selects one of these directly.
type wramSplit int

const (
	wramSplitAllAudio wramSplit = 0 // 32 KiB to audio CPU, none to main
	wramSplitMainLow  wramSplit = 1 // main gets the low half, audio the high
	wramSplitMainHigh wramSplit = 2 // main gets the high half, audio the low
	wramSplitAllMain  wramSplit = 3 // 32 KiB to main CPU, none to audio
)

// wramView is one CPU's window into the shared store: a slice into the
// backing buffer plus the mask used to wrap offsets within it. A nil Data
// slice means "unmapped": reads return zero and log, writes are dropped
// and logged.
type wramView struct {
	Data []byte
	Mask uint32
}

func (v wramView) empty() bool { return v.Data == nil }

// MemoryFabric is both CPUs' address decoder and every backing store
// behind it; the MMIO registries for each CPU are wired in by the driver
// after construction.
type MemoryFabric struct {
	// mu guards the reprogrammable routing state only (TCM descriptors,
	// WRAM split, attached registries). The backing stores are touched
	// solely from the simulation thread and need no lock; holding mu
	// across MMIO dispatch would deadlock on re-entrant fabric access.
	mu sync.RWMutex

	mainRAM     [mainRAMSize]byte
	sharedWRAM  [sharedWRAMSize]byte
	wramControl uint8
	audioIRAM   [audioIRAMSize]byte
	mainVRAM    [mainVRAMSize]byte

	itcm     TCMConfig
	dtcm     TCMConfig
	itcmData [itcmDefaultSize]byte
	dtcmData [dtcmDefaultSize]byte

	mainMMIO  *RegisterSet
	audioMMIO *RegisterSet

	logger *log.Logger
}

// NewMemoryFabric returns a fabric with both TCMs enabled and readable at
// fixed windows (ITCM 0x00000000-0x00007FFF, DTCM 0x00800000-0x00803FFF)
// and the shared WRAM split at 0 (all of it to the audio CPU). These are
// not the windows Coprocessor.Reset programs; a coprocessor wired to the
// fabric pushes its own descriptors over them.
func NewMemoryFabric(logger *log.Logger) *MemoryFabric {
	f := &MemoryFabric{logger: logger}
	f.itcm = TCMConfig{Enable: true, EnableRead: true, Base: 0, Limit: 0x7FFF}
	f.dtcm = TCMConfig{Enable: true, EnableRead: true, Base: 0x00800000, Limit: 0x00803FFF}
	return f
}

// AttachMMIO wires each CPU's MMIO register set in after both have been
// built by the driver; the fabric only ever forwards through these, never
// constructs them.
func (f *MemoryFabric) AttachMMIO(main, audio *RegisterSet) {
	f.mainMMIO = main
	f.audioMMIO = audio
}

// SetDTCM and SetITCM implement TCMConfigTarget: the coprocessor pushes a
// new descriptor whenever it reprograms a TCM; the fabric never reaches
// back, keeping the wiring one-directional.
func (f *MemoryFabric) SetDTCM(cfg TCMConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dtcm = cfg
}

func (f *MemoryFabric) SetITCM(cfg TCMConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itcm = cfg
}

// SetWRAMControl writes the 2-bit shared-WRAM split register (WRAMCNT).
func (f *MemoryFabric) SetWRAMControl(value uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wramControl = value & 3
}

func (f *MemoryFabric) WRAMControl() uint8 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.wramControl
}

// mainWRAMView and audioWRAMView implement the four-way split. The two
// views' backing bytes, deduplicated by address, always cover exactly the
// 32 KiB store - no byte is lost or owned twice.
func (f *MemoryFabric) mainWRAMView() wramView {
	switch wramSplit(f.wramControl) {
	case wramSplitAllAudio:
		return wramView{}
	case wramSplitMainLow:
		return wramView{Data: f.sharedWRAM[:sharedWRAMSize/2], Mask: sharedWRAMSize/2 - 1}
	case wramSplitMainHigh:
		return wramView{Data: f.sharedWRAM[sharedWRAMSize/2:], Mask: sharedWRAMSize/2 - 1}
	case wramSplitAllMain:
		return wramView{Data: f.sharedWRAM[:], Mask: sharedWRAMMask}
	}
	return wramView{}
}

func (f *MemoryFabric) audioWRAMView() wramView {
	switch wramSplit(f.wramControl) {
	case wramSplitAllAudio:
		return wramView{Data: f.sharedWRAM[:], Mask: sharedWRAMMask}
	case wramSplitMainLow:
		return wramView{Data: f.sharedWRAM[sharedWRAMSize/2:], Mask: sharedWRAMSize/2 - 1}
	case wramSplitMainHigh:
		return wramView{Data: f.sharedWRAM[:sharedWRAMSize/2], Mask: sharedWRAMSize/2 - 1}
	case wramSplitAllMain:
		return wramView{}
	}
	return wramView{}
}

// --- Main CPU decode ---

// mainRouting is the snapshot of reprogrammable routing state one access
// decodes against. It is read under the mutex and then used lock-free:
// MMIO dispatch must never run with the fabric mutex held, because
// register side effects (WRAMCNT rewrites, immediate DMA transfers) call
// straight back into the fabric.
type mainRouting struct {
	itcm TCMConfig
	dtcm TCMConfig
	wram wramView
	mmio *RegisterSet
}

func (f *MemoryFabric) snapshotMainRouting() mainRouting {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return mainRouting{itcm: f.itcm, dtcm: f.dtcm, wram: f.mainWRAMView(), mmio: f.mainMMIO}
}

func tcmCovers(cfg TCMConfig, addr uint32) bool {
	return cfg.Enable && addr >= cfg.Base && addr <= cfg.Limit
}

// ReadByteMain reads one byte through the main CPU's address decoder. TCM
// windows are checked before the general address map, I-TCM before D-TCM.
// A TCM whose reads are disabled (write-only per the control register)
// does not match on the read path and the access falls through to the
// general map, so writes still land in the TCM while reads see whatever
// sits underneath.
func (f *MemoryFabric) ReadByteMain(addr uint32, bus Bus) uint8 {
	rt := f.snapshotMainRouting()

	if tcmCovers(rt.itcm, addr) && rt.itcm.EnableRead {
		return f.itcmData[(addr-rt.itcm.Base)&(itcmDefaultSize-1)]
	}
	if bus == BusData && tcmCovers(rt.dtcm, addr) && rt.dtcm.EnableRead {
		return f.dtcmData[(addr-rt.dtcm.Base)&(dtcmDefaultSize-1)]
	}

	switch addr >> 24 {
	case 0x02:
		return f.mainRAM[addr&mainRAMMask]
	case 0x03:
		if rt.wram.empty() {
			log.Printf("warn: fabric(main): read from unmapped shared WRAM at 0x%08X", addr)
			return 0
		}
		return rt.wram.Data[addr&rt.wram.Mask]
	case 0x04:
		if rt.mmio == nil {
			log.Printf("warn: fabric(main): MMIO read before registry attached at 0x%08X", addr)
			return 0
		}
		return rt.mmio.Read(int(addr & 0x00FFFFFF))
	case 0x06:
		return f.mainVRAM[addr&mainVRAMMask]
	}

	log.Printf("warn: fabric(main): read from unmapped address 0x%08X", addr)
	return 0
}

// WriteByteMain writes one byte through the main CPU's address decoder.
// TCM writes are always accepted while the TCM is enabled, regardless of
// its read visibility.
func (f *MemoryFabric) WriteByteMain(addr uint32, value uint8, bus Bus) {
	rt := f.snapshotMainRouting()

	if tcmCovers(rt.itcm, addr) {
		f.itcmData[(addr-rt.itcm.Base)&(itcmDefaultSize-1)] = value
		return
	}
	if bus == BusData && tcmCovers(rt.dtcm, addr) {
		f.dtcmData[(addr-rt.dtcm.Base)&(dtcmDefaultSize-1)] = value
		return
	}

	switch addr >> 24 {
	case 0x02:
		f.mainRAM[addr&mainRAMMask] = value
	case 0x03:
		if rt.wram.empty() {
			log.Printf("warn: fabric(main): write to unmapped shared WRAM at 0x%08X", addr)
			return
		}
		rt.wram.Data[addr&rt.wram.Mask] = value
	case 0x04:
		if rt.mmio == nil {
			log.Printf("warn: fabric(main): MMIO write before registry attached at 0x%08X", addr)
			return
		}
		rt.mmio.Write(int(addr&0x00FFFFFF), value)
	case 0x06:
		f.mainVRAM[addr&mainVRAMMask] = value
	default:
		log.Printf("warn: fabric(main): write to unmapped address 0x%08X = 0x%02X", addr, value)
	}
}

// --- Audio CPU decode ---

func (f *MemoryFabric) snapshotAudioRouting() (wramView, *RegisterSet) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.audioWRAMView(), f.audioMMIO
}

// ReadByteAudio reads one byte through the audio CPU's address decoder:
// private internal RAM, the shared-WRAM view, MMIO, and main RAM - no TCMs.
func (f *MemoryFabric) ReadByteAudio(addr uint32) uint8 {
	wram, mmio := f.snapshotAudioRouting()

	switch addr >> 24 {
	case 0x02:
		return f.mainRAM[addr&mainRAMMask]
	case 0x03:
		if addr&0x00800000 != 0 {
			return f.audioIRAM[addr&audioIRAMMask]
		}
		if wram.empty() {
			log.Printf("warn: fabric(audio): read from unmapped shared WRAM at 0x%08X", addr)
			return 0
		}
		return wram.Data[addr&wram.Mask]
	case 0x04:
		if mmio == nil {
			log.Printf("warn: fabric(audio): MMIO read before registry attached at 0x%08X", addr)
			return 0
		}
		return mmio.Read(int(addr & 0x00FFFFFF))
	}

	log.Printf("warn: fabric(audio): read from unmapped address 0x%08X", addr)
	return 0
}

// WriteByteAudio writes one byte through the audio CPU's address decoder.
func (f *MemoryFabric) WriteByteAudio(addr uint32, value uint8) {
	wram, mmio := f.snapshotAudioRouting()

	switch addr >> 24 {
	case 0x02:
		f.mainRAM[addr&mainRAMMask] = value
	case 0x03:
		if addr&0x00800000 != 0 {
			f.audioIRAM[addr&audioIRAMMask] = value
			return
		}
		if wram.empty() {
			log.Printf("warn: fabric(audio): write to unmapped shared WRAM at 0x%08X", addr)
			return
		}
		wram.Data[addr&wram.Mask] = value
	case 0x04:
		if mmio == nil {
			log.Printf("warn: fabric(audio): MMIO write before registry attached at 0x%08X", addr)
			return
		}
		mmio.Write(int(addr&0x00FFFFFF), value)
	default:
		log.Printf("warn: fabric(audio): write to unmapped address 0x%08X = 0x%02X", addr, value)
	}
}

// --- Unaligned-access helpers shared by both CPUs ---
//
// Halfword/word reads of a misaligned address rotate the aligned value
// (the platform convention for a word/half load whose address isn't
// naturally aligned); writes force the low address bits to zero instead.
// Byte access never rotates.

func rotateRight32(v uint32, bits uint) uint32 {
	bits &= 31
	if bits == 0 {
		return v
	}
	return (v >> bits) | (v << (32 - bits))
}

func rotateRight16(v uint16, bits uint) uint16 {
	bits &= 15
	if bits == 0 {
		return v
	}
	return (v >> bits) | (v << (16 - bits))
}

// ReadHalfMain/ReadWordMain/WriteHalfMain/WriteWordMain and their Audio
// counterparts compose the byte-granular decode above into the wider
// accesses the CPU core and DMA engine need.

func (f *MemoryFabric) ReadHalfMain(addr uint32, bus Bus) uint16 {
	aligned := addr &^ 1
	raw := uint16(f.ReadByteMain(aligned, bus)) | uint16(f.ReadByteMain(aligned+1, bus))<<8
	return rotateRight16(raw, uint(addr&1)*8)
}

func (f *MemoryFabric) ReadWordMain(addr uint32, bus Bus) uint32 {
	aligned := addr &^ 3
	lo := uint32(f.ReadByteMain(aligned, bus))
	b1 := uint32(f.ReadByteMain(aligned+1, bus))
	b2 := uint32(f.ReadByteMain(aligned+2, bus))
	b3 := uint32(f.ReadByteMain(aligned+3, bus))
	word := lo | b1<<8 | b2<<16 | b3<<24
	return rotateRight32(word, uint(addr&3)*8)
}

func (f *MemoryFabric) WriteHalfMain(addr uint32, value uint16, bus Bus) {
	aligned := addr &^ 1
	f.WriteByteMain(aligned, uint8(value), bus)
	f.WriteByteMain(aligned+1, uint8(value>>8), bus)
}

func (f *MemoryFabric) WriteWordMain(addr uint32, value uint32, bus Bus) {
	aligned := addr &^ 3
	f.WriteByteMain(aligned, uint8(value), bus)
	f.WriteByteMain(aligned+1, uint8(value>>8), bus)
	f.WriteByteMain(aligned+2, uint8(value>>16), bus)
	f.WriteByteMain(aligned+3, uint8(value>>24), bus)
}

func (f *MemoryFabric) ReadHalfAudio(addr uint32) uint16 {
	aligned := addr &^ 1
	raw := uint16(f.ReadByteAudio(aligned)) | uint16(f.ReadByteAudio(aligned+1))<<8
	return rotateRight16(raw, uint(addr&1)*8)
}

func (f *MemoryFabric) ReadWordAudio(addr uint32) uint32 {
	aligned := addr &^ 3
	lo := uint32(f.ReadByteAudio(aligned))
	b1 := uint32(f.ReadByteAudio(aligned + 1))
	b2 := uint32(f.ReadByteAudio(aligned + 2))
	b3 := uint32(f.ReadByteAudio(aligned + 3))
	word := lo | b1<<8 | b2<<16 | b3<<24
	return rotateRight32(word, uint(addr&3)*8)
}

func (f *MemoryFabric) WriteHalfAudio(addr uint32, value uint16) {
	aligned := addr &^ 1
	f.WriteByteAudio(aligned, uint8(value))
	f.WriteByteAudio(aligned+1, uint8(value>>8))
}

func (f *MemoryFabric) WriteWordAudio(addr uint32, value uint32) {
	aligned := addr &^ 3
	f.WriteByteAudio(aligned, uint8(value))
	f.WriteByteAudio(aligned+1, uint8(value>>8))
	f.WriteByteAudio(aligned+2, uint8(value>>16))
	f.WriteByteAudio(aligned+3, uint8(value>>24))
}

// --- DMABus adapters (used by the per-CPU DMA engines) ---

// MainDMABus adapts the fabric to DMABus for the main CPU's DMA engine.
// DMA always transfers over the data bus.
type MainDMABus struct{ Fabric *MemoryFabric }

func (b MainDMABus) ReadHalf(addr uint32) uint16         { return b.Fabric.ReadHalfMain(addr, BusData) }
func (b MainDMABus) WriteHalf(addr uint32, value uint16) { b.Fabric.WriteHalfMain(addr, value, BusData) }
func (b MainDMABus) ReadWord(addr uint32) uint32         { return b.Fabric.ReadWordMain(addr, BusData) }
func (b MainDMABus) WriteWord(addr uint32, value uint32) { b.Fabric.WriteWordMain(addr, value, BusData) }

// AudioDMABus adapts the fabric to DMABus for the audio CPU's DMA engine.
type AudioDMABus struct{ Fabric *MemoryFabric }

func (b AudioDMABus) ReadHalf(addr uint32) uint16         { return b.Fabric.ReadHalfAudio(addr) }
func (b AudioDMABus) WriteHalf(addr uint32, value uint16) { b.Fabric.WriteHalfAudio(addr, value) }
func (b AudioDMABus) ReadWord(addr uint32) uint32         { return b.Fabric.ReadWordAudio(addr) }
func (b AudioDMABus) WriteWord(addr uint32, value uint32) { b.Fabric.WriteWordAudio(addr, value) }

// --- CPUBus adapters (used by cpu_core.go) ---

// MainCPUBus adapts the fabric to CPUBus for the main CPU core, passing the
// access's bus tag straight through so TCM visibility keeps working.
type MainCPUBus struct{ Fabric *MemoryFabric }

func (b MainCPUBus) ReadByte(addr uint32, bus Bus) uint8           { return b.Fabric.ReadByteMain(addr, bus) }
func (b MainCPUBus) WriteByte(addr uint32, value uint8, bus Bus)   { b.Fabric.WriteByteMain(addr, value, bus) }
func (b MainCPUBus) ReadHalf(addr uint32, bus Bus) uint16          { return b.Fabric.ReadHalfMain(addr, bus) }
func (b MainCPUBus) WriteHalf(addr uint32, value uint16, bus Bus)  { b.Fabric.WriteHalfMain(addr, value, bus) }
func (b MainCPUBus) ReadWord(addr uint32, bus Bus) uint32          { return b.Fabric.ReadWordMain(addr, bus) }
func (b MainCPUBus) WriteWord(addr uint32, value uint32, bus Bus)  { b.Fabric.WriteWordMain(addr, value, bus) }

// AudioCPUBus adapts the fabric to CPUBus for the audio CPU core. The audio
// decode path has no TCMs, so the bus tag is accepted (to satisfy the
// interface) and otherwise ignored.
type AudioCPUBus struct{ Fabric *MemoryFabric }

func (b AudioCPUBus) ReadByte(addr uint32, _ Bus) uint8          { return b.Fabric.ReadByteAudio(addr) }
func (b AudioCPUBus) WriteByte(addr uint32, value uint8, _ Bus)  { b.Fabric.WriteByteAudio(addr, value) }
func (b AudioCPUBus) ReadHalf(addr uint32, _ Bus) uint16         { return b.Fabric.ReadHalfAudio(addr) }
func (b AudioCPUBus) WriteHalf(addr uint32, value uint16, _ Bus) { b.Fabric.WriteHalfAudio(addr, value) }
func (b AudioCPUBus) ReadWord(addr uint32, _ Bus) uint32         { return b.Fabric.ReadWordAudio(addr) }
func (b AudioCPUBus) WriteWord(addr uint32, value uint32, _ Bus) { b.Fabric.WriteWordAudio(addr, value) }

// --- WRAMCNT MMIO adapter ---

// WRAMControlRegister adapts the shared-WRAM split register to
// ByteRegister. It is mapped into both CPUs' MMIO windows at the same
// offset since either side may reprogram the split.
type WRAMControlRegister struct{ Fabric *MemoryFabric }

func (r WRAMControlRegister) ReadByte(offset int) uint8 { return r.Fabric.WRAMControl() }
func (r WRAMControlRegister) WriteByte(offset int, value uint8) {
	r.Fabric.SetWRAMControl(value)
}
func (r WRAMControlRegister) Width() int { return 1 }
