// driver.go - Top-level machine: owns every component this kernel
// specifies, wires their MMIO registers into the two per-CPU register
// sets, and runs the host loop.
//
// Construction order matters: system bus first, then peripherals, then
// I/O region mapping, then the CPU cores. Goroutines exist only at the
// host boundary (backend startup, the periodic backup flush, the audio
// callback); the simulated machine itself runs on one goroutine.

package main

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// MMIO layout shared by both CPUs' register windows.
const (
	regIME       = 0x000
	regIE        = 0x004
	regIF        = 0x008
	regWRAMCNT   = 0x010
	regTimerBase = 0x020 // 4 channels x 4 bytes
	regIPCSync   = 0x040
	regIPCCnt    = 0x042
	regIPCSend   = 0x044
	regIPCRecv   = 0x048
	regDMABase   = 0x050 // 4 channels x 12 bytes
	regDMAFill   = 0x080 // 16 bytes
	regDISPSTAT  = 0x090
	regVCOUNT    = 0x092
	regSPICNT    = 0x0A0
	regSPIDATA   = 0x0A2
	regKEYINPUT  = 0x0B0
	regEXTKEYIN  = 0x0B2 // audio side only
	regAPUBase   = 0x100 // 16 channels x 4 bytes (audio side only)

	mmioWindowSize = 0x200
)

// backupFlushInterval is how often the backup file is written to disk
// while dirty; a final flush also runs at shutdown.
const backupFlushInterval = 5 * time.Second

// Machine owns the whole simulated system: scheduler, memory fabric, both
// CPU cores, every hardware block between them, and the host device
// backends the simulation drives each frame.
type Machine struct {
	scheduler *Scheduler
	fabric    *MemoryFabric

	mainIRQ  *IRQController
	audioIRQ *IRQController

	mainTimers  *TimerBank
	audioTimers *TimerBank

	mainDMA  *DMAEngine
	audioDMA *DMAEngine

	display *DisplayTiming
	apu     *APUMixer
	ipc     *IPCUnit
	spi     *SPIBus
	coproc  *Coprocessor
	backup  *BackupFile

	mainCore  *CPUCore
	audioCore *CPUCore

	video VideoDevice
	audio AudioDevice
	input InputDevice

	logger *log.Logger

	backupStop chan struct{}
}

// NewMachine constructs every component, wires their MMIO registers into
// the main/audio register sets, and returns a Machine ready for
// LoadCartridge and Run. A missing backup file at backupPath starts as an
// empty buffer; nothing is written there until the first flush of
// modified data.
func NewMachine(backupPath string, video VideoDevice, audio AudioDevice, input InputDevice, logger *log.Logger) (*Machine, error) {
	if logger == nil {
		logger = log.Default()
	}

	backup, err := NewBackupFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("machine: %w", err)
	}

	sched := NewScheduler()
	fabric := NewMemoryFabric(logger)

	mainIRQ := NewIRQController()
	audioIRQ := NewIRQController()

	mainTimers := NewTimerBank(sched, mainIRQ)
	audioTimers := NewTimerBank(sched, audioIRQ)

	mainDMA := NewDMAEngine(MainDMABus{Fabric: fabric}, mainIRQ)
	audioDMA := NewDMAEngine(AudioDMABus{Fabric: fabric}, audioIRQ)

	// No rasterizer is wired in; the timing state machine runs with no
	// PixelProcessor attached on either side.
	display := NewDisplayTiming(sched, mainIRQ, audioIRQ, mainDMA, audioDMA, nil, nil)

	apu := NewAPUMixer(sched)
	ipc := NewIPCUnit(mainIRQ, audioIRQ)

	// The power-management, firmware, and touchscreen device state
	// machines live outside this kernel; only the save-backup chip is
	// wired, into the bus's fourth (reserved) slot.
	spi := NewSPIBus(nil, nil, nil, NewBackupSPIDevice(backup))

	mainRegs := NewRegisterSet("main", mmioWindowSize)
	audioRegs := NewRegisterSet("audio", mmioWindowSize)

	mapSharedRegisters(mainRegs, mainIRQ, mainTimers, mainDMA, fabric, display.MainDISPSTAT(), display)
	mapSharedRegisters(audioRegs, audioIRQ, audioTimers, audioDMA, fabric, display.AudioDISPSTAT(), display)

	mainRegs.Map(regIPCSync, IPCSyncRegister{unit: ipc, client: IPCClientA})
	mainRegs.Map(regIPCCnt, IPCFIFOCntRegister{unit: ipc, client: IPCClientA})
	mainRegs.MapWide(regIPCSend, IPCFIFOSendRegister{unit: ipc, client: IPCClientA})
	mainRegs.MapWide(regIPCRecv, IPCFIFORecvRegister{unit: ipc, client: IPCClientA})

	audioRegs.Map(regIPCSync, IPCSyncRegister{unit: ipc, client: IPCClientB})
	audioRegs.Map(regIPCCnt, IPCFIFOCntRegister{unit: ipc, client: IPCClientB})
	audioRegs.MapWide(regIPCSend, IPCFIFOSendRegister{unit: ipc, client: IPCClientB})
	audioRegs.MapWide(regIPCRecv, IPCFIFORecvRegister{unit: ipc, client: IPCClientB})

	// The SPI bus and the APU mixer are single shared units; there is no
	// separate main/audio SPI, and mixing is driven from the audio side
	// only.
	mainRegs.Map(regSPICNT, SPIControlRegister{Bus: spi})
	mainRegs.Map(regSPIDATA, SPIDataRegister{Bus: spi})

	// Both CPUs poll the primary key matrix; the extended X/Y/pen register
	// sits on the audio side, which owns the touchscreen's SPI link.
	mainRegs.Map(regKEYINPUT, KeyInputRegister{Input: input})
	audioRegs.Map(regKEYINPUT, KeyInputRegister{Input: input})
	audioRegs.Map(regEXTKEYIN, ExtKeyInputRegister{Input: input})

	for ch := 0; ch < 16; ch++ {
		audioRegs.Map(regAPUBase+ch*4, APUChannelRegister{mixer: apu, chanID: ch})
	}

	fabric.AttachMMIO(mainRegs, audioRegs)

	mainCore := NewCPUCore("main", MainCPUBus{Fabric: fabric}, mainIRQ, NullDecoder{}, true)
	audioCore := NewCPUCore("audio", AudioCPUBus{Fabric: fabric}, audioIRQ, NullDecoder{}, false)

	// The system-control coprocessor belongs to the main, ARMv5-class
	// core only. It is never MMIO-mapped - MRC/MCR opcodes reach it
	// through the main core's Decoder, not through mainRegs.
	coproc := NewCoprocessor(fabric, mainCore)

	return &Machine{
		scheduler:   sched,
		fabric:      fabric,
		mainIRQ:     mainIRQ,
		audioIRQ:    audioIRQ,
		mainTimers:  mainTimers,
		audioTimers: audioTimers,
		mainDMA:     mainDMA,
		audioDMA:    audioDMA,
		display:     display,
		apu:         apu,
		ipc:         ipc,
		spi:         spi,
		coproc:      coproc,
		backup:      backup,
		mainCore:    mainCore,
		audioCore:   audioCore,
		video:       video,
		audio:       audio,
		input:       input,
		logger:      logger,
	}, nil
}

// mapSharedRegisters maps the per-CPU register block every CPU has one
// copy of: IME/IE/IF, WRAMCNT, the four timer channels, and the four DMA
// channels plus fill scratch, plus this side's DISPSTAT/VCOUNT view.
func mapSharedRegisters(regs *RegisterSet, irq *IRQController, timers *TimerBank, dma *DMAEngine, fabric *MemoryFabric, dispstat ByteRegister, display *DisplayTiming) {
	regs.Map(regIME, IMERegister{ctl: irq})
	regs.Map(regIE, IERegister{ctl: irq})
	regs.Map(regIF, IFRegister{ctl: irq})
	regs.Map(regWRAMCNT, WRAMControlRegister{Fabric: fabric})

	for ch := 0; ch < 4; ch++ {
		regs.Map(regTimerBase+ch*4, TimerChannelRegister{bank: timers, chanID: ch})
	}
	for ch := 0; ch < 4; ch++ {
		regs.Map(regDMABase+ch*12, DMAChannelRegister{engine: dma, chanID: ch})
	}
	regs.Map(regDMAFill, DMAFillRegister{engine: dma})

	regs.Map(regDISPSTAT, dispstat)
	regs.Map(regVCOUNT, VCountRegister{Timing: display})
}

// LoadCartridge opens the cartridge image at path and copies both CPUs'
// binaries into place.
func (m *Machine) LoadCartridge(path string) (CartridgeHeader, error) {
	return LoadCartridge(path, m.mainCore, m.audioCore)
}

// Start brings up the host device backends concurrently via errgroup (so
// a slow or failing backend doesn't serialize startup behind the others)
// and starts the periodic backup-file flush goroutine. Opening the audio
// device here rather than in main keeps the callback wiring
// (fillAudioBlock into the mixer's ring buffer) inside the machine.
func (m *Machine) Start() error {
	var g errgroup.Group
	g.Go(m.video.Start)
	g.Go(func() error {
		return m.audio.Open(audioSampleRate, audioBlockSize, m.fillAudioBlock)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("machine: starting host backends: %w", err)
	}

	m.backupStop = make(chan struct{})
	m.backup.StartPeriodicFlush(backupFlushInterval, m.backupStop)
	return nil
}

// Close shuts down the backup flush goroutine (flushing one last time),
// then closes whichever device backends support it.
func (m *Machine) Close() error {
	if m.backupStop != nil {
		close(m.backupStop)
		m.backupStop = nil
	}

	var firstErr error
	if m.video != nil {
		if err := m.video.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.audio != nil {
		if err := m.audio.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if closer, ok := m.input.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fillAudioBlock implements AudioCallback by draining one stereo sample
// at a time from the APU mixer's ring buffer and converting it to signed
// 16-bit PCM.
func (m *Machine) fillAudioBlock(stereo []int16) {
	for i := 0; i+1 < len(stereo); i += 2 {
		left, right := m.apu.ReadStereoSample()
		stereo[i] = int16(clampSample(left) * 32767)
		stereo[i+1] = int16(clampSample(right) * 32767)
	}
}

func clampSample(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// mainAudioCycleRatio is how many main-CPU cycles equal one audio-CPU
// cycle: the main core runs at roughly twice the audio core's clock
// (~66 MHz vs ~33 MHz).
const mainAudioCycleRatio = 2

// Run executes the simulation for cycleBudget main-CPU cycles, advancing
// the audio core at its slower rate and the scheduler in lockstep with
// the main core. Both cores and every scheduled event run on this one
// goroutine.
func (m *Machine) Run(cycleBudget uint64) {
	var executed uint64
	var audioDebt int

	for executed < cycleBudget {
		// With both cores parked in WFI, nothing can change until the next
		// scheduled event, so jump straight to it instead of spinning.
		if m.mainCore.Halted() && m.audioCore.Halted() {
			skip := uint64(1)
			if next := m.scheduler.NextTimestamp(); next > m.scheduler.Now() && next != ^uint64(0) {
				skip = next - m.scheduler.Now()
			}
			if remaining := cycleBudget - executed; skip > remaining {
				skip = remaining
			}
			m.scheduler.AddCycles(skip)
			m.scheduler.Step()
			executed += skip
			continue
		}

		mainCycles := m.mainCore.Step()
		if mainCycles <= 0 {
			mainCycles = 1
		}

		audioDebt += mainCycles
		for audioDebt >= mainAudioCycleRatio {
			audioCycles := m.audioCore.Step()
			if audioCycles <= 0 {
				audioCycles = 1
			}
			audioDebt -= mainAudioCycleRatio * audioCycles
		}

		m.scheduler.AddCycles(uint64(mainCycles))
		m.scheduler.Step()
		executed += uint64(mainCycles)
	}
}
