// cpu_core.go - Shared ARM-class CPU core state machine.
//
// Instruction decode/execute lives behind the injected Decoder; this file
// owns the rest of the core: banked general registers, the program-status
// word and its saved-per-bank copies, the two-stage fetch pipeline and its
// refill on branch/mode-change, the wait-for-interrupt latch, and the IRQ
// exception entry sequence. One CPUCore value serves either the main or
// the audio CPU; they differ only in the Bus/Decoder/exception-base they
// are wired with.

package main

import "log"

// CPUMode is the 5-bit mode field of the program-status word, using the
// real ARM mode encodings so PSW byte values round-trip meaningfully.
type CPUMode uint8

const (
	ModeUser   CPUMode = 0x10
	ModeFIQ    CPUMode = 0x11
	ModeIRQ    CPUMode = 0x12
	ModeSVC    CPUMode = 0x13
	ModeABT    CPUMode = 0x17
	ModeUND    CPUMode = 0x1B
	ModeSystem CPUMode = 0x1F
)

// CPSR bit positions this kernel cares about. Condition flags and the rest
// of the arithmetic-status bits are opaque 32-bit state the decoder
// interprets; the core only needs to read/write the mode, Thumb, and
// interrupt-mask bits to do exception entry and mode switching.
const (
	cpsrModeMask = 0x1F
	cpsrThumbBit = 1 << 5
	cpsrFIQBit   = 1 << 6
	cpsrIRQBit   = 1 << 7
)

// r13r14Bank indexes the six distinct R13/R14 banks: User and System modes
// share one bank (System is privileged User, per real ARM banking); FIQ,
// IRQ, SVC, ABT, and UND each get their own.
func r13r14Bank(mode CPUMode) int {
	switch mode {
	case ModeFIQ:
		return 1
	case ModeIRQ:
		return 2
	case ModeSVC:
		return 3
	case ModeABT:
		return 4
	case ModeUND:
		return 5
	default: // User, System
		return 0
	}
}

// r8to12Bank indexes the two R8-R12 banks: FIQ has its own; every other
// mode (including User/System and the three other privileged modes) shares
// the non-FIQ bank.
func r8to12Bank(mode CPUMode) int {
	if mode == ModeFIQ {
		return 1
	}
	return 0
}

// Decoder is the injected instruction decode/execute engine. It receives
// the instruction word already dequeued from the prefetch pipeline and
// acts on the core through its public accessors
// (GetReg/SetReg/Branch/SwitchMode/bus access).
type Decoder interface {
	Execute(core *CPUCore, instruction uint32) (cycles int)
}

// CPUBus is the memory-side contract a CPU core fetches and the decoder
// accesses data through. MainCPUBus and AudioCPUBus in memory_fabric.go
// adapt MemoryFabric's two CPU-specific decode paths to this one shape.
type CPUBus interface {
	ReadByte(addr uint32, bus Bus) uint8
	WriteByte(addr uint32, value uint8, bus Bus)
	ReadHalf(addr uint32, bus Bus) uint16
	WriteHalf(addr uint32, value uint16, bus Bus)
	ReadWord(addr uint32, bus Bus) uint32
	WriteWord(addr uint32, value uint32, bus Bus)
}

// CPUCore is the per-CPU execution state machine: register banks, PSW,
// prefetch pipeline, WFI latch, and exception entry.
type CPUCore struct {
	name string

	r          [16]uint32 // visible register file; r[15] mirrors pc
	r8to12Bank [2][5]uint32
	r13r14Bank [6][2]uint32
	spsrBank   [6]uint32 // index 0 (User/System) is never read: no SPSR there
	cpsr       uint32
	mode       CPUMode
	pc         uint32

	prefetch      [2]uint32
	prefetchValid bool // false only immediately after Reset, before first Refill

	wfi bool

	exceptionBase uint32
	armv5Thumb    bool // true for the main CPU (Thumb-capable ARMv5-class core)

	bus     CPUBus
	irq     *IRQController
	decoder Decoder
}

// NewCPUCore builds a core wired to its bus, interrupt controller, and
// decoder. armv5Thumb distinguishes the Thumb-capable main core from the
// ARMv4-class audio core.
func NewCPUCore(name string, bus CPUBus, irq *IRQController, decoder Decoder, armv5Thumb bool) *CPUCore {
	c := &CPUCore{name: name, bus: bus, irq: irq, decoder: decoder, armv5Thumb: armv5Thumb}
	c.Reset()
	return c
}

// Reset clears every register bank and enters Supervisor mode with IRQ/FIQ
// masked, the architectural reset state. The pipeline stays invalid until
// the first Refill (LoadEntryPoint or the first Step).
func (c *CPUCore) Reset() {
	c.r = [16]uint32{}
	c.r8to12Bank = [2][5]uint32{}
	c.r13r14Bank = [6][2]uint32{}
	c.spsrBank = [6]uint32{}
	c.mode = ModeSVC
	c.cpsr = uint32(ModeSVC) | cpsrFIQBit | cpsrIRQBit
	c.wfi = false
	c.pc = 0
	c.prefetchValid = false
}

// Halted reports whether the core is parked in wait-for-interrupt with no
// asserted IRQ line to wake it - the state the driver fast-forwards time
// across instead of spinning empty steps.
func (c *CPUCore) Halted() bool {
	return c.wfi && !(c.irq != nil && c.irq.Line())
}

// LoadEntryPoint sets the program counter to entry and refills the
// pipeline - used by the cartridge loader once a binary is copied into
// the core's address space.
func (c *CPUCore) LoadEntryPoint(entry uint32) {
	c.Refill(entry)
}

// --- CPSR / mode accessors ---

func (c *CPUCore) Thumb() bool     { return c.cpsr&cpsrThumbBit != 0 }
func (c *CPUCore) IRQMasked() bool { return c.cpsr&cpsrIRQBit != 0 }
func (c *CPUCore) Mode() CPUMode   { return c.mode }

// SetIRQMasked writes the CPSR's I bit directly - what an MSR CPSR_c
// instruction does to unmask interrupts after reset, which otherwise
// leaves IRQ (and FIQ) disabled per the architectural reset state.
func (c *CPUCore) SetIRQMasked(masked bool) {
	if masked {
		c.cpsr |= cpsrIRQBit
	} else {
		c.cpsr &^= cpsrIRQBit
	}
}

// SetThumb flips the Thumb-state bit. Changing instruction sets always
// accompanies a Branch to the interworking target in real use; this method
// alone does not refill the pipeline.
func (c *CPUCore) SetThumb(thumb bool) {
	if thumb && !c.armv5Thumb {
		log.Printf("warn: cpu(%s): thumb state requested on a non-thumb core", c.name)
	}
	if thumb {
		c.cpsr |= cpsrThumbBit
	} else {
		c.cpsr &^= cpsrThumbBit
	}
}

func (c *CPUCore) instrSize() uint32 {
	if c.Thumb() {
		return 2
	}
	return 4
}

// SwitchMode rebanks the general registers for newMode. Exactly one bank
// is live at a time, switching to the same mode is a no-op, and R13/R14
// always mirror the live bank. R8-R12 only rebank when crossing the
// FIQ/non-FIQ boundary; R13-R14 rebank on every distinct mode.
func (c *CPUCore) SwitchMode(newMode CPUMode) {
	if newMode == c.mode {
		return
	}

	oldR8to12 := r8to12Bank(c.mode)
	newR8to12 := r8to12Bank(newMode)
	if oldR8to12 != newR8to12 {
		for i := 0; i < 5; i++ {
			c.r8to12Bank[oldR8to12][i] = c.r[8+i]
		}
		for i := 0; i < 5; i++ {
			c.r[8+i] = c.r8to12Bank[newR8to12][i]
		}
	}

	oldR13R14 := r13r14Bank(c.mode)
	newR13R14 := r13r14Bank(newMode)
	c.r13r14Bank[oldR13R14][0] = c.r[13]
	c.r13r14Bank[oldR13R14][1] = c.r[14]
	c.r[13] = c.r13r14Bank[newR13R14][0]
	c.r[14] = c.r13r14Bank[newR13R14][1]

	c.mode = newMode
	c.cpsr = (c.cpsr &^ cpsrModeMask) | uint32(newMode)
}

// SPSR returns the saved PSW cell for the current bank (undefined/zero in
// User or System mode, which have none).
func (c *CPUCore) SPSR() uint32 { return c.spsrBank[r13r14Bank(c.mode)] }

// SetSPSR writes the saved PSW cell for the current bank.
func (c *CPUCore) SetSPSR(value uint32) { c.spsrBank[r13r14Bank(c.mode)] = value }

// --- General register access for the decoder ---

// GetReg reads R0-R14 directly, or the pipeline-adjusted PC for R15.
func (c *CPUCore) GetReg(n int) uint32 {
	if n == 15 {
		return c.pc
	}
	return c.r[n]
}

// SetReg writes R0-R14 directly. Writing R15 is a branch and must go
// through Branch instead, so n==15 is rejected here by panicking - a
// decoder bug, not a guest-triggerable condition.
func (c *CPUCore) SetReg(n int, value uint32) {
	if n == 15 {
		log.Panicf("cpu(%s): SetReg(15, ...) - use Branch instead", c.name)
	}
	c.r[n] = value
}

// WriteByte writes directly through the core's bus. The cartridge loader
// uses this to place a binary into the CPU's address space before the
// core has executed anything.
func (c *CPUCore) WriteByte(addr uint32, value uint8, bus Bus) { c.bus.WriteByte(addr, value, bus) }

// PC returns the pipeline-adjusted program counter value instructions
// observe when they read R15 (instruction address + 8 in ARM state, +4 in
// Thumb state).
func (c *CPUCore) PC() uint32 { return c.pc }

// --- Pipeline ---

func (c *CPUCore) fetch(addr uint32) uint32 {
	if c.Thumb() {
		return uint32(c.bus.ReadHalf(addr, BusCode))
	}
	return c.bus.ReadWord(addr, BusCode)
}

// Refill re-fills both prefetch slots from target and repositions pc to
// the pipeline-ahead value the decoder sees as R15 (target+8 in ARM state,
// target+4 in Thumb state). Branches, R15 writes, and mode/state changes
// that affect the fetch stream all call this.
func (c *CPUCore) Refill(target uint32) {
	size := c.instrSize()
	c.prefetch[0] = c.fetch(target)
	c.prefetch[1] = c.fetch(target + size)
	c.pc = target + 2*size
	c.r[15] = c.pc
	c.prefetchValid = true
}

// Branch is how the decoder performs any control-flow change. A plain
// write to R15 is a branch too, and goes through here so the pipeline
// refills.
func (c *CPUCore) Branch(target uint32) { c.Refill(target) }

// WaitForIRQ implements CoprocessorHost: it latches the WFI state the
// coprocessor's "(7,0,4)"/"(7,8,2)" opcodes request.
func (c *CPUCore) WaitForIRQ() { c.wfi = true }

// ClearICache and ClearICacheRange implement CoprocessorHost. This kernel
// has no JIT code cache to invalidate, so both are logged no-ops.
func (c *CPUCore) ClearICache() {
	log.Printf("cpu(%s): instruction cache invalidate requested (no-op, no code cache)", c.name)
}

func (c *CPUCore) ClearICacheRange(lo, hi uint32) {
	log.Printf("cpu(%s): instruction cache invalidate [0x%08X,0x%08X] requested (no-op)", c.name, lo, hi)
}

// --- Step ---

// Step executes at most one instruction (or services the WFI/IRQ states)
// and returns the number of cycles the decoder reports spending, or 0
// when the core didn't advance (WFI or the caller should just advance
// time).
func (c *CPUCore) Step() int {
	irqAsserted := c.irq != nil && c.irq.Line()

	if c.wfi && !irqAsserted {
		return 0
	}
	c.wfi = false

	if irqAsserted && !c.IRQMasked() {
		c.enterIRQException()
		return 0
	}

	if !c.prefetchValid {
		c.Refill(c.pc)
	}

	instr := c.prefetch[0]
	c.prefetch[0] = c.prefetch[1]
	c.prefetch[1] = c.fetch(c.pc)
	c.pc += c.instrSize()
	c.r[15] = c.pc

	return c.decoder.Execute(c, instr)
}

// enterIRQException banks to IRQ mode, saves the old PSW to SPSR_irq,
// saves a resume address to LR, masks IRQ, forces ARM state, and refills
// at exception_base+0x18.
func (c *CPUCore) enterIRQException() {
	resumeThumb := c.Thumb()
	resumeAddr := c.pc
	if !resumeThumb {
		resumeAddr -= 4
	}

	savedCPSR := c.cpsr
	c.SwitchMode(ModeIRQ)
	c.SetSPSR(savedCPSR)
	c.r[14] = resumeAddr

	c.cpsr |= cpsrIRQBit
	c.SetThumb(false)

	c.Refill(c.exceptionBase + 0x18)
}

// SetExceptionBase configures where exceptions vector to - 0 or the
// high-vector base, selected by the system control coprocessor's control
// register bit 13.
func (c *CPUCore) SetExceptionBase(base uint32) { c.exceptionBase = base }
