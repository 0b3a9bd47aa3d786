// ipc_unit.go - Inter-processor communication: sync nibble + dual FIFOs.
//
// The IPC unit is the only channel the two CPU cores use to talk to each
// other: a 4-bit handshake nibble with an optional cross-IRQ, and two
// independent 16-deep word FIFOs (one per direction) with overrun/underrun
// error latching.

package main

import "log"

// IPCClient names one side of the link. The remote of one is always the
// other.
type IPCClient int

const (
	IPCClientA IPCClient = iota
	IPCClientB
)

func (c IPCClient) remote() IPCClient {
	if c == IPCClientA {
		return IPCClientB
	}
	return IPCClientA
}

const ipcFIFODepth = 16

// ipcFIFO is a fixed-depth ring buffer of 32-bit words.
type ipcFIFO struct {
	data  [ipcFIFODepth]uint32
	head  int
	count int
}

func (f *ipcFIFO) reset() { *f = ipcFIFO{} }

func (f *ipcFIFO) isEmpty() bool { return f.count == 0 }
func (f *ipcFIFO) isFull() bool  { return f.count == ipcFIFODepth }

func (f *ipcFIFO) peek() uint32 {
	if f.count == 0 {
		return 0
	}
	return f.data[f.head]
}

func (f *ipcFIFO) write(v uint32) {
	tail := (f.head + f.count) % ipcFIFODepth
	f.data[tail] = v
	f.count++
}

func (f *ipcFIFO) read() uint32 {
	v := f.data[f.head]
	f.head = (f.head + 1) % ipcFIFODepth
	f.count--
	return v
}

type ipcSyncSide struct {
	send            uint8 // 4-bit nibble visible to the remote
	enableRemoteIRQ bool
}

type ipcFIFOSide struct {
	send          ipcFIFO
	latch         uint32 // last word successfully read, held across underrun
	enableSendIRQ bool
	enableRecvIRQ bool
	error         bool
	enable        bool
}

// IPCUnit holds both sides' sync and FIFO state. One instance serves both
// CPUs; the per-client registers are addressed by IPCClient.
type IPCUnit struct {
	irq  [2]*IRQController // irq[client]
	sync [2]ipcSyncSide
	fifo [2]ipcFIFOSide
}

// NewIPCUnit wires the unit to each side's interrupt controller.
func NewIPCUnit(irqA, irqB *IRQController) *IPCUnit {
	u := &IPCUnit{irq: [2]*IRQController{irqA, irqB}}
	u.Reset()
	return u
}

// Reset clears both sync registers and both FIFOs.
func (u *IPCUnit) Reset() {
	u.sync[IPCClientA] = ipcSyncSide{}
	u.sync[IPCClientB] = ipcSyncSide{}
	u.fifo[IPCClientA] = ipcFIFOSide{}
	u.fifo[IPCClientB] = ipcFIFOSide{}
}

func (u *IPCUnit) requestIRQ(client IPCClient, source IRQSource) {
	u.irq[client].Raise(source)
}

// ReadSync reads the IPCSYNC register for client: offset 0 returns the
// remote's send nibble, offset 1 returns this side's own send nibble plus
// its remote-IRQ-enable flag in bit 6.
func (u *IPCUnit) ReadSync(client IPCClient, offset int) uint8 {
	tx := &u.sync[client]
	switch offset {
	case 0:
		rx := &u.sync[client.remote()]
		return rx.send & 0xF
	case 1:
		v := tx.send & 0xF
		if tx.enableRemoteIRQ {
			v |= 64
		}
		return v
	}
	return 0
}

// WriteSync writes the IPCSYNC register. Offset 0 is read-only (it reflects
// the remote side). Offset 1 sets this side's send nibble and IRQ-enable
// flag, and - if bit 5 is set and the remote has its own remote-IRQ-enable
// set - raises IPC_Sync on the remote.
func (u *IPCUnit) WriteSync(client IPCClient, offset int, value uint8) {
	if offset != 1 {
		return
	}
	tx := &u.sync[client]
	rx := &u.sync[client.remote()]

	tx.send = value & 0xF
	tx.enableRemoteIRQ = value&64 != 0
	if value&32 != 0 && rx.enableRemoteIRQ {
		u.requestIRQ(client.remote(), IRQIPCSync)
	}
}

// ReadFIFOCnt reads the IPCFIFOCNT register for client.
func (u *IPCUnit) ReadFIFOCnt(client IPCClient, offset int) uint8 {
	tx := &u.fifo[client]
	rx := &u.fifo[client.remote()]

	switch offset {
	case 0:
		var v uint8
		if tx.send.isEmpty() {
			v |= 1
		}
		if tx.send.isFull() {
			v |= 2
		}
		if tx.enableSendIRQ {
			v |= 4
		}
		return v
	case 1:
		var v uint8
		if rx.send.isEmpty() {
			v |= 1
		}
		if rx.send.isFull() {
			v |= 2
		}
		if tx.enableRecvIRQ {
			v |= 4
		}
		if tx.error {
			v |= 64
		}
		if tx.enable {
			v |= 128
		}
		return v
	}
	return 0
}

// WriteFIFOCnt writes the IPCFIFOCNT register, including the send-empty and
// receive-not-empty IRQ-arm-on-rising-edge rules and the error-acknowledge /
// FIFO-clear side effects.
func (u *IPCUnit) WriteFIFOCnt(client IPCClient, offset int, value uint8) {
	tx := &u.fifo[client]
	rx := &u.fifo[client.remote()]

	switch offset {
	case 0:
		wasEnabled := tx.enableSendIRQ
		tx.enableSendIRQ = value&4 != 0
		if !wasEnabled && tx.enableSendIRQ && tx.send.isEmpty() {
			u.requestIRQ(client, IRQIPCSendEmpty)
		}
		if value&8 != 0 {
			tx.send.reset()
		}
	case 1:
		wasEnabled := tx.enableRecvIRQ
		tx.enableRecvIRQ = value&4 != 0
		if !wasEnabled && tx.enableRecvIRQ && !rx.send.isEmpty() {
			u.requestIRQ(client, IRQIPCReceiveNotEmpty)
		}
		if value&64 != 0 {
			tx.error = false
		}
		tx.enable = value&128 != 0
	}
}

// WriteFIFOSend pushes value into client's send FIFO. Disabled FIFOs drop
// the write with a log line; a full FIFO latches the error flag instead of
// overwriting; a write into a previously-empty FIFO raises
// IPC_ReceiveNotEmpty on the remote if the remote has armed it.
func (u *IPCUnit) WriteFIFOSend(client IPCClient, value uint32) {
	tx := &u.fifo[client]
	rx := &u.fifo[client.remote()]

	if !tx.enable {
		log.Printf("warn: ipc[%d]: write to FIFO while disabled", client)
		return
	}
	if tx.send.isFull() {
		tx.error = true
		log.Printf("warn: ipc[%d]: write to full FIFO", client)
		return
	}
	if rx.enableRecvIRQ && tx.send.isEmpty() {
		u.requestIRQ(client.remote(), IRQIPCReceiveNotEmpty)
	}
	tx.send.write(value)
}

// ReadFIFORecv pops client's remote-to-local FIFO (i.e. the remote's send
// FIFO). Disabled FIFOs return the remote's current head without consuming
// it. An empty FIFO latches the error flag and returns the last
// successfully-read word. A read that empties the FIFO raises
// IPC_SendEmpty on the remote if the remote has armed it.
func (u *IPCUnit) ReadFIFORecv(client IPCClient) uint32 {
	tx := &u.fifo[client]
	rx := &u.fifo[client.remote()]

	if !tx.enable {
		log.Printf("warn: ipc[%d]: read FIFO while disabled", client)
		return rx.send.peek()
	}
	if rx.send.isEmpty() {
		tx.error = true
		log.Printf("warn: ipc[%d]: read from empty FIFO", client)
		return tx.latch
	}
	if rx.enableSendIRQ && rx.send.count == 1 {
		u.requestIRQ(client.remote(), IRQIPCSendEmpty)
	}
	tx.latch = rx.send.read()
	return tx.latch
}

// latchedWord returns client's most recently popped word without touching
// the FIFO.
func (u *IPCUnit) latchedWord(client IPCClient) uint32 {
	return u.fifo[client].latch
}

// --- MMIO adapters ---

// IPCSyncRegister adapts IPCUnit.{Read,Write}Sync to ByteRegister for a
// fixed client side.
type IPCSyncRegister struct {
	unit   *IPCUnit
	client IPCClient
}

func (r IPCSyncRegister) ReadByte(offset int) uint8         { return r.unit.ReadSync(r.client, offset) }
func (r IPCSyncRegister) WriteByte(offset int, value uint8) { r.unit.WriteSync(r.client, offset, value) }
func (r IPCSyncRegister) Width() int                        { return 2 }

// IPCFIFOCntRegister adapts IPCUnit.{Read,Write}FIFOCnt to ByteRegister.
type IPCFIFOCntRegister struct {
	unit   *IPCUnit
	client IPCClient
}

func (r IPCFIFOCntRegister) ReadByte(offset int) uint8 {
	return r.unit.ReadFIFOCnt(r.client, offset)
}
func (r IPCFIFOCntRegister) WriteByte(offset int, value uint8) {
	r.unit.WriteFIFOCnt(r.client, offset, value)
}
func (r IPCFIFOCntRegister) Width() int { return 2 }

// IPCFIFOSendRegister is a WideRegister: the hardware replicates a byte or
// halfword write across the full word (value*0x01010101 / value*0x00010001)
// before pushing it, so only the wide path is meaningful.
type IPCFIFOSendRegister struct {
	unit   *IPCUnit
	client IPCClient
}

func (r IPCFIFOSendRegister) ReadByte(offset int) uint8 { return 0 }
func (r IPCFIFOSendRegister) WriteByte(offset int, value uint8) {
	r.unit.WriteFIFOSend(r.client, uint32(value)*0x01010101)
}
func (r IPCFIFOSendRegister) Width() int       { return 4 }
func (r IPCFIFOSendRegister) ReadWide() uint32 { return 0 }
func (r IPCFIFOSendRegister) WriteWide(value uint32) {
	r.unit.WriteFIFOSend(r.client, value)
}

// IPCFIFORecvRegister is a WideRegister wrapping IPCUnit.ReadFIFORecv so
// byte/halfword/word reads all observe (and consume) the FIFO consistently.
// Word/half reads take the wide path; a lone byte read pops only at the
// lowest offset, with the higher offsets serving bytes of the word most
// recently popped so a byte-at-a-time sweep doesn't drain four entries.
type IPCFIFORecvRegister struct {
	unit   *IPCUnit
	client IPCClient
}

func (r IPCFIFORecvRegister) ReadByte(offset int) uint8 {
	if offset == 0 {
		return uint8(r.unit.ReadFIFORecv(r.client))
	}
	return uint8(r.unit.latchedWord(r.client) >> (offset * 8))
}
func (r IPCFIFORecvRegister) WriteByte(offset int, value uint8) {}
func (r IPCFIFORecvRegister) Width() int                        { return 4 }
func (r IPCFIFORecvRegister) ReadWide() uint32                  { return r.unit.ReadFIFORecv(r.client) }
func (r IPCFIFORecvRegister) WriteWide(value uint32)            {}
