package main

import "testing"

func newTestIPC() (*IPCUnit, *IRQController, *IRQController) {
	irqA := NewIRQController()
	irqB := NewIRQController()
	irqA.SetMasterEnable(true)
	irqB.SetMasterEnable(true)
	irqA.SetEnableMask(uint32(IRQIPCSync) | uint32(IRQIPCSendEmpty) | uint32(IRQIPCReceiveNotEmpty))
	irqB.SetEnableMask(uint32(IRQIPCSync) | uint32(IRQIPCSendEmpty) | uint32(IRQIPCReceiveNotEmpty))
	return NewIPCUnit(irqA, irqB), irqA, irqB
}

func TestIPCSyncNibbleExchange(t *testing.T) {
	u, _, _ := newTestIPC()

	u.WriteSync(IPCClientA, 1, 0x5) // A sends nibble 5, no IRQ request
	if got := u.ReadSync(IPCClientB, 0); got != 0x5 {
		t.Fatalf("B sees A's nibble = 0x%X, want 0x5", got)
	}
}

func TestIPCSyncRaisesRemoteIRQOnlyWhenRemoteArmed(t *testing.T) {
	u, _, irqB := newTestIPC()

	// B has not armed enable_remote_irq; A's request bit must not raise.
	u.WriteSync(IPCClientA, 1, 0x20)
	if irqB.PendingMask() != 0 {
		t.Fatal("IPC_Sync raised on B despite B not arming remote IRQ")
	}

	// Now B arms remote IRQ, then A requests again.
	u.WriteSync(IPCClientB, 1, 0x40)
	u.WriteSync(IPCClientA, 1, 0x20)
	if irqB.PendingMask()&uint32(IRQIPCSync) == 0 {
		t.Fatal("IPC_Sync not raised on B after B armed remote IRQ")
	}
}

func TestIPCFIFOWriteIntoEmptyRaisesRemoteReceiveNotEmpty(t *testing.T) {
	u, _, irqB := newTestIPC()

	u.WriteFIFOCnt(IPCClientA, 1, 128) // enable A's FIFO
	u.WriteFIFOCnt(IPCClientB, 1, 128|4) // enable B's FIFO + arm recv IRQ

	u.WriteFIFOSend(IPCClientA, 0xCAFEBABE)

	if irqB.PendingMask()&uint32(IRQIPCReceiveNotEmpty) == 0 {
		t.Fatal("IPC_ReceiveNotEmpty not raised on B after A wrote into empty FIFO")
	}

	got := u.ReadFIFORecv(IPCClientB)
	if got != 0xCAFEBABE {
		t.Fatalf("B read 0x%X, want 0xCAFEBABE", got)
	}
}

func TestIPCFIFOReadThatEmptiesRaisesRemoteSendEmpty(t *testing.T) {
	u, _, irqB := newTestIPC()

	u.WriteFIFOCnt(IPCClientA, 1, 128)
	u.WriteFIFOCnt(IPCClientB, 1, 128)

	u.WriteFIFOSend(IPCClientB, 0x1)
	u.WriteFIFOCnt(IPCClientB, 0, 4) // B arms its send-empty IRQ while its FIFO holds a word
	irqB.AcknowledgeMask(^uint32(0))

	got := u.ReadFIFORecv(IPCClientA) // this is the only word: read empties it
	if got != 0x1 {
		t.Fatalf("got 0x%X, want 0x1", got)
	}
	if irqB.PendingMask()&uint32(IRQIPCSendEmpty) == 0 {
		t.Fatal("IPC_SendEmpty not raised on B after A emptied B's FIFO via read")
	}
}

func TestIPCFIFOFullWriteSetsErrorAndDropsWord(t *testing.T) {
	u, _, _ := newTestIPC()
	u.WriteFIFOCnt(IPCClientA, 1, 128)

	for i := 0; i < ipcFIFODepth; i++ {
		u.WriteFIFOSend(IPCClientA, uint32(i))
	}
	u.WriteFIFOSend(IPCClientA, 0xFFFFFFFF) // 17th write: FIFO is full

	if !u.fifo[IPCClientA].error {
		t.Fatal("error flag not set after write to full FIFO")
	}
	if u.fifo[IPCClientA].send.count != ipcFIFODepth {
		t.Fatalf("FIFO count = %d after overflow write, want unchanged at %d", u.fifo[IPCClientA].send.count, ipcFIFODepth)
	}
}

func TestIPCFIFOEmptyReadSetsErrorAndReturnsLatch(t *testing.T) {
	u, _, _ := newTestIPC()
	u.WriteFIFOCnt(IPCClientA, 1, 128)
	u.WriteFIFOCnt(IPCClientB, 1, 128)

	u.WriteFIFOSend(IPCClientB, 0x42)
	first := u.ReadFIFORecv(IPCClientA)
	if first != 0x42 {
		t.Fatalf("first read = 0x%X, want 0x42", first)
	}

	second := u.ReadFIFORecv(IPCClientA) // FIFO is now empty
	if second != first {
		t.Fatalf("underrun read = 0x%X, want latched 0x%X", second, first)
	}
	if !u.fifo[IPCClientA].error {
		t.Fatal("error flag not set after read from empty FIFO")
	}
}

func TestIPCFIFOClearOnWriteBit3(t *testing.T) {
	u, _, _ := newTestIPC()
	u.WriteFIFOCnt(IPCClientA, 1, 128)
	u.WriteFIFOSend(IPCClientA, 0x1)
	u.WriteFIFOSend(IPCClientA, 0x2)

	u.WriteFIFOCnt(IPCClientA, 0, 8) // bit 3: clear send FIFO
	if !u.fifo[IPCClientA].send.isEmpty() {
		t.Fatal("FIFO not cleared after writing clear bit")
	}
}

func TestIPCFIFOSendIRQArmsOnRisingEdgeWhileAlreadyEmpty(t *testing.T) {
	u, irqA, _ := newTestIPC()
	u.WriteFIFOCnt(IPCClientA, 1, 128) // enable, no send IRQ armed yet

	// FIFO is already empty; arming send-IRQ now must immediately raise it.
	u.WriteFIFOCnt(IPCClientA, 0, 4)
	if irqA.PendingMask()&uint32(IRQIPCSendEmpty) == 0 {
		t.Fatal("IPC_SendEmpty not raised on arming while already empty")
	}
}

func TestIPCFIFORecvByteReadPopsOnlyAtLowOffset(t *testing.T) {
	u, _, _ := newTestIPC()
	u.WriteFIFOCnt(IPCClientA, 1, 128)
	u.WriteFIFOCnt(IPCClientB, 1, 128)

	u.WriteFIFOSend(IPCClientB, 0x11223344)
	u.WriteFIFOSend(IPCClientB, 0x55667788)

	reg := IPCFIFORecvRegister{unit: u, client: IPCClientA}
	if got := reg.ReadByte(0); got != 0x44 {
		t.Fatalf("offset 0 = 0x%02X, want 0x44 (pops the first word)", got)
	}
	if got := reg.ReadByte(2); got != 0x22 {
		t.Fatalf("offset 2 = 0x%02X, want 0x22 from the latched word, not a fresh pop", got)
	}
	if u.fifo[IPCClientB].send.count != 1 {
		t.Fatalf("remote FIFO count = %d after one pop, want 1", u.fifo[IPCClientB].send.count)
	}
}

func TestIPCSyncOffsetZeroIsReadOnly(t *testing.T) {
	u, _, _ := newTestIPC()
	u.WriteSync(IPCClientA, 0, 0xF) // offset 0 writes must be ignored
	if got := u.ReadSync(IPCClientB, 0); got != 0 {
		t.Fatalf("write to read-only offset 0 took effect: got 0x%X", got)
	}
}
