// decoder_stub.go - Placeholder Decoder so the kernel links and runs end to
// end without an instruction set behind it.
//
// CPUCore only ever calls through the Decoder interface it was constructed
// with. NullDecoder satisfies that interface by treating every fetched
// word as a single-cycle no-op, so the scheduler and every MMIO-driven
// block still run correctly under the host loop even with no real CPU
// behind them. A real decoder is a drop-in replacement; nothing else in
// the kernel changes.

package main

// NullDecoder implements Decoder as a no-op: it advances no guest state
// and reports a fixed one-cycle cost per fetched instruction.
type NullDecoder struct{}

func (NullDecoder) Execute(core *CPUCore, instruction uint32) int { return 1 }
