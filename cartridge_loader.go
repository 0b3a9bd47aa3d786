// cartridge_loader.go - Cartridge header parse and binary load.
//
// The fixed little-endian header names a game plus one binary descriptor
// per CPU; the loader copies both binaries into place and points each
// core at its entrypoint.

package main

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	cartridgeHeaderSize   = 0x40
	cartridgeDescriptorSz = 0x10
)

// CartridgeBinaryDescriptor is one CPU's {file_offset, entrypoint,
// load_address, size} block.
type CartridgeBinaryDescriptor struct {
	FileOffset  uint32
	EntryPoint  uint32
	LoadAddress uint32
	Size        uint32
}

// CartridgeHeader is the parsed fixed 64-byte header.
type CartridgeHeader struct {
	GameTitle [12]byte
	GameCode  [4]byte
	MakerCode [2]byte
	UnitCode  uint8
	EncSeed   uint8
	Capacity  uint8
	Region    uint8
	Version   uint8
	Autostart uint8
	Main      CartridgeBinaryDescriptor
	Audio     CartridgeBinaryDescriptor
}

func parseDescriptor(raw []byte) CartridgeBinaryDescriptor {
	return CartridgeBinaryDescriptor{
		FileOffset:  binary.LittleEndian.Uint32(raw[0:4]),
		EntryPoint:  binary.LittleEndian.Uint32(raw[4:8]),
		LoadAddress: binary.LittleEndian.Uint32(raw[8:12]),
		Size:        binary.LittleEndian.Uint32(raw[12:16]),
	}
}

// ParseCartridgeHeader decodes the fixed 64-byte header from raw, which
// must be at least cartridgeHeaderSize bytes.
func ParseCartridgeHeader(raw []byte) (CartridgeHeader, error) {
	if len(raw) < cartridgeHeaderSize {
		return CartridgeHeader{}, fmt.Errorf("cartridge: header truncated: need %d bytes, got %d", cartridgeHeaderSize, len(raw))
	}

	var h CartridgeHeader
	copy(h.GameTitle[:], raw[0x00:0x0C])
	copy(h.GameCode[:], raw[0x0C:0x10])
	copy(h.MakerCode[:], raw[0x10:0x12])
	h.UnitCode = raw[0x12]
	h.EncSeed = raw[0x13]
	h.Capacity = raw[0x14]
	h.Region = raw[0x1D]
	h.Version = raw[0x1E]
	h.Autostart = raw[0x1F]
	h.Main = parseDescriptor(raw[0x20:0x30])
	h.Audio = parseDescriptor(raw[0x30:0x40])
	return h, nil
}

// cpuLoadTarget is the write-path a loaded binary needs: byte writes into
// one CPU's address space plus a way to set its entry point and reset it.
type cpuLoadTarget interface {
	WriteByte(addr uint32, value uint8, bus Bus)
	LoadEntryPoint(entry uint32)
	Reset()
}

// LoadCartridge opens path read-only, parses its header, copies both
// binaries into their respective CPU's address space at load_address, and
// resets each CPU with PC set to its entrypoint.
func LoadCartridge(path string, main, audio cpuLoadTarget) (CartridgeHeader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CartridgeHeader{}, fmt.Errorf("cartridge: open %s: %w", path, err)
	}

	header, err := ParseCartridgeHeader(data)
	if err != nil {
		return CartridgeHeader{}, err
	}

	if err := loadBinary(data, header.Main, main); err != nil {
		return CartridgeHeader{}, fmt.Errorf("cartridge: main CPU binary: %w", err)
	}
	if err := loadBinary(data, header.Audio, audio); err != nil {
		return CartridgeHeader{}, fmt.Errorf("cartridge: audio CPU binary: %w", err)
	}

	main.Reset()
	main.LoadEntryPoint(header.Main.EntryPoint)
	audio.Reset()
	audio.LoadEntryPoint(header.Audio.EntryPoint)

	return header, nil
}

func loadBinary(file []byte, desc CartridgeBinaryDescriptor, target cpuLoadTarget) error {
	end := uint64(desc.FileOffset) + uint64(desc.Size)
	if end > uint64(len(file)) {
		return fmt.Errorf("binary descriptor reads past end of file: offset=0x%X size=0x%X file_len=%d", desc.FileOffset, desc.Size, len(file))
	}

	bin := file[desc.FileOffset : desc.FileOffset+desc.Size]
	for i, b := range bin {
		target.WriteByte(desc.LoadAddress+uint32(i), b, BusSystem)
	}
	return nil
}
