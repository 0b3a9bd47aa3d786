// romheader - standalone cartridge header dumper.
//
// A self-contained flag-based CLI that doesn't import the root
// simulation package (which is itself a main package), carrying its own
// copy of just the fixed 64-byte header parsing it needs.

package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

const headerSize = 0x40

type binaryDescriptor struct {
	FileOffset  uint32
	EntryPoint  uint32
	LoadAddress uint32
	Size        uint32
}

type header struct {
	GameTitle [12]byte
	GameCode  [4]byte
	MakerCode [2]byte
	UnitCode  uint8
	EncSeed   uint8
	Capacity  uint8
	Region    uint8
	Version   uint8
	Autostart uint8
	Main      binaryDescriptor
	Audio     binaryDescriptor
}

func parseDescriptor(raw []byte) binaryDescriptor {
	return binaryDescriptor{
		FileOffset:  binary.LittleEndian.Uint32(raw[0:4]),
		EntryPoint:  binary.LittleEndian.Uint32(raw[4:8]),
		LoadAddress: binary.LittleEndian.Uint32(raw[8:12]),
		Size:        binary.LittleEndian.Uint32(raw[12:16]),
	}
}

func parseHeader(raw []byte) (header, error) {
	if len(raw) < headerSize {
		return header{}, fmt.Errorf("header truncated: need %d bytes, got %d", headerSize, len(raw))
	}
	var h header
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

func printableASCII(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		out = append(out, c)
	}
	return string(out)
}

func main() {
	raw := flag.Bool("raw", false, "print every field without name alignment")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: romheader [options] cartridge.bin\n\nDumps a cartridge image's 64-byte header.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	h, err := parseHeader(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *raw {
		fmt.Printf("%+v\n", h)
		return
	}

	fmt.Printf("Title:       %s\n", printableASCII(h.GameTitle[:]))
	fmt.Printf("Game code:   %s\n", printableASCII(h.GameCode[:]))
	fmt.Printf("Maker code:  %s\n", printableASCII(h.MakerCode[:]))
	fmt.Printf("Unit code:   0x%02X\n", h.UnitCode)
	fmt.Printf("Enc seed:    0x%02X\n", h.EncSeed)
	fmt.Printf("Capacity:    0x%02X\n", h.Capacity)
	fmt.Printf("Region:      0x%02X\n", h.Region)
	fmt.Printf("Version:     0x%02X\n", h.Version)
	fmt.Printf("Autostart:   0x%02X\n", h.Autostart)
	fmt.Printf("Main  CPU:   offset=0x%08X entry=0x%08X load=0x%08X size=0x%X\n",
		h.Main.FileOffset, h.Main.EntryPoint, h.Main.LoadAddress, h.Main.Size)
	fmt.Printf("Audio CPU:   offset=0x%08X entry=0x%08X load=0x%08X size=0x%X\n",
		h.Audio.FileOffset, h.Audio.EntryPoint, h.Audio.LoadAddress, h.Audio.Size)
}
