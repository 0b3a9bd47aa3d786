package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func buildTestCartridge(t *testing.T) string {
	t.Helper()
	data := make([]byte, cartridgeHeaderSize)
	copy(data[0x00:0x0C], "TESTGAME")
	copy(data[0x0C:0x10], "ABCD")

	mainPayload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	audioPayload := []byte{0x11, 0x22}

	mainOffset := uint32(len(data))
	data = append(data, mainPayload...)
	audioOffset := uint32(len(data))
	data = append(data, audioPayload...)

	putDescriptor := func(at int, offset, entry, load, size uint32) {
		binary.LittleEndian.PutUint32(data[at:], offset)
		binary.LittleEndian.PutUint32(data[at+4:], entry)
		binary.LittleEndian.PutUint32(data[at+8:], load)
		binary.LittleEndian.PutUint32(data[at+12:], size)
	}
	putDescriptor(0x20, mainOffset, 0x02000000, 0x02000000, uint32(len(mainPayload)))
	putDescriptor(0x30, audioOffset, 0x02100000, 0x02100000, uint32(len(audioPayload)))

	path := filepath.Join(t.TempDir(), "test.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write test cartridge: %v", err)
	}
	return path
}

type recordingLoadTarget struct {
	written map[uint32]uint8
	entry   uint32
	resets  int
}

func newRecordingLoadTarget() *recordingLoadTarget {
	return &recordingLoadTarget{written: map[uint32]uint8{}}
}

func (t *recordingLoadTarget) WriteByte(addr uint32, value uint8, _ Bus) { t.written[addr] = value }
func (t *recordingLoadTarget) LoadEntryPoint(entry uint32)               { t.entry = entry }
func (t *recordingLoadTarget) Reset()                                    { t.resets++ }

func TestLoadCartridgeCopiesBothBinariesAndSetsEntryPoints(t *testing.T) {
	path := buildTestCartridge(t)
	main := newRecordingLoadTarget()
	audio := newRecordingLoadTarget()

	header, err := LoadCartridge(path, main, audio)
	if err != nil {
		t.Fatalf("LoadCartridge failed: %v", err)
	}

	if string(header.GameTitle[:8]) != "TESTGAME" {
		t.Fatalf("expected game title TESTGAME, got %q", header.GameTitle)
	}

	wantMain := []uint8{0xDE, 0xAD, 0xBE, 0xEF}
	for i, want := range wantMain {
		if got := main.written[0x02000000+uint32(i)]; got != want {
			t.Fatalf("main byte %d: got 0x%02X want 0x%02X", i, got, want)
		}
	}
	wantAudio := []uint8{0x11, 0x22}
	for i, want := range wantAudio {
		if got := audio.written[0x02100000+uint32(i)]; got != want {
			t.Fatalf("audio byte %d: got 0x%02X want 0x%02X", i, got, want)
		}
	}

	if main.entry != 0x02000000 || audio.entry != 0x02100000 {
		t.Fatalf("expected entry points set from the descriptors, got main=0x%X audio=0x%X", main.entry, audio.entry)
	}
	if main.resets != 1 || audio.resets != 1 {
		t.Fatalf("expected exactly one reset per CPU")
	}
}

func TestLoadCartridgeRejectsTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("failed to write short file: %v", err)
	}

	_, err := LoadCartridge(path, newRecordingLoadTarget(), newRecordingLoadTarget())
	if err == nil {
		t.Fatalf("expected an error for a truncated header")
	}
}

func TestLoadCartridgeRejectsBinaryPastEndOfFile(t *testing.T) {
	data := make([]byte, cartridgeHeaderSize)
	binary.LittleEndian.PutUint32(data[0x20:], 0)
	binary.LittleEndian.PutUint32(data[0x20+4:], 0)
	binary.LittleEndian.PutUint32(data[0x20+8:], 0x02000000)
	binary.LittleEndian.PutUint32(data[0x20+12:], 0xFFFFFFFF) // absurd size

	path := filepath.Join(t.TempDir(), "oversize.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	_, err := LoadCartridge(path, newRecordingLoadTarget(), newRecordingLoadTarget())
	if err == nil {
		t.Fatalf("expected an error when a binary descriptor reads past the file end")
	}
}
