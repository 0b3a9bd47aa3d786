// main.go - CLI entry point.
//
// Construct the backends, build the machine, load the cartridge, start
// everything, then loop run-present-pace until the process exits. The
// only positional argument is the cartridge path.

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	audioSampleRate  = 32768
	audioBlockSize   = 1024
	cyclesPerQuantum = 1 << 16 // one host-loop iteration's worth of main-CPU cycles

	// targetFrameTime paces the host loop to roughly 60Hz, matching the
	// handheld's display refresh.
	targetFrameTime = time.Second / 60
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: duocore <cartridge.bin>")
		os.Exit(1)
	}
	cartridgePath := os.Args[1]

	logger := log.New(os.Stderr, "duocore: ", log.LstdFlags)
	backupPath := strings.TrimSuffix(cartridgePath, filepath.Ext(cartridgePath)) + ".sav"

	video := NewEbitenVideoDevice(2)
	audio := NewOtoAudioDevice()
	input, err := newConsoleInputDevice()
	if err != nil {
		logger.Fatalf("opening input device: %v", err)
	}

	machine, err := NewMachine(backupPath, video, audio, input, logger)
	if err != nil {
		logger.Fatalf("constructing machine: %v", err)
	}

	header, err := machine.LoadCartridge(cartridgePath)
	if err != nil {
		logger.Fatalf("loading cartridge %s: %v", cartridgePath, err)
	}
	logger.Printf("loaded %q (main entry 0x%08X, audio entry 0x%08X)",
		strings.TrimRight(string(header.GameTitle[:]), "\x00"), header.Main.EntryPoint, header.Audio.EntryPoint)

	if err := machine.Start(); err != nil {
		logger.Fatalf("starting machine: %v", err)
	}
	defer machine.Close()

	// No rasterizer is attached, so these stay blank; Present is still
	// driven every quantum so the video backend's lifecycle is exercised.
	top := make([]byte, guestFrameBytes)
	bottom := make([]byte, guestFrameBytes)

	for {
		frameStart := time.Now()

		machine.Run(cyclesPerQuantum)
		if err := video.Present(top, bottom); err != nil {
			logger.Printf("presenting frame: %v", err)
		}

		// Holding the fast-forward key runs the loop unpaced.
		if !input.IsKeyDown(KeyFastForward) {
			paceFrame(time.Since(frameStart), targetFrameTime)
		}
	}
}
