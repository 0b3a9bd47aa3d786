//go:build unix

// pacing_unix.go - Host loop wall-clock pacing on unix platforms.
//
// When the simulation runs a quantum faster than real time, the host
// loop should idle rather than spin. golang.org/x/sys/unix.Nanosleep
// gives that idle wait without routing through the runtime's timer
// wheel.

package main

import (
	"time"

	"golang.org/x/sys/unix"
)

// paceFrame sleeps for whatever's left of target after elapsed, restarting
// on EINTR, so a quantum that ran ahead of wall-clock frame time doesn't
// just spin the host CPU.
func paceFrame(elapsed, target time.Duration) {
	remaining := target - elapsed
	if remaining <= 0 {
		return
	}

	req := unix.NsecToTimespec(remaining.Nanoseconds())
	for {
		var rem unix.Timespec
		if err := unix.Nanosleep(&req, &rem); err == unix.EINTR {
			req = rem
			continue
		}
		return
	}
}
