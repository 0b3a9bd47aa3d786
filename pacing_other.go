//go:build !unix

// pacing_other.go - Portable wall-clock pacing fallback for non-unix hosts
// (Windows), since golang.org/x/sys/unix isn't buildable there.

package main

import "time"

// paceFrame sleeps for whatever's left of target after elapsed.
func paceFrame(elapsed, target time.Duration) {
	if remaining := target - elapsed; remaining > 0 {
		time.Sleep(remaining)
	}
}
