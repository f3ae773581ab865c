//go:build linux || darwin || freebsd

package cameracanny

import (
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

type processCPUClock struct {
	warnOnce sync.Once
}

// ProcessCPUClock returns a CPUClock reading CLOCK_PROCESS_CPUTIME_ID.
func ProcessCPUClock() CPUClock { return &processCPUClock{} }

func (c *processCPUClock) Seconds() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_PROCESS_CPUTIME_ID, &ts); err != nil {
		c.warnOnce.Do(func() {
			slog.Warn("camera-canny: process CPU clock unavailable, CPU figures will read 0", "error", err)
		})
		return 0
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}
