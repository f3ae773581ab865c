//go:build !linux && !darwin && !freebsd

package cameracanny

type zeroCPUClock struct{}

// ProcessCPUClock returns a CPUClock that always reads 0 on platforms without
// a per-process CPU clock. FPS (CPU) then reports 0.
func ProcessCPUClock() CPUClock { return zeroCPUClock{} }

func (zeroCPUClock) Seconds() float64 { return 0 }
