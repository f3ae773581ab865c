package cameracanny

import "time"

// WallClock is the monotonic elapsed-time source used for the duration
// check and for total run time.
type WallClock interface {
	Now() time.Time
}

// CPUClock reports CPU time consumed by the process, in seconds.
//
// It is deliberately a separate abstraction from WallClock: one measures
// elapsed time, the other consumed time, and both appear in the summary.
type CPUClock interface {
	Seconds() float64
}

type systemWallClock struct{}

func (systemWallClock) Now() time.Time { return time.Now() }

// SystemWallClock returns a WallClock backed by time.Now (monotonic reading).
func SystemWallClock() WallClock { return systemWallClock{} }

// runStart holds the two start stamps taken once before the first
// termination check.
type runStart struct {
	wall time.Time
	cpu  float64
}

func startRun(wall WallClock, cpu CPUClock) runStart {
	return runStart{wall: wall.Now(), cpu: cpu.Seconds()}
}

func (s runStart) wallElapsed(wall WallClock) float64 {
	return wall.Now().Sub(s.wall).Seconds()
}

func (s runStart) cpuElapsed(cpu CPUClock) float64 {
	return cpuDelta(s.cpu, cpu.Seconds())
}

// phaseCost is the CPU cost of one iteration's two measured phases.
type phaseCost struct {
	capture float64
	process float64
}

// cpuTotals accumulates phase costs across iterations. Totals only grow.
type cpuTotals struct {
	capture float64
	process float64
}

func (t *cpuTotals) add(c phaseCost) {
	t.capture += c.capture
	t.process += c.process
}

// cpuDelta never goes negative; coarse clocks may read the same value twice.
func cpuDelta(before, after float64) float64 {
	if after < before {
		return 0
	}
	return after - before
}
