package cameracanny

import (
	"fmt"
	"io"
	"math"
)

// Summary is the end-of-run statistics block
type Summary struct {
	// RunID identifies the run in logs and reports
	RunID string `yaml:"run_id" msgpack:"run_id"`
	// FramesProcessed counts frames that were saved successfully
	FramesProcessed int `yaml:"frames_processed" msgpack:"frames_processed"`
	// NextSequence is the number the next saved frame would have received
	NextSequence int `yaml:"next_sequence" msgpack:"next_sequence"`
	// TotalWall is elapsed wall-clock time in seconds
	TotalWall float64 `yaml:"total_wall_s" msgpack:"total_wall_s"`
	// TotalCPU is process CPU time consumed during the run, in seconds
	TotalCPU float64 `yaml:"total_cpu_s" msgpack:"total_cpu_s"`
	// CPUCapture is the accumulated CPU cost of the capture phase
	CPUCapture float64 `yaml:"cpu_capture_s" msgpack:"cpu_capture_s"`
	// CPUProcess is the accumulated CPU cost of edge detection
	CPUProcess float64 `yaml:"cpu_process_s" msgpack:"cpu_process_s"`
	// FPSWall is FramesProcessed / TotalWall (0 when undefined)
	FPSWall float64 `yaml:"fps_wall" msgpack:"fps_wall"`
	// FPSCPU is FramesProcessed / TotalCPU (0 when undefined)
	FPSCPU float64 `yaml:"fps_cpu" msgpack:"fps_cpu"`
	// OutputDir is where the frames were written
	OutputDir string `yaml:"output_dir" msgpack:"output_dir"`
	// StopReason tells why the loop ended
	StopReason string `yaml:"stop_reason" msgpack:"stop_reason"`
}

// ComputeSummary derives the aggregate statistics.
//
// It is a pure function: the caller supplies the frame count, the total wall
// and CPU time measured from the run-start stamps, and the accumulated phase
// costs.
func ComputeSummary(framesProcessed int, totalWall, totalCPU, cpuCapture, cpuProcess float64) Summary {
	return Summary{
		FramesProcessed: framesProcessed,
		NextSequence:    FirstSequence + framesProcessed,
		TotalWall:       nonNegative(totalWall),
		TotalCPU:        nonNegative(totalCPU),
		CPUCapture:      nonNegative(cpuCapture),
		CPUProcess:      nonNegative(cpuProcess),
		FPSWall:         AverageFPS(framesProcessed, totalWall),
		FPSCPU:          AverageFPS(framesProcessed, totalCPU),
	}
}

// AverageFPS returns frames/seconds, or 0 when either is zero or the
// result would not be a finite non-negative number.
func AverageFPS(frames int, seconds float64) float64 {
	if frames <= 0 || !(seconds > 0) || math.IsInf(seconds, 0) {
		return 0
	}
	fps := float64(frames) / seconds
	if math.IsInf(fps, 0) || math.IsNaN(fps) {
		return 0
	}
	return fps
}

func nonNegative(v float64) float64 {
	if !(v > 0) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// WriteSummary prints the summary block.
func WriteSummary(w io.Writer, s Summary) error {
	_, err := fmt.Fprintf(w,
		"\n========== SUMMARY ==========\n"+
			"Frames processed: %d\n"+
			"Total WALL time (monotonic):    %.6f s\n"+
			"Total CPU time (process):       %.6f s\n"+
			"Total CPU capture time:         %.6f s\n"+
			"Total CPU process time:         %.6f s\n"+
			"Avg FPS (WALL):                 %.6f\n"+
			"Avg FPS (CPU):                  %.6f\n"+
			"Stop reason:                    %s\n"+
			"Output folder:                  %s\n"+
			"================================\n",
		s.FramesProcessed,
		s.TotalWall,
		s.TotalCPU,
		s.CPUCapture,
		s.CPUProcess,
		s.FPSWall,
		s.FPSCPU,
		s.StopReason,
		s.OutputDir,
	)
	return err
}
