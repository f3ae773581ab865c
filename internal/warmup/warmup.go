// Package warmup measures how steadily a capture backend delivers frames
// before the real run starts.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnstable is returned together with the statistics when delivery was
// too irregular. Callers decide whether that is fatal.
var ErrUnstable = errors.New("warmup: frame delivery unstable")

// Frame is the part of a captured frame the warm-up needs
type Frame struct {
	Seq       uint64
	Timestamp time.Time
}

// Run consumes frames for duration and reports delivery statistics.
//
// Returns an error if:
//   - the channel closes before the window ends
//   - fewer than 2 frames arrive
//   - ctx is cancelled before the window ends
//
// An unstable stream returns both the stats and ErrUnstable.
func Run(ctx context.Context, frames <-chan Frame, duration time.Duration) (*Stats, error) {
	slog.Info("warmup: starting capture warm-up",
		"duration", duration,
		"reason", "measure real FPS and let auto exposure settle",
	)

	startTime := time.Now()
	frameTimes := make([]time.Time, 0, 64)

	window := time.NewTimer(duration)
	defer window.Stop()

collect:
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("warmup: interrupted: %w", ctx.Err())

		case <-window.C:
			break collect

		case frame, ok := <-frames:
			if !ok {
				return nil, fmt.Errorf("warmup: stream closed during warm-up")
			}
			frameTimes = append(frameTimes, frame.Timestamp)

			slog.Debug("warmup: frame received",
				"seq", frame.Seq,
				"frames_collected", len(frameTimes),
			)
		}
	}

	if len(frameTimes) < 2 {
		return nil, fmt.Errorf(
			"warmup: not enough frames received (got %d, need at least 2)",
			len(frameTimes),
		)
	}

	stats := CalculateFPSStats(frameTimes, time.Since(startTime))

	slog.Info("warmup: capture warm-up complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)

	if !stats.IsStable {
		return stats, fmt.Errorf(
			"%w (mean=%.2f Hz, stddev=%.2f, jitter=%.3fs, threshold: FPS<15%%, jitter<20%%)",
			ErrUnstable,
			stats.FPSMean,
			stats.FPSStdDev,
			stats.JitterMean,
		)
	}
	return stats, nil
}
