package gstpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCounters holds atomic counters for different error categories
type ErrorCounters struct {
	Device      *uint64
	Negotiation *uint64
	Resource    *uint64
	Unknown     *uint64
}

func (c *ErrorCounters) add(category ErrorCategory) {
	switch category {
	case ErrCategoryDevice:
		atomic.AddUint64(c.Device, 1)
	case ErrCategoryNegotiation:
		atomic.AddUint64(c.Negotiation, 1)
	case ErrCategoryResource:
		atomic.AddUint64(c.Resource, 1)
	default:
		atomic.AddUint64(c.Unknown, 1)
	}
}

// MonitorMetrics holds stream metrics for log context
type MonitorMetrics struct {
	Resolution string
	FrameCount *uint64
	StartedAt  time.Time
}

// MonitorPipelineBus watches the pipeline bus until the stream ends.
//
// Returns nil if ctx is cancelled (graceful shutdown) and an error on EOS or
// on a pipeline error. Either return ends the stream; there is no
// reconnection.
func MonitorPipelineBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	counters *ErrorCounters,
	metrics *MonitorMetrics,
) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstpipe: context cancelled, stopping pipeline monitor")
			return nil

		default:
			// Short timeout keeps shutdown responsive.
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("gstpipe: end of stream received",
					"uptime", time.Since(metrics.StartedAt),
					"frames_captured", atomic.LoadUint64(metrics.FrameCount),
				)
				return fmt.Errorf("end of stream")

			case gst.MessageError:
				gerr := msg.ParseError()
				category := ClassifyGStreamerError(gerr)
				counters.add(category)

				slog.Error("gstpipe: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
					"resolution", metrics.Resolution,
					"uptime", time.Since(metrics.StartedAt),
					"frames_captured", atomic.LoadUint64(metrics.FrameCount),
				)
				return fmt.Errorf("pipeline error [%s]: %s", category.String(), gerr.Error())

			case gst.MessageWarning:
				gerr := msg.ParseWarning()
				slog.Warn("gstpipe: pipeline warning",
					"warning", gerr.Error(),
					"debug", gerr.DebugString(),
				)

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					slog.Debug("gstpipe: pipeline state changed",
						"from", old,
						"to", new,
					)
				}
			}
		}
	}
}
