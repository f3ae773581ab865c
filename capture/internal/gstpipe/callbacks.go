package gstpipe

import (
	"log/slog"
	"sync/atomic"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/capture/internal/latest"
	"github.com/e7canasta/camera-canny/capture/internal/pixfmt"
	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// CallbackContext holds state needed by the appsink callbacks
type CallbackContext struct {
	FrameChan     chan *cameracanny.Frame // Latest-frame slot (capacity 1)
	FrameCounter  *uint64                 // Atomic counter for sequence numbers
	BytesRead     *uint64                 // Atomic counter for bytes read
	FramesDropped *uint64                 // Atomic counter for replaced frames
	Width         int
	Height        int
	OnFrame       func(time.Time) // optional; called for every accepted frame
}

// OnNewSample is called by GStreamer when a new frame is available
//
// This callback:
//  1. Pulls the sample and maps its buffer
//  2. Copies the BGR rows, dropping any stride padding
//  3. Publishes the frame, replacing an unconsumed older one
//
// A malformed sample is skipped; it never ends the stream.
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstpipe: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstpipe: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstpipe: empty buffer received")
		return gst.FlowOK
	}

	// GStreamer reuses the buffer, so the rows are copied out before Unmap.
	pixels, err := pixfmt.PackRows(data, ctx.Width, ctx.Height, 3)
	buffer.Unmap()
	if err != nil {
		slog.Warn("gstpipe: unexpected buffer layout, skipping frame",
			"size_bytes", len(data),
			"resolution_w", ctx.Width,
			"resolution_h", ctx.Height,
			"error", err,
		)
		return gst.FlowOK
	}

	seq := atomic.AddUint64(ctx.FrameCounter, 1)
	atomic.AddUint64(ctx.BytesRead, uint64(len(data)))

	frame := &cameracanny.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     ctx.Width,
		Height:    ctx.Height,
		Data:      pixels,
		TraceID:   uuid.New().String(),
	}

	if latest.Publish(ctx.FrameChan, frame) {
		atomic.AddUint64(ctx.FramesDropped, 1)
		slog.Debug("gstpipe: replaced unconsumed frame", "seq", frame.Seq)
	}
	if ctx.OnFrame != nil {
		ctx.OnFrame(frame.Timestamp)
	}

	slog.Debug("gstpipe: frame received",
		"seq", frame.Seq,
		"size_bytes", len(data),
		"trace_id", frame.TraceID,
	)
	return gst.FlowOK
}
