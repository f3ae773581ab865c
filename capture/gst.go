package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/capture/internal/gstpipe"
	"github.com/e7canasta/camera-canny/capture/internal/latest"
	"github.com/e7canasta/camera-canny/internal/warmup"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstSource implements cameracanny.FrameSource using a GStreamer pipeline
type GstSource struct {
	// Configuration
	cfg GstConfig

	elements *gstpipe.Elements

	// Latest-frame slot filled by the appsink callback
	frames chan *cameracanny.Frame
	// Closed once the bus reports EOS or an error
	eos chan struct{}
	// Frame timestamps mirrored for Warmup
	ticks chan warmup.Frame

	mu sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics (atomic for thread-safety)
	frameCount    uint64
	framesDropped uint64
	bytesRead     uint64
	started       time.Time

	// Error telemetry (atomic for thread-safety)
	errorsDevice      uint64
	errorsNegotiation uint64
	errorsResource    uint64
	errorsUnknown     uint64

	eosOnce   sync.Once
	warmingUp atomic.Bool
	closed    atomic.Bool
}

// NewGstSource creates a GStreamer capture source with fail-fast validation
//
// Validates configuration at construction time:
//   - Width and height must be positive
//   - Framerate must be 0 (camera default) or 1-120
//   - GStreamer must be installed
func NewGstSource(cfg GstConfig) (*GstSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available: %w", err)
	}

	s := &GstSource{
		cfg:    cfg,
		frames: latest.NewSlot(),
		eos:    make(chan struct{}),
		ticks:  make(chan warmup.Frame, 64),
	}

	slog.Info("capture: GStreamer source created",
		"resolution", s.resolution(),
		"framerate", cfg.Framerate,
		"custom_pipeline", cfg.Pipeline != "",
	)

	return s, nil
}

// Open builds the pipeline and starts streaming
//
// This method:
//  1. Creates the GStreamer pipeline
//  2. Installs the appsink callbacks
//  3. Sets the pipeline to PLAYING and waits briefly for the transition
//  4. Launches the bus monitor
//
// Frames start arriving asynchronously once libcamera has configured the
// sensor. A second call returns an error.
func (s *GstSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("capture: source already open")
	}
	if s.closed.Load() {
		return fmt.Errorf("capture: source closed")
	}

	elements, err := gstpipe.CreatePipeline(gstpipe.Config{
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Framerate: s.cfg.Framerate,
		Launch:    s.cfg.Pipeline,
	})
	if err != nil {
		return fmt.Errorf("capture: failed to create pipeline: %w", err)
	}

	callbackCtx := &gstpipe.CallbackContext{
		FrameChan:     s.frames,
		FrameCounter:  &s.frameCount,
		BytesRead:     &s.bytesRead,
		FramesDropped: &s.framesDropped,
		Width:         s.cfg.Width,
		Height:        s.cfg.Height,
		OnFrame:       s.recordTick,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstpipe.OnNewSample(sink, callbackCtx)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		gstpipe.DestroyPipeline(elements)
		return fmt.Errorf("capture: failed to start pipeline: %w", err)
	}

	bus := elements.Pipeline.GetPipelineBus()
	if msg := bus.TimedPop(5 * time.Second); msg != nil {
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			gstpipe.DestroyPipeline(elements)
			return fmt.Errorf("capture: pipeline failed to start [%s]: %s",
				gstpipe.ClassifyGStreamerError(gerr), gerr.Error())
		case gst.MessageStateChanged:
			if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying {
				slog.Info("capture: pipeline reached PLAYING state")
			}
		}
	}

	s.elements = elements
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	s.wg.Add(1)
	go s.runMonitor()

	slog.Info("capture: GStreamer source open",
		"resolution", s.resolution(),
		"note", "frames arrive asynchronously once the camera is streaming",
	)
	return nil
}

// runMonitor watches the bus and marks end of stream when it returns.
func (s *GstSource) runMonitor() {
	defer s.wg.Done()

	err := gstpipe.MonitorPipelineBus(
		s.ctx,
		s.elements.Pipeline,
		&gstpipe.ErrorCounters{
			Device:      &s.errorsDevice,
			Negotiation: &s.errorsNegotiation,
			Resource:    &s.errorsResource,
			Unknown:     &s.errorsUnknown,
		},
		&gstpipe.MonitorMetrics{
			Resolution: s.resolution(),
			FrameCount: &s.frameCount,
			StartedAt:  s.started,
		},
	)
	if err != nil {
		slog.Warn("capture: stream ended",
			"reason", err,
			"uptime", time.Since(s.started),
			"frames_captured", atomic.LoadUint64(&s.frameCount),
		)
	}
	s.markEOS()
}

func (s *GstSource) markEOS() {
	s.eosOnce.Do(func() { close(s.eos) })
}

// recordTick mirrors frame timestamps to Warmup while one is running.
func (s *GstSource) recordTick(ts time.Time) {
	if !s.warmingUp.Load() {
		return
	}
	select {
	case s.ticks <- warmup.Frame{Seq: atomic.LoadUint64(&s.frameCount), Timestamp: ts}:
	default:
	}
}

// Next returns the most recent frame
//
// Blocks until a frame arrives, the stream ends (cameracanny.ErrEndOfStream)
// or ctx is done. A frame already in the slot is returned even after end of
// stream.
func (s *GstSource) Next(ctx context.Context) (*cameracanny.Frame, error) {
	s.mu.RLock()
	open := s.cancel != nil
	s.mu.RUnlock()
	if !open {
		return nil, fmt.Errorf("capture: source not open: %w", cameracanny.ErrEndOfStream)
	}

	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.eos:
		select {
		case f := <-s.frames:
			return f, nil
		default:
		}
		return nil, cameracanny.ErrEndOfStream
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Warmup consumes frames for duration and reports delivery stability
//
// Frames delivered during the warm-up are discarded. An unstable stream
// returns the statistics together with warmup.ErrUnstable.
func (s *GstSource) Warmup(ctx context.Context, duration time.Duration) (*warmup.Stats, error) {
	s.mu.RLock()
	open := s.cancel != nil
	s.mu.RUnlock()
	if !open {
		return nil, fmt.Errorf("capture: source not open")
	}

	s.warmingUp.Store(true)
	defer s.warmingUp.Store(false)

	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	go func() {
		for {
			select {
			case <-drainCtx.Done():
				return
			case <-s.frames:
			}
		}
	}()

	stats, err := warmup.Run(ctx, s.ticks, duration)
	if err != nil {
		return stats, fmt.Errorf("capture: %w", err)
	}
	return stats, nil
}

// Close stops the pipeline and releases resources
//
// Idempotent - safe to call multiple times.
func (s *GstSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		slog.Debug("capture: source already closed")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	slog.Info("capture: closing GStreamer source")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Debug("capture: monitor stopped cleanly")
	case <-time.After(3 * time.Second):
		slog.Warn("capture: close timeout exceeded, monitor may still be running")
	}

	if err := gstpipe.DestroyPipeline(s.elements); err != nil {
		slog.Error("capture: failed to destroy pipeline", "error", err)
	}
	s.elements = nil
	s.markEOS()

	slog.Info("capture: GStreamer source closed",
		"frames_captured", atomic.LoadUint64(&s.frameCount),
		"frames_dropped", atomic.LoadUint64(&s.framesDropped),
		"uptime", time.Since(s.started),
	)

	s.cancel = nil
	return nil
}

// Stats returns current capture statistics
//
// Thread-safe - uses atomic operations for counters.
func (s *GstSource) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	frames := atomic.LoadUint64(&s.frameCount)
	dropped := atomic.LoadUint64(&s.framesDropped)

	var uptime time.Duration
	if !s.started.IsZero() {
		uptime = time.Since(s.started)
	}

	eos := false
	select {
	case <-s.eos:
		eos = true
	default:
	}

	return Stats{
		FrameCount:        frames,
		FramesDropped:     dropped,
		DropRate:          dropRate(frames, dropped),
		FPSReal:           realFPS(frames, uptime),
		BytesRead:         atomic.LoadUint64(&s.bytesRead),
		Resolution:        s.resolution(),
		IsOpen:            s.elements != nil && s.cancel != nil,
		EndOfStream:       eos,
		Uptime:            uptime,
		ErrorsDevice:      atomic.LoadUint64(&s.errorsDevice),
		ErrorsNegotiation: atomic.LoadUint64(&s.errorsNegotiation),
		ErrorsResource:    atomic.LoadUint64(&s.errorsResource),
		ErrorsUnknown:     atomic.LoadUint64(&s.errorsUnknown),
	}
}

func (s *GstSource) resolution() string {
	return fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height)
}

// checkGStreamerAvailable is the construction-time GStreamer probe.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
