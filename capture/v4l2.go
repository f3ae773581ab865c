package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/capture/internal/latest"
	"github.com/e7canasta/camera-canny/capture/internal/pixfmt"
	"github.com/google/uuid"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Source implements cameracanny.FrameSource for USB cameras through V4L2
//
// The device is asked for MJPEG; every JPEG is decoded and converted to packed
// BGR. The driver may choose a different size than requested; frames carry
// the decoded size.
type V4L2Source struct {
	cfg V4L2Config

	dev    *device.Device
	frames chan *cameracanny.Frame
	done   chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frameCount    uint64
	framesDropped uint64
	bytesRead     uint64
	decodeErrors  uint64
	started       time.Time

	closed atomic.Bool
}

// NewV4L2Source validates cfg and returns an unopened source.
func NewV4L2Source(cfg V4L2Config) (*V4L2Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &V4L2Source{
		cfg:    cfg,
		frames: latest.NewSlot(),
		done:   make(chan struct{}),
	}, nil
}

// Open opens the device and starts streaming.
func (s *V4L2Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("capture: source already open")
	}

	opts := []device.Option{
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(s.cfg.Width),
			Height:      uint32(s.cfg.Height),
		}),
	}
	if s.cfg.Framerate > 0 {
		opts = append(opts, device.WithFPS(uint32(s.cfg.Framerate)))
	}

	dev, err := device.Open(s.cfg.Device, opts...)
	if err != nil {
		return fmt.Errorf("capture: open %s: %w", s.cfg.Device, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	if err := dev.Start(streamCtx); err != nil {
		cancel()
		dev.Close()
		return fmt.Errorf("capture: start %s: %w", s.cfg.Device, err)
	}

	s.dev = dev
	s.cancel = cancel
	s.started = time.Now()

	s.wg.Add(1)
	go s.decodeLoop(streamCtx, dev.GetOutput())

	slog.Info("capture: V4L2 source open",
		"device", s.cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"pixel_format", "MJPEG",
	)
	return nil
}

// decodeLoop turns JPEG payloads into BGR frames until the device stops.
func (s *V4L2Source) decodeLoop(ctx context.Context, output <-chan []byte) {
	defer s.wg.Done()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-output:
			if !ok {
				slog.Warn("capture: V4L2 stream ended",
					"device", s.cfg.Device,
					"frames_captured", atomic.LoadUint64(&s.frameCount),
				)
				return
			}
			s.handlePayload(payload)
		}
	}
}

func (s *V4L2Source) handlePayload(payload []byte) {
	if len(payload) == 0 {
		return
	}
	atomic.AddUint64(&s.bytesRead, uint64(len(payload)))

	// The driver reuses its buffers; decode from a private copy.
	data := bytes.Clone(payload)
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		atomic.AddUint64(&s.decodeErrors, 1)
		slog.Warn("capture: skipping undecodable MJPEG frame", "error", err, "size_bytes", len(data))
		return
	}

	w, h, bgr := pixfmt.ImageToBGR(img)
	frame := &cameracanny.Frame{
		Seq:       atomic.AddUint64(&s.frameCount, 1),
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Data:      bgr,
		TraceID:   uuid.New().String(),
	}
	if latest.Publish(s.frames, frame) {
		atomic.AddUint64(&s.framesDropped, 1)
	}
}

// Next returns the most recent decoded frame.
func (s *V4L2Source) Next(ctx context.Context) (*cameracanny.Frame, error) {
	if s.closed.Load() && len(s.frames) == 0 {
		return nil, cameracanny.ErrEndOfStream
	}

	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
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

// Close stops streaming and closes the device. Idempotent.
func (s *V4L2Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		close(s.done)
		return nil
	}
	s.cancel()
	s.wg.Wait()

	err := s.dev.Close()
	slog.Info("capture: V4L2 source closed",
		"device", s.cfg.Device,
		"frames_captured", atomic.LoadUint64(&s.frameCount),
		"decode_errors", atomic.LoadUint64(&s.decodeErrors),
	)
	if err != nil {
		return fmt.Errorf("capture: close %s: %w", s.cfg.Device, err)
	}
	return nil
}

// Stats returns current capture statistics.
func (s *V4L2Source) Stats() Stats {
	s.mu.Lock()
	started, open := s.started, s.cancel != nil && !s.closed.Load()
	s.mu.Unlock()

	frames := atomic.LoadUint64(&s.frameCount)
	dropped := atomic.LoadUint64(&s.framesDropped)

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}

	eos := false
	select {
	case <-s.done:
		eos = true
	default:
	}

	return Stats{
		FrameCount:    frames,
		FramesDropped: dropped,
		DropRate:      dropRate(frames, dropped),
		FPSReal:       realFPS(frames, uptime),
		BytesRead:     atomic.LoadUint64(&s.bytesRead),
		Resolution:    fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		IsOpen:        open,
		EndOfStream:   eos,
		Uptime:        uptime,
		ErrorsUnknown: atomic.LoadUint64(&s.decodeErrors),
	}
}
