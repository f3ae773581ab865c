package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// CaptureConfig selects the VideoCapture input
type CaptureConfig struct {
	// Pipeline is a GStreamer launch string ending in appsink. When set,
	// DeviceIndex is ignored.
	Pipeline string
	// DeviceIndex is the camera index for OpenCV's default backend
	DeviceIndex int
	// Width and Height requested from the device (0 = leave as is)
	Width  int
	Height int
}

// CaptureSource implements cameracanny.FrameSource on cv::VideoCapture
//
// Read blocks inside OpenCV and cannot be interrupted; ctx is checked
// before every read.
type CaptureSource struct {
	cfg CaptureConfig

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	seq    uint64
	closed bool
}

// OpenCapture opens the input described by cfg.
func OpenCapture(cfg CaptureConfig) (*CaptureSource, error) {
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("vision: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if cfg.Pipeline != "" {
		vc, err = gocv.OpenVideoCaptureWithAPI(cfg.Pipeline, gocv.VideoCaptureGstreamer)
	} else {
		vc, err = gocv.OpenVideoCaptureWithAPI(cfg.DeviceIndex, gocv.VideoCaptureAny)
	}
	if err != nil {
		return nil, fmt.Errorf("vision: failed to open capture: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.New("vision: capture device did not open")
	}

	if cfg.Pipeline == "" {
		if cfg.Width > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		}
		if cfg.Height > 0 {
			vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		}
		vc.Set(gocv.VideoCaptureBufferSize, 1)
	}

	slog.Info("vision: capture opened",
		"pipeline", cfg.Pipeline,
		"device_index", cfg.DeviceIndex,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)

	return &CaptureSource{
		cfg: cfg,
		vc:  vc,
		mat: gocv.NewMat(),
	}, nil
}

// Next reads one frame. A failed or empty read is end of stream.
func (s *CaptureSource) Next(ctx context.Context) (*cameracanny.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("vision: capture closed: %w", cameracanny.ErrEndOfStream)
	}

	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, cameracanny.ErrEndOfStream
	}
	if s.mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("vision: expected 8-bit BGR frame, got type %v", s.mat.Type())
	}

	s.seq++
	frame := &cameracanny.Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     s.mat.Cols(),
		Height:    s.mat.Rows(),
		Data:      s.mat.ToBytes(),
		TraceID:   uuid.New().String(),
	}

	slog.Debug("vision: frame read",
		"seq", frame.Seq,
		"trace_id", frame.TraceID,
		"width", frame.Width,
		"height", frame.Height,
	)
	return frame, nil
}

// Close releases the device. Safe to call more than once.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.mat.Close()
	if err := s.vc.Close(); err != nil {
		return fmt.Errorf("vision: failed to close capture: %w", err)
	}
	slog.Info("vision: capture closed", "frames", s.seq)
	return nil
}
