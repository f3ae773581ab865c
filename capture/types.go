package capture

import (
	"fmt"
	"time"

	"github.com/e7canasta/camera-canny/capture/internal/gstpipe"
)

const (
	// DefaultWidth and DefaultHeight are the capture size used when none is configured
	DefaultWidth  = 640
	DefaultHeight = 480

	// DefaultDevice is the V4L2 node used when none is configured
	DefaultDevice = "/dev/video0"
)

// GstConfig contains configuration for GStreamer capture
type GstConfig struct {
	// Width and Height of the delivered frames (pixels)
	Width  int
	Height int
	// Framerate requested from the camera (0 = camera default, otherwise 1-120)
	Framerate int
	// Pipeline replaces the built-in libcamerasrc pipeline when non-empty.
	// It must contain an appsink named "sink" that receives BGR.
	Pipeline string
}

// DefaultGstConfig returns a 640x480 libcamera configuration.
func DefaultGstConfig() GstConfig {
	return GstConfig{Width: DefaultWidth, Height: DefaultHeight}
}

// Validate checks the configuration without touching GStreamer.
func (c GstConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		return fmt.Errorf("capture: invalid framerate %d (must be 0-120)", c.Framerate)
	}
	return nil
}

// LaunchString returns the gst-launch description equivalent to cfg, for
// consumers that drive GStreamer themselves (OpenCV's GStreamer backend).
func LaunchString(cfg GstConfig) string {
	if cfg.Pipeline != "" {
		return cfg.Pipeline
	}
	return gstpipe.LaunchString(cfg.Width, cfg.Height, cfg.Framerate)
}

// V4L2Config contains configuration for V4L2 capture
type V4L2Config struct {
	// Device is the video node, e.g. /dev/video0
	Device string
	// Width and Height requested from the driver
	Width  int
	Height int
	// Framerate requested from the driver (0 = driver default)
	Framerate int
}

// DefaultV4L2Config returns a 640x480 configuration for /dev/video0.
func DefaultV4L2Config() V4L2Config {
	return V4L2Config{Device: DefaultDevice, Width: DefaultWidth, Height: DefaultHeight}
}

// Validate checks the configuration without opening the device.
func (c V4L2Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("capture: V4L2 device path is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		return fmt.Errorf("capture: invalid framerate %d (must be 0-120)", c.Framerate)
	}
	return nil
}

// Stats contains current capture statistics
type Stats struct {
	// FrameCount is the total number of frames received from the camera
	FrameCount uint64
	// FramesDropped counts frames replaced before the consumer took them
	FramesDropped uint64
	// DropRate is the percentage of frames dropped (0-100)
	DropRate float64
	// FPSReal is the measured delivery rate since Open
	FPSReal float64
	// BytesRead is the total payload received
	BytesRead uint64
	// Resolution is the configured frame size (e.g., "640x480")
	Resolution string
	// IsOpen indicates the device is streaming
	IsOpen bool
	// EndOfStream is set once the backend stopped producing
	EndOfStream bool
	// Uptime since Open
	Uptime time.Duration

	// Errors by category
	ErrorsDevice      uint64
	ErrorsNegotiation uint64
	ErrorsResource    uint64
	ErrorsUnknown     uint64
}

// dropRate returns the percentage of received frames that were dropped.
func dropRate(received, dropped uint64) float64 {
	if received == 0 {
		return 0
	}
	return float64(dropped) / float64(received) * 100.0
}

// realFPS returns frames per second since started.
func realFPS(frames uint64, uptime time.Duration) float64 {
	if uptime <= 0 {
		return 0
	}
	return float64(frames) / uptime.Seconds()
}
