package main

import (
	"context"
	"fmt"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/capture"
	"github.com/e7canasta/camera-canny/internal/config"
	"github.com/e7canasta/camera-canny/internal/warmup"
	"github.com/e7canasta/camera-canny/vision"
)

// camera is an opened capture backend
type camera interface {
	cameracanny.FrameSource
	Close() error
}

// warmer is implemented by backends that can measure delivery stability
type warmer interface {
	Warmup(ctx context.Context, d time.Duration) (*warmup.Stats, error)
}

// openCamera creates and opens the configured backend.
func openCamera(ctx context.Context, c config.CaptureConfig) (camera, error) {
	switch c.Backend {
	case config.BackendGst:
		src, err := capture.NewGstSource(capture.GstConfig{
			Width:     c.Width,
			Height:    c.Height,
			Framerate: c.Framerate,
			Pipeline:  c.Pipeline,
		})
		if err != nil {
			return nil, err
		}
		if err := src.Open(ctx); err != nil {
			src.Close()
			return nil, err
		}
		return src, nil

	case config.BackendV4L2:
		src, err := capture.NewV4L2Source(capture.V4L2Config{
			Device:    c.Device,
			Width:     c.Width,
			Height:    c.Height,
			Framerate: c.Framerate,
		})
		if err != nil {
			return nil, err
		}
		if err := src.Open(ctx); err != nil {
			src.Close()
			return nil, err
		}
		return src, nil

	case config.BackendOpenCV:
		return vision.OpenCapture(opencvConfig(c))

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// opencvConfig picks the VideoCapture input: an explicit pipeline, a camera
// index, or the libcamera pipeline.
func opencvConfig(c config.CaptureConfig) vision.CaptureConfig {
	vc := vision.CaptureConfig{Width: c.Width, Height: c.Height}
	switch idx, ok := c.DeviceIndex(); {
	case c.Pipeline != "":
		vc.Pipeline = c.Pipeline
	case ok:
		vc.DeviceIndex = idx
	default:
		vc.Pipeline = capture.LaunchString(capture.GstConfig{
			Width:     c.Width,
			Height:    c.Height,
			Framerate: c.Framerate,
		})
	}
	return vc
}
