// Package gstpipe builds and monitors the GStreamer capture pipeline.
package gstpipe

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// SinkName is the appsink name a custom launch string must use
const SinkName = "sink"

// Config contains configuration for pipeline creation
type Config struct {
	Width     int
	Height    int
	Framerate int    // 0 = camera default
	Launch    string // optional gst-launch description replacing the built-in pipeline
}

// Elements holds references to the pipeline and its appsink
type Elements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
	Custom   bool // built from a launch string
}

// CreatePipeline creates the capture pipeline
//
// Built-in pipeline structure:
//
//	libcamerasrc → capsfilter(size[,framerate]) → videoconvert →
//	capsfilter(BGR) → appsink
//
// The pipeline is configured but NOT started (state remains NULL).
func CreatePipeline(cfg Config) (*Elements, error) {
	gst.Init(nil)

	if cfg.Launch != "" {
		return createFromLaunch(cfg.Launch)
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("libcamerasrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create libcamerasrc (install gstreamer1.0-libcamera): %w", err)
	}

	// The camera is asked for the target size directly so no scaler is needed.
	cameraCaps, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create camera capsfilter: %w", err)
	}
	cameraCaps.SetProperty("caps", gst.NewCapsFromString(BuildCameraCaps(cfg.Width, cfg.Height, cfg.Framerate)))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // 0 = auto-detect cores

	bgrCaps, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create BGR capsfilter: %w", err)
	}
	bgrCaps.SetProperty("caps", gst.NewCapsFromString(BuildBGRCaps(cfg.Width, cfg.Height)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	configureSink(appsink)

	if err := pipeline.AddMany(src, cameraCaps, converter, bgrCaps, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, cameraCaps, converter, bgrCaps, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Info("gstpipe: libcamera pipeline created",
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"framerate", cfg.Framerate,
		"format", "BGR",
	)

	return &Elements{Pipeline: pipeline, AppSink: appsink}, nil
}

// createFromLaunch parses a user pipeline and looks up its appsink.
func createFromLaunch(launch string) (*Elements, error) {
	if !strings.Contains(launch, "name="+SinkName) {
		return nil, fmt.Errorf("custom pipeline must end in 'appsink name=%s'", SinkName)
	}

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline %q: %w", launch, err)
	}

	elem, err := pipeline.GetElementByName(SinkName)
	if err != nil {
		return nil, fmt.Errorf("pipeline has no element named %q: %w", SinkName, err)
	}
	appsink := app.SinkFromElement(elem)
	if appsink == nil {
		return nil, fmt.Errorf("element %q is not an appsink", SinkName)
	}
	configureSink(appsink)

	slog.Info("gstpipe: custom pipeline created", "launch", launch)

	return &Elements{Pipeline: pipeline, AppSink: appsink, Custom: true}, nil
}

// configureSink applies live-camera settings: keep only the newest buffer.
func configureSink(appsink *app.Sink) {
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetProperty("emit-signals", false)
}

// DestroyPipeline sets the pipeline to NULL and releases its resources.
//
// Safe to call with nil.
func DestroyPipeline(elements *Elements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// BuildCameraCaps builds the caps requested from libcamerasrc.
//
// Format: "video/x-raw,width=W,height=H[,framerate=F/1]"
func BuildCameraCaps(width, height, framerate int) string {
	caps := fmt.Sprintf("video/x-raw,width=%d,height=%d", width, height)
	if framerate > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", framerate)
	}
	return caps
}

// BuildBGRCaps builds the caps delivered to the appsink.
func BuildBGRCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", width, height)
}

// LaunchString renders the built-in pipeline as a gst-launch description,
// usable with OpenCV's GStreamer backend.
func LaunchString(width, height, framerate int) string {
	return fmt.Sprintf("libcamerasrc ! %s ! videoconvert ! %s ! appsink",
		BuildCameraCaps(width, height, framerate),
		BuildBGRCaps(width, height),
	)
}
