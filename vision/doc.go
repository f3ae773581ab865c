/*
Package vision implements the OpenCV side of camera-canny with gocv.

It provides three collaborators for cameracanny.Runner:

  - CaptureSource: a cameracanny.FrameSource backed by cv::VideoCapture,
    either on a GStreamer launch string or on a device index.
  - Processor: the GrayConverter and EdgeDetector. Detect smooths with a
    Gaussian of the configured sigma, derives hysteresis thresholds from the
    Sobel gradient histogram and runs cv::Canny. Edge pixels are 0 and the
    background is 255.
  - Preview: "[RAW]" and "[EDGE]" windows. It is also the ESC stop signal
    and the key-press advance signal of step mode.

# Quick Start

	src, err := vision.OpenCapture(vision.CaptureConfig{
		Pipeline: capture.LaunchString(capture.DefaultGstConfig()),
		Width:    640,
		Height:   480,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	proc := vision.NewProcessor()
	runner, err := cameracanny.NewRunner(cfg, cameracanny.Collaborators{
		Source:    src,
		Converter: proc,
		Detector:  proc,
		Writer:    cameracanny.PGMWriter{},
	})

# Threading

HighGUI windows must be driven from a single goroutine. Preview is not safe
for concurrent use; the Runner calls it from the goroutine running Run.
*/
package vision
