// Package capture provides camera frame acquisition backends for the
// capture-and-process runner.
//
// Every backend implements cameracanny.FrameSource and delivers packed BGR
// frames. Two backends live here:
//
//   - GstSource: libcamera through GStreamer (libcamerasrc → videoconvert →
//     appsink), the default on Raspberry Pi class boards
//   - V4L2Source: USB cameras through V4L2, MJPEG decoded to BGR
//
// A third backend based on OpenCV's VideoCapture lives in the vision package.
//
// # Quick Start
//
//	src, err := capture.NewGstSource(capture.DefaultGstConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	if err := src.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Optional: measure delivery stability first
//	stats, _ := src.Warmup(ctx, 2*time.Second)
//
//	frame, err := src.Next(ctx)
//
// # Live Camera Semantics
//
// The appsink keeps only the latest buffer (max-buffers=1, drop=true) and the
// hand-off channel holds a single frame. A slow consumer therefore always gets
// a recent frame rather than a growing backlog; older frames are counted as
// drops in Stats.
//
// # End of Stream
//
// EOS or an error on the GStreamer bus ends the stream: Next returns
// cameracanny.ErrEndOfStream once buffered frames are drained. There is no
// reconnection; a local camera that stops producing is treated as gone.
package capture
