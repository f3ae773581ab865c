package cameracanny

import (
	"fmt"
	"time"
)

// Frame represents a single color frame delivered by a capture backend
type Frame struct {
	// Seq is the backend's monotonic sequence number (not the output file number)
	Seq uint64
	// Timestamp is when the frame left the capture backend
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains packed BGR pixels (3 bytes per pixel, row-major)
	Data []byte
	// TraceID identifies the frame in logs
	TraceID string
}

// Gray is a single-channel 8-bit raster.
//
// It is used both for the grayscale input of the edge detector and for the
// edge buffer it returns. The buffer belongs to whoever received it and must
// be released with Release once it is no longer needed.
type Gray struct {
	Width  int
	Height int
	Pix    []byte
}

// NewGray allocates a zeroed raster of the given size.
func NewGray(width, height int) *Gray {
	return &Gray{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height),
	}
}

// Release drops the backing memory. Safe to call on nil and more than once.
func (g *Gray) Release() {
	if g == nil {
		return
	}
	g.Pix = nil
}

// Released reports whether Release has been called.
func (g *Gray) Released() bool {
	return g == nil || g.Pix == nil
}

// Mode selects how a run terminates
type Mode int

const (
	// ModeSeconds stops once elapsed wall-clock time reaches the configured value
	ModeSeconds Mode = iota
	// ModeFrames stops once the configured number of frames has been saved
	ModeFrames
)

// String returns the single-letter form used on the command line
func (m Mode) String() string {
	switch m {
	case ModeSeconds:
		return "s"
	case ModeFrames:
		return "n"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the command-line mode letter ("s" or "n").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "s":
		return ModeSeconds, nil
	case "n":
		return ModeFrames, nil
	default:
		return 0, fmt.Errorf("%w: mode must be 's' (seconds) or 'n' (frames), got %q", ErrInvalidConfig, s)
	}
}

// EdgeParams are the three numeric inputs of the edge detector
type EdgeParams struct {
	// Sigma is the standard deviation of the Gaussian smoothing kernel
	Sigma float64
	// TLow is the low hysteresis threshold as a fraction of the high threshold
	TLow float64
	// THigh is the fraction of gradient magnitudes that fall below the high threshold
	THigh float64
}

// StopReason records why a run ended
type StopReason int

const (
	// StopNone means the run has not stopped
	StopNone StopReason = iota
	// StopFrameLimit means the configured frame count was reached
	StopFrameLimit
	// StopDeadline means the configured duration elapsed
	StopDeadline
	// StopCancelled means a stop signal was raised
	StopCancelled
	// StopEndOfStream means the capture backend produced no frame
	StopEndOfStream
	// StopWriteFailed means an edge image could not be saved
	StopWriteFailed
	// StopProcessFailed means grayscale conversion or edge detection failed
	StopProcessFailed
)

// String returns a human-readable name for the stop reason
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopFrameLimit:
		return "frame-limit"
	case StopDeadline:
		return "deadline"
	case StopCancelled:
		return "cancelled"
	case StopEndOfStream:
		return "end-of-stream"
	case StopWriteFailed:
		return "write-failed"
	case StopProcessFailed:
		return "process-failed"
	default:
		return "unknown"
	}
}
