package cameracanny

import (
	"context"
	"errors"
)

// ErrEndOfStream is returned by FrameSource.Next when no further frame will arrive.
var ErrEndOfStream = errors.New("end of stream")

// FrameSource is the capture collaborator
//
// Implementations must guarantee:
//   - Next blocks until a frame is available, the stream ends, or ctx is done
//   - Next returns ErrEndOfStream (possibly wrapped) once the device stops producing
//   - the returned Frame belongs to the caller
//
// Opening the device is a one-time step performed by the concrete backend
// before the source is handed to a Runner.
type FrameSource interface {
	// Next returns the next color frame.
	//
	// A nil frame with a nil error is treated the same as ErrEndOfStream.
	Next(ctx context.Context) (*Frame, error)
}

// GrayConverter turns a BGR frame into an 8-bit grayscale raster
type GrayConverter interface {
	ToGray(f *Frame) (*Gray, error)
}

// EdgeDetector is the edge-detection collaborator
//
// Detect must not modify its input and must return a newly allocated buffer of
// identical dimensions. Ownership of the result moves to the caller.
type EdgeDetector interface {
	Detect(g *Gray, params EdgeParams) (*Gray, error)
}

// RasterWriter persists a grayscale raster as a binary PGM file
type RasterWriter interface {
	WritePGM(path string, g *Gray) error
}

// StopSignal is the cooperative "stop now" token.
//
// StopRequested is polled before every capture and must not block for longer
// than a short, bounded key poll.
type StopSignal interface {
	StopRequested() bool
}

// AdvanceSignal gates the bursts of a stepped run.
//
// WaitAdvance blocks until the operator asks for the next burst (true) or the
// run should end (false).
type AdvanceSignal interface {
	WaitAdvance(ctx context.Context) bool
}

// Observer receives each raw frame and each saved edge image, typically to
// render a preview. Observers must not retain the buffers.
type Observer interface {
	ObserveRaw(f *Frame)
	ObserveEdge(g *Gray)
}

type noStop struct{}

func (noStop) StopRequested() bool { return false }

type noObserver struct{}

func (noObserver) ObserveRaw(*Frame) {}
func (noObserver) ObserveEdge(*Gray) {}

type observerList []Observer

// Observers fans every callback out to each non-nil observer, in order.
func Observers(obs ...Observer) Observer {
	list := make(observerList, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

func (l observerList) ObserveRaw(f *Frame) {
	for _, o := range l {
		o.ObserveRaw(f)
	}
}

func (l observerList) ObserveEdge(g *Gray) {
	for _, o := range l {
		o.ObserveEdge(g)
	}
}
