package vision

import (
	"context"
	"log/slog"

	cameracanny "github.com/e7canasta/camera-canny"
	"gocv.io/x/gocv"
)

const (
	// RawWindow and EdgeWindow are the preview window titles
	RawWindow  = "[RAW]"
	EdgeWindow = "[EDGE]"

	escKey = 27
	// noKey is what WaitKey returns when the delay expires
	noKey = -1

	advancePollMs = 100
)

// Preview shows raw and edge images and reads the keyboard through HighGUI.
//
// It implements cameracanny.Observer, cameracanny.StopSignal and
// cameracanny.AdvanceSignal. ESC is latched: once seen, every later
// StopRequested returns true and WaitAdvance returns false. Any other key
// seen while polling is kept for the next WaitAdvance.
type Preview struct {
	raw  *gocv.Window
	edge *gocv.Window

	escaped bool
	pending bool
	closed  bool
}

// NewPreview opens the two windows.
func NewPreview() *Preview {
	p := &Preview{
		raw:  gocv.NewWindow(RawWindow),
		edge: gocv.NewWindow(EdgeWindow),
	}
	slog.Info("vision: preview opened", "windows", []string{RawWindow, EdgeWindow})
	return p
}

// ObserveRaw shows a BGR frame in the raw window.
func (p *Preview) ObserveRaw(f *cameracanny.Frame) {
	if p.closed || f == nil {
		return
	}
	n := f.Width * f.Height * 3
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) < n {
		return
	}
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data[:n])
	if err != nil {
		slog.Warn("vision: preview skipped raw frame", "error", err)
		return
	}
	defer m.Close()
	p.raw.IMShow(m)
}

// ObserveEdge shows an edge raster and polls the keyboard once.
func (p *Preview) ObserveEdge(g *cameracanny.Gray) {
	if p.closed || g.Released() {
		return
	}
	m, err := gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8UC1, g.Pix[:g.Width*g.Height])
	if err != nil {
		slog.Warn("vision: preview skipped edge frame", "error", err)
		return
	}
	defer m.Close()
	p.edge.IMShow(m)
	p.poll(1)
}

// StopRequested polls for ESC without blocking for more than a millisecond.
func (p *Preview) StopRequested() bool {
	if !p.closed {
		p.poll(1)
	}
	return p.escaped
}

// WaitAdvance blocks until a key is pressed, unless one was latched by an
// earlier poll. ESC ends the run, any other key advances.
func (p *Preview) WaitAdvance(ctx context.Context) bool {
	for !p.escaped && !p.closed {
		if p.pending {
			p.pending = false
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.handleKey(p.edge.WaitKey(advancePollMs))
	}
	return false
}

// Close destroys both windows. Safe to call more than once.
func (p *Preview) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	errRaw := p.raw.Close()
	errEdge := p.edge.Close()
	if errRaw != nil {
		return errRaw
	}
	return errEdge
}

func (p *Preview) poll(delayMs int) {
	p.handleKey(p.edge.WaitKey(delayMs))
}

func (p *Preview) handleKey(key int) {
	switch {
	case key == noKey:
	case isEscape(key):
		if !p.escaped {
			slog.Info("vision: ESC pressed, stopping")
		}
		p.escaped = true
	default:
		p.pending = true
	}
}

// isEscape reports whether a WaitKey result is ESC. Some HighGUI backends
// set modifier bits above the low byte.
func isEscape(key int) bool {
	return key != noKey && key&0xff == escKey
}
