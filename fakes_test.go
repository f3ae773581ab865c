package cameracanny

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeSource delivers frames scripted by size, then ErrEndOfStream.
// A limit < 0 means unlimited.
type fakeSource struct {
	width, height int
	limit         int
	emptyAt       int // 1-based call that returns nil, nil (0 = never)

	mu    sync.Mutex
	calls int
}

func (s *fakeSource) Next(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls++
	if s.emptyAt > 0 && s.calls == s.emptyAt {
		return nil, nil
	}
	if s.limit >= 0 && s.calls > s.limit {
		return nil, ErrEndOfStream
	}

	data := make([]byte, s.width*s.height*3)
	for i := range data {
		data[i] = byte(s.calls + i)
	}
	return &Frame{
		Seq:       uint64(s.calls),
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      data,
		TraceID:   "trace",
	}, nil
}

// averageConverter averages the three channels.
type averageConverter struct {
	fail    bool
	outputs []*Gray
}

func (c *averageConverter) ToGray(f *Frame) (*Gray, error) {
	if c.fail {
		return nil, errors.New("convert failed")
	}
	g := NewGray(f.Width, f.Height)
	for i := range g.Pix {
		p := f.Data[i*3 : i*3+3]
		g.Pix[i] = byte((int(p[0]) + int(p[1]) + int(p[2])) / 3)
	}
	c.outputs = append(c.outputs, g)
	return g, nil
}

// invertDetector returns the inverted input.
type invertDetector struct {
	failAt   int // 1-based call (0 = never)
	wrongDim bool

	calls   int
	inputs  []*Gray
	outputs []*Gray
}

func (d *invertDetector) Detect(g *Gray, _ EdgeParams) (*Gray, error) {
	d.calls++
	d.inputs = append(d.inputs, g)
	if d.failAt > 0 && d.calls == d.failAt {
		return nil, errors.New("detect failed")
	}

	w, h := g.Width, g.Height
	if d.wrongDim {
		w++
	}
	out := NewGray(w, h)
	for i := range g.Pix {
		if i < len(out.Pix) {
			out.Pix[i] = 255 - g.Pix[i]
		}
	}
	d.outputs = append(d.outputs, out)
	return out, nil
}

// failingWriter delegates to PGMWriter except on the failAt-th call.
type failingWriter struct {
	failAt int
	calls  int
	paths  []string
}

func (w *failingWriter) WritePGM(path string, g *Gray) error {
	w.calls++
	if w.failAt > 0 && w.calls == w.failAt {
		return errors.New("disk full")
	}
	w.paths = append(w.paths, path)
	return PGMWriter{}.WritePGM(path, g)
}

// stepWallClock returns base, base+step, base+2*step, ... on successive calls.
type stepWallClock struct {
	t    time.Time
	step time.Duration
}

func newStepWallClock(step time.Duration) *stepWallClock {
	return &stepWallClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepWallClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// tickCPUClock advances by tick on every read.
type tickCPUClock struct {
	now  float64
	tick float64
}

func (c *tickCPUClock) Seconds() float64 {
	c.now += c.tick
	return c.now
}

// stopAfter raises the stop signal on the n-th poll (1-based).
type stopAfter struct {
	n     int
	polls int
}

func (s *stopAfter) StopRequested() bool {
	s.polls++
	return s.polls >= s.n
}

// scriptedAdvance answers WaitAdvance with grants true replies, then false.
type scriptedAdvance struct {
	grants int
	calls  int
}

func (a *scriptedAdvance) WaitAdvance(context.Context) bool {
	a.calls++
	return a.calls <= a.grants
}

type recordingObserver struct {
	raw, edge int
}

func (o *recordingObserver) ObserveRaw(*Frame) { o.raw++ }
func (o *recordingObserver) ObserveEdge(*Gray) { o.edge++ }
