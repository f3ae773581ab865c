package cameracanny

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Collaborators groups the external pieces a Runner sequences
type Collaborators struct {
	Source    FrameSource
	Converter GrayConverter
	Detector  EdgeDetector
	Writer    RasterWriter
}

// Option customizes a Runner
type Option func(*Runner)

// WithStopSignal sets the "stop now" token checked before every capture.
func WithStopSignal(s StopSignal) Option {
	return func(r *Runner) {
		if s != nil {
			r.stop = s
		}
	}
}

// WithObserver sets the preview observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithWallClock replaces the monotonic wall clock.
func WithWallClock(c WallClock) Option {
	return func(r *Runner) {
		if c != nil {
			r.wall = c
		}
	}
}

// WithCPUClock replaces the process CPU clock.
func WithCPUClock(c CPUClock) Option {
	return func(r *Runner) {
		if c != nil {
			r.cpu = c
		}
	}
}

// WithOutput sets where the per-frame "Saved ..." lines go (default stdout).
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// Runner is the frame acquisition/processing controller
//
// A Runner drives one goroutine through capture → grayscale → edge detection →
// save, strictly in sequence. It is not safe for concurrent use and is meant
// for a single Run or RunStepped call.
type Runner struct {
	cfg      RunConfig
	c        Collaborators
	stop     StopSignal
	observer Observer
	wall     WallClock
	cpu      CPUClock
	out      io.Writer
	runID    string
}

// NewRunner validates cfg and the collaborators and returns a Runner.
func NewRunner(cfg RunConfig, c Collaborators, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.Source == nil || c.Converter == nil || c.Detector == nil || c.Writer == nil {
		return nil, errors.New("camera-canny: source, converter, detector and writer are required")
	}

	r := &Runner{
		cfg:      cfg,
		c:        c,
		stop:     noStop{},
		observer: noObserver{},
		wall:     SystemWallClock(),
		cpu:      ProcessCPUClock(),
		out:      os.Stdout,
		runID:    uuid.New().String(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID returns the identifier reported in logs and in the Summary.
func (r *Runner) RunID() string { return r.runID }

// loopState is owned exclusively by the control goroutine
type loopState struct {
	seq       int
	processed int
	start     runStart
	totals    cpuTotals
}

// Run executes the duration- or count-bounded loop until a clean stop.
//
// The returned error is non-nil only when the run could not start (the output
// directory could not be created). End of stream, failed writes and
// cancellation all end the loop cleanly and still produce a Summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	st, err := r.begin()
	if err != nil {
		return Summary{}, err
	}

	reason := StopNone
	for reason == StopNone {
		if reason = r.checkTermination(ctx, st); reason != StopNone {
			break
		}
		reason = r.iterate(ctx, st)
	}

	return r.finish(st, reason), nil
}

// stepState is the outer state of a stepped run
type stepState int

const (
	waitingForAdvance stepState = iota
	runningBurst
)

func (s stepState) String() string {
	switch s {
	case waitingForAdvance:
		return "waiting-for-advance"
	case runningBurst:
		return "running-burst"
	default:
		return "unknown"
	}
}

// stepMachine tracks WaitingForAdvance / RunningBurst(remaining)
type stepMachine struct {
	state     stepState
	burst     int
	remaining int
}

func newStepMachine(burst int) *stepMachine {
	return &stepMachine{state: waitingForAdvance, burst: burst}
}

// advanced moves to RunningBurst(burst).
func (m *stepMachine) advanced() {
	m.state = runningBurst
	m.remaining = m.burst
}

// completed records one finished iteration and returns to
// WaitingForAdvance when the burst is used up.
func (m *stepMachine) completed() {
	m.remaining--
	if m.remaining <= 0 {
		m.remaining = 0
		m.state = waitingForAdvance
	}
}

// RunStepped executes the interactive variant: wait for advance, then run a
// burst of up to burst iterations, repeat.
//
// Every inner iteration uses the same termination checks and per-frame
// contract as Run. A declined advance ends the run as a cancellation.
func (r *Runner) RunStepped(ctx context.Context, advance AdvanceSignal, burst int) (Summary, error) {
	if advance == nil {
		return Summary{}, errors.New("camera-canny: advance signal is required for a stepped run")
	}
	if burst < 1 {
		return Summary{}, fmt.Errorf("%w: step burst must be >= 1, got %d", ErrInvalidConfig, burst)
	}

	st, err := r.begin()
	if err != nil {
		return Summary{}, err
	}

	m := newStepMachine(burst)
	reason := StopNone
	for reason == StopNone {
		switch m.state {
		case waitingForAdvance:
			if reason = r.checkTermination(ctx, st); reason != StopNone {
				break
			}
			slog.Debug("camera-canny: waiting for advance",
				"run_id", r.runID,
				"frames_processed", st.processed,
			)
			if !advance.WaitAdvance(ctx) {
				reason = StopCancelled
				break
			}
			m.advanced()

		case runningBurst:
			if reason = r.checkTermination(ctx, st); reason != StopNone {
				break
			}
			if reason = r.iterate(ctx, st); reason != StopNone {
				break
			}
			m.completed()
		}
	}

	return r.finish(st, reason), nil
}

// begin guarantees the output directory and takes the two start stamps.
func (r *Runner) begin() (*loopState, error) {
	if err := EnsureOutputDir(r.cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("camera-canny: %w", err)
	}

	slog.Info("camera-canny: run starting",
		"run_id", r.runID,
		"sigma", r.cfg.Edge.Sigma,
		"tlow", r.cfg.Edge.TLow,
		"thigh", r.cfg.Edge.THigh,
		"mode", r.cfg.Mode.String(),
		"value", r.cfg.Value,
		"output_dir", r.cfg.OutputDir,
	)

	return &loopState{
		seq:   FirstSequence,
		start: startRun(r.wall, r.cpu),
	}, nil
}

// checkTermination evaluates, in order: frame limit, deadline, stop signal.
func (r *Runner) checkTermination(ctx context.Context, st *loopState) StopReason {
	switch r.cfg.Mode {
	case ModeFrames:
		if st.processed >= r.cfg.FrameLimit() {
			return StopFrameLimit
		}
	case ModeSeconds:
		if st.start.wallElapsed(r.wall) >= r.cfg.Value {
			return StopDeadline
		}
	}

	if ctx.Err() != nil || r.stop.StopRequested() {
		return StopCancelled
	}
	return StopNone
}

// iterate runs capture → convert → detect → save for one frame.
//
// It returns StopNone when the frame was saved and the loop may continue.
func (r *Runner) iterate(ctx context.Context, st *loopState) StopReason {
	cpuBefore := r.cpu.Seconds()
	frame, err := r.c.Source.Next(ctx)
	cpuAfter := r.cpu.Seconds()
	captureCost := cpuDelta(cpuBefore, cpuAfter)

	if err != nil || frame == nil {
		return r.captureStopped(ctx, err)
	}
	defer releaseFrame(frame)

	r.observer.ObserveRaw(frame)

	gray, err := r.c.Converter.ToGray(frame)
	if err != nil {
		slog.Error("camera-canny: grayscale conversion failed, stopping",
			"run_id", r.runID,
			"seq", st.seq,
			"trace_id", frame.TraceID,
			"error", err,
		)
		return StopProcessFailed
	}

	cpuBefore = r.cpu.Seconds()
	edge, err := r.c.Detector.Detect(gray, r.cfg.Edge)
	cpuAfter = r.cpu.Seconds()
	processCost := cpuDelta(cpuBefore, cpuAfter)
	gray.Release()

	if err == nil && (edge == nil || edge.Width != gray.Width || edge.Height != gray.Height) {
		err = fmt.Errorf("edge buffer does not match input %dx%d", gray.Width, gray.Height)
	}
	if err != nil {
		edge.Release()
		slog.Error("camera-canny: edge detection failed, stopping",
			"run_id", r.runID,
			"seq", st.seq,
			"trace_id", frame.TraceID,
			"error", err,
		)
		return StopProcessFailed
	}

	path := FramePath(r.cfg.OutputDir, st.seq)
	if err := r.c.Writer.WritePGM(path, edge); err != nil {
		edge.Release()
		slog.Error("camera-canny: error writing frame, stopping",
			"run_id", r.runID,
			"path", path,
			"error", err,
		)
		return StopWriteFailed
	}

	r.observer.ObserveEdge(edge)
	edge.Release()

	cost := phaseCost{capture: captureCost, process: processCost}
	st.totals.add(cost)
	st.seq++
	st.processed++

	fmt.Fprintf(r.out, "Saved %s | CPU capture=%.6f s, CPU process=%.6f s\n",
		path, cost.capture, cost.process)

	slog.Debug("camera-canny: frame saved",
		"run_id", r.runID,
		"path", path,
		"capture_seq", frame.Seq,
		"trace_id", frame.TraceID,
	)
	return StopNone
}

// captureStopped classifies a missing frame.
func (r *Runner) captureStopped(ctx context.Context, err error) StopReason {
	switch {
	case ctx.Err() != nil && !errors.Is(err, ErrEndOfStream):
		slog.Info("camera-canny: capture interrupted by cancellation", "run_id", r.runID)
		return StopCancelled
	case err == nil || errors.Is(err, ErrEndOfStream):
		slog.Warn("camera-canny: empty frame received, stopping", "run_id", r.runID)
	default:
		slog.Warn("camera-canny: capture failed, stopping", "run_id", r.runID, "error", err)
	}
	return StopEndOfStream
}

// finish takes the end stamps and builds the Summary.
func (r *Runner) finish(st *loopState, reason StopReason) Summary {
	s := ComputeSummary(
		st.processed,
		st.start.wallElapsed(r.wall),
		st.start.cpuElapsed(r.cpu),
		st.totals.capture,
		st.totals.process,
	)
	s.RunID = r.runID
	s.NextSequence = st.seq
	s.OutputDir = r.cfg.OutputDir
	s.StopReason = reason.String()

	slog.Info("camera-canny: run finished",
		"run_id", r.runID,
		"frames_processed", s.FramesProcessed,
		"stop_reason", s.StopReason,
		"fps_wall", fmt.Sprintf("%.2f", s.FPSWall),
		"fps_cpu", fmt.Sprintf("%.2f", s.FPSCPU),
	)
	return s
}

func releaseFrame(f *Frame) {
	f.Data = nil
}
