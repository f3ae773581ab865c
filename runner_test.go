package cameracanny

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/camera-canny/internal/pgm"
)

var testEdge = EdgeParams{Sigma: 1.0, TLow: 0.1, THigh: 0.3}

type runnerFixture struct {
	cfg       RunConfig
	source    *fakeSource
	converter *averageConverter
	detector  *invertDetector
	writer    *failingWriter
	wall      *stepWallClock
	cpu       *tickCPUClock
	out       *bytes.Buffer
}

func newFixture(t *testing.T, mode Mode, value float64) *runnerFixture {
	t.Helper()

	cfg, err := NewRunConfig(testEdge, mode, value, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("NewRunConfig() error = %v", err)
	}
	return &runnerFixture{
		cfg:       cfg,
		source:    &fakeSource{width: 4, height: 3, limit: -1},
		converter: &averageConverter{},
		detector:  &invertDetector{},
		writer:    &failingWriter{},
		wall:      newStepWallClock(10 * time.Millisecond),
		cpu:       &tickCPUClock{tick: 0.001},
		out:       &bytes.Buffer{},
	}
}

func (f *runnerFixture) runner(t *testing.T, opts ...Option) *Runner {
	t.Helper()

	base := []Option{
		WithWallClock(f.wall),
		WithCPUClock(f.cpu),
		WithOutput(f.out),
		WithRunID("test-run"),
	}
	r, err := NewRunner(f.cfg, Collaborators{
		Source:    f.source,
		Converter: f.converter,
		Detector:  f.detector,
		Writer:    f.writer,
	}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func savedFrames(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "frame*.pgm"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names
}

func TestNewRunner_Validation(t *testing.T) {
	good := Collaborators{
		Source:    &fakeSource{},
		Converter: &averageConverter{},
		Detector:  &invertDetector{},
		Writer:    &failingWriter{},
	}
	cfg := RunConfig{Edge: testEdge, Mode: ModeFrames, Value: 1, OutputDir: "out"}

	t.Run("invalid config", func(t *testing.T) {
		bad := cfg
		bad.Value = 0
		if _, err := NewRunner(bad, good); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewRunner() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("missing collaborator", func(t *testing.T) {
		c := good
		c.Writer = nil
		if _, err := NewRunner(cfg, c); err == nil {
			t.Error("NewRunner() expected error for missing writer")
		}
	})

	t.Run("generated run id", func(t *testing.T) {
		r, err := NewRunner(cfg, good)
		if err != nil {
			t.Fatalf("NewRunner() error = %v", err)
		}
		if len(r.RunID()) != 36 {
			t.Errorf("RunID() = %q, want a UUID", r.RunID())
		}
	})
}

func TestRun_FrameLimit(t *testing.T) {
	f := newFixture(t, ModeFrames, 3)

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.FramesProcessed != 3 {
		t.Errorf("FramesProcessed = %d, want 3", s.FramesProcessed)
	}
	if s.NextSequence != 4 {
		t.Errorf("NextSequence = %d, want 4", s.NextSequence)
	}
	if s.StopReason != StopFrameLimit.String() {
		t.Errorf("StopReason = %q, want %q", s.StopReason, StopFrameLimit)
	}
	if s.RunID != "test-run" || s.OutputDir != f.cfg.OutputDir {
		t.Errorf("RunID/OutputDir = %q/%q", s.RunID, s.OutputDir)
	}

	want := []string{"frame001.pgm", "frame002.pgm", "frame003.pgm"}
	got := savedFrames(t, f.cfg.OutputDir)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("saved files = %v, want %v", got, want)
	}

	// The capture that would have produced a fourth frame must not happen.
	if f.source.calls != 3 {
		t.Errorf("source.Next called %d times, want 3", f.source.calls)
	}

	lines := strings.Split(strings.TrimSpace(f.out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d output lines, want 3:\n%s", len(lines), f.out.String())
	}
	wantPrefix := "Saved " + filepath.Join(f.cfg.OutputDir, "frame001.pgm") + " | CPU capture="
	if !strings.HasPrefix(lines[0], wantPrefix) {
		t.Errorf("line = %q, want prefix %q", lines[0], wantPrefix)
	}
}

func TestRun_SavesEdgeRaster(t *testing.T) {
	f := newFixture(t, ModeFrames, 1)

	if _, err := f.runner(t).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	w, h, pix, err := pgm.ReadFile(FramePath(f.cfg.OutputDir, 1))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if w != 4 || h != 3 || len(pix) != 12 {
		t.Errorf("saved raster = %dx%d (%d bytes), want 4x3", w, h, len(pix))
	}
}

func TestRun_DeadlineFromElapsedTime(t *testing.T) {
	f := newFixture(t, ModeSeconds, 1)
	f.wall = newStepWallClock(300 * time.Millisecond)

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Checks observe 0.3, 0.6, 0.9 (continue) and 1.2 (stop).
	if s.FramesProcessed != 3 {
		t.Errorf("FramesProcessed = %d, want 3", s.FramesProcessed)
	}
	if s.StopReason != StopDeadline.String() {
		t.Errorf("StopReason = %q, want %q", s.StopReason, StopDeadline)
	}
	if s.TotalWall < 1.0 {
		t.Errorf("TotalWall = %v, want >= 1.0", s.TotalWall)
	}
	if math.Abs(s.FPSWall-float64(s.FramesProcessed)/s.TotalWall) > 1e-9 {
		t.Errorf("FPSWall = %v, inconsistent with frames/wall", s.FPSWall)
	}
}

func TestRun_EmptyFirstFrame(t *testing.T) {
	f := newFixture(t, ModeFrames, 5)
	f.source.emptyAt = 1

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.FramesProcessed != 0 || s.NextSequence != 1 {
		t.Errorf("FramesProcessed/NextSequence = %d/%d, want 0/1", s.FramesProcessed, s.NextSequence)
	}
	if s.StopReason != StopEndOfStream.String() {
		t.Errorf("StopReason = %q, want %q", s.StopReason, StopEndOfStream)
	}
	if s.FPSWall != 0 || s.FPSCPU != 0 {
		t.Errorf("FPS = %v/%v, want 0/0", s.FPSWall, s.FPSCPU)
	}
	if got := savedFrames(t, f.cfg.OutputDir); len(got) != 0 {
		t.Errorf("saved files = %v, want none", got)
	}
	if f.out.Len() != 0 {
		t.Errorf("unexpected output %q", f.out.String())
	}
}

func TestRun_EmptySecondFrame(t *testing.T) {
	f := newFixture(t, ModeFrames, 5)
	f.source.emptyAt = 2

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.FramesProcessed != 1 || s.NextSequence != 2 {
		t.Errorf("FramesProcessed/NextSequence = %d/%d, want 1/2", s.FramesProcessed, s.NextSequence)
	}
	got := savedFrames(t, f.cfg.OutputDir)
	if len(got) != 1 || got[0] != "frame001.pgm" {
		t.Errorf("saved files = %v, want [frame001.pgm]", got)
	}
}

func TestRun_EndOfStreamMidRun(t *testing.T) {
	f := newFixture(t, ModeFrames, 10)
	f.source.limit = 4

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.FramesProcessed != 4 || s.StopReason != StopEndOfStream.String() {
		t.Errorf("got %d frames (%s), want 4 (end-of-stream)", s.FramesProcessed, s.StopReason)
	}
}

func TestRun_WriteFailureStops(t *testing.T) {
	f := newFixture(t, ModeFrames, 5)
	f.writer.failAt = 2

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.FramesProcessed != 1 || s.NextSequence != 2 {
		t.Errorf("FramesProcessed/NextSequence = %d/%d, want 1/2", s.FramesProcessed, s.NextSequence)
	}
	if s.StopReason != StopWriteFailed.String() {
		t.Errorf("StopReason = %q, want %q", s.StopReason, StopWriteFailed)
	}
	got := savedFrames(t, f.cfg.OutputDir)
	if len(got) != 1 || got[0] != "frame001.pgm" {
		t.Errorf("saved files = %v, want [frame001.pgm]", got)
	}
	if strings.Count(f.out.String(), "Saved ") != 1 {
		t.Errorf("output = %q, want exactly one Saved line", f.out.String())
	}
}

func TestRun_WriteFailsOnFourthFrame(t *testing.T) {
	f := newFixture(t, ModeFrames, 10)
	f.writer.failAt = 4

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.FramesProcessed != 3 || s.NextSequence != 4 {
		t.Errorf("FramesProcessed/NextSequence = %d/%d, want 3/4", s.FramesProcessed, s.NextSequence)
	}
	want := []string{"frame001.pgm", "frame002.pgm", "frame003.pgm"}
	got := savedFrames(t, f.cfg.OutputDir)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("saved files = %v, want %v", got, want)
	}
}

func TestRun_ProcessingFailureStops(t *testing.T) {
	tests := []struct {
		name      string
		configure func(f *runnerFixture)
		wantSaved int
	}{
		{
			name:      "grayscale conversion",
			configure: func(f *runnerFixture) { f.converter.fail = true },
			wantSaved: 0,
		},
		{
			name:      "edge detection",
			configure: func(f *runnerFixture) { f.detector.failAt = 3 },
			wantSaved: 2,
		},
		{
			name:      "mismatched edge buffer",
			configure: func(f *runnerFixture) { f.detector.wrongDim = true },
			wantSaved: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ModeFrames, 5)
			tt.configure(f)

			s, err := f.runner(t).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if s.FramesProcessed != tt.wantSaved {
				t.Errorf("FramesProcessed = %d, want %d", s.FramesProcessed, tt.wantSaved)
			}
			if s.StopReason != StopProcessFailed.String() {
				t.Errorf("StopReason = %q, want %q", s.StopReason, StopProcessFailed)
			}
			if got := savedFrames(t, f.cfg.OutputDir); len(got) != tt.wantSaved {
				t.Errorf("saved files = %v, want %d", got, tt.wantSaved)
			}
		})
	}
}

func TestRun_StopSignal(t *testing.T) {
	f := newFixture(t, ModeSeconds, 3600)
	stop := &stopAfter{n: 3}

	s, err := f.runner(t, WithStopSignal(stop)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Polls one and two let two frames through, poll three stops.
	if s.FramesProcessed != 2 {
		t.Errorf("FramesProcessed = %d, want 2", s.FramesProcessed)
	}
	if s.StopReason != StopCancelled.String() {
		t.Errorf("StopReason = %q, want %q", s.StopReason, StopCancelled)
	}
	if got := savedFrames(t, f.cfg.OutputDir); len(got) != 2 {
		t.Errorf("saved files = %v, want 2", got)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, ModeFrames, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := f.runner(t).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.FramesProcessed != 0 || s.StopReason != StopCancelled.String() {
		t.Errorf("got %d frames (%s), want 0 (cancelled)", s.FramesProcessed, s.StopReason)
	}
	if f.source.calls != 0 {
		t.Errorf("source.Next called %d times after cancellation", f.source.calls)
	}
}

func TestRun_OutputDirIsFile(t *testing.T) {
	f := newFixture(t, ModeFrames, 1)
	if err := os.WriteFile(f.cfg.OutputDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.runner(t).Run(context.Background()); err == nil {
		t.Fatal("Run() expected error when output path is a file")
	}
	if f.source.calls != 0 {
		t.Errorf("source.Next called %d times, want 0", f.source.calls)
	}
}

func TestRun_OutputDirAlreadyExists(t *testing.T) {
	f := newFixture(t, ModeFrames, 2)
	if err := os.Mkdir(f.cfg.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// A stale file from an earlier run is overwritten.
	if err := os.WriteFile(FramePath(f.cfg.OutputDir, 1), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.FramesProcessed != 2 {
		t.Errorf("FramesProcessed = %d, want 2", s.FramesProcessed)
	}
	if _, _, _, err := pgm.ReadFile(FramePath(f.cfg.OutputDir, 1)); err != nil {
		t.Errorf("frame001.pgm was not overwritten: %v", err)
	}
}

func TestRun_ReleasesBuffers(t *testing.T) {
	f := newFixture(t, ModeFrames, 3)
	f.writer.failAt = 3

	if _, err := f.runner(t).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, g := range f.converter.outputs {
		if !g.Released() {
			t.Errorf("gray buffer %d not released", i)
		}
	}
	for i, g := range f.detector.outputs {
		if !g.Released() {
			t.Errorf("edge buffer %d not released", i)
		}
	}
}

func TestRun_ObserverSeesSavedFrames(t *testing.T) {
	f := newFixture(t, ModeFrames, 4)
	obs := &recordingObserver{}

	if _, err := f.runner(t, WithObserver(obs)).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if obs.raw != 4 || obs.edge != 4 {
		t.Errorf("observer raw/edge = %d/%d, want 4/4", obs.raw, obs.edge)
	}
}

func TestRun_CPUAccounting(t *testing.T) {
	f := newFixture(t, ModeFrames, 5)

	s, err := f.runner(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Each phase spans exactly one clock tick.
	const eps = 1e-9
	if math.Abs(s.CPUCapture-0.005) > eps {
		t.Errorf("CPUCapture = %v, want 0.005", s.CPUCapture)
	}
	if math.Abs(s.CPUProcess-0.005) > eps {
		t.Errorf("CPUProcess = %v, want 0.005", s.CPUProcess)
	}
	if s.TotalCPU < s.CPUCapture+s.CPUProcess {
		t.Errorf("TotalCPU = %v, less than phase sum %v", s.TotalCPU, s.CPUCapture+s.CPUProcess)
	}
}

func TestRunStepped_Bursts(t *testing.T) {
	tests := []struct {
		name         string
		value        float64
		burst        int
		grants       int
		stopAt       int // stop signal poll that first returns true, 0 for never
		wantFrames   int
		wantReason   StopReason
		wantAdvances int
	}{
		{"limit reached inside burst", 5, 2, 10, 0, 5, StopFrameLimit, 3},
		{"limit reached at burst boundary", 4, 2, 10, 0, 4, StopFrameLimit, 2},
		{"advance declined", 10, 3, 1, 0, 3, StopCancelled, 2},
		{"declined immediately", 10, 1, 0, 0, 0, StopCancelled, 1},
		// Poll 1 is the waiting check, polls 2 and 3 are burst iterations.
		{"stop inside burst", 100, 10, 10, 3, 1, StopCancelled, 1},
		{"stop while waiting for advance", 100, 10, 10, 1, 0, StopCancelled, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ModeFrames, tt.value)
			adv := &scriptedAdvance{grants: tt.grants}

			var opts []Option
			if tt.stopAt > 0 {
				opts = append(opts, WithStopSignal(&stopAfter{n: tt.stopAt}))
			}

			s, err := f.runner(t, opts...).RunStepped(context.Background(), adv, tt.burst)
			if err != nil {
				t.Fatalf("RunStepped() error = %v", err)
			}
			if s.FramesProcessed != tt.wantFrames {
				t.Errorf("FramesProcessed = %d, want %d", s.FramesProcessed, tt.wantFrames)
			}
			if s.StopReason != tt.wantReason.String() {
				t.Errorf("StopReason = %q, want %q", s.StopReason, tt.wantReason)
			}
			if adv.calls != tt.wantAdvances {
				t.Errorf("WaitAdvance called %d times, want %d", adv.calls, tt.wantAdvances)
			}
			if s.NextSequence != s.FramesProcessed+1 {
				t.Errorf("NextSequence = %d, want %d", s.NextSequence, s.FramesProcessed+1)
			}

			got := savedFrames(t, f.cfg.OutputDir)
			if len(got) != tt.wantFrames {
				t.Fatalf("saved files = %v, want %d", got, tt.wantFrames)
			}
			for i, name := range got {
				if want := FrameName(i + 1); name != want {
					t.Errorf("saved file %d = %s, want %s", i, name, want)
				}
			}
		})
	}
}

func TestRunStepped_InvalidArguments(t *testing.T) {
	f := newFixture(t, ModeFrames, 1)
	r := f.runner(t)

	if _, err := r.RunStepped(context.Background(), nil, 1); err == nil {
		t.Error("RunStepped() expected error for nil advance signal")
	}
	if _, err := r.RunStepped(context.Background(), &scriptedAdvance{}, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RunStepped() error = %v, want ErrInvalidConfig", err)
	}
}

func TestStepMachine(t *testing.T) {
	m := newStepMachine(2)
	if m.state != waitingForAdvance {
		t.Fatalf("initial state = %v, want %v", m.state, waitingForAdvance)
	}

	m.advanced()
	if m.state != runningBurst || m.remaining != 2 {
		t.Fatalf("after advance: %v remaining=%d", m.state, m.remaining)
	}

	m.completed()
	if m.state != runningBurst || m.remaining != 1 {
		t.Fatalf("after one iteration: %v remaining=%d", m.state, m.remaining)
	}

	m.completed()
	if m.state != waitingForAdvance || m.remaining != 0 {
		t.Fatalf("after burst: %v remaining=%d", m.state, m.remaining)
	}

	if got := stepState(9).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
