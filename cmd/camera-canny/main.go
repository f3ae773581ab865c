package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cameracanny "github.com/e7canasta/camera-canny"
	"github.com/e7canasta/camera-canny/control"
	"github.com/e7canasta/camera-canny/internal/config"
	"github.com/e7canasta/camera-canny/internal/emitter"
	"github.com/e7canasta/camera-canny/internal/warmup"
	"github.com/e7canasta/camera-canny/vision"
	"github.com/google/uuid"
)

// Version information
const version = "v0.1.0"

func main() {
	os.Exit(run(filepath.Base(os.Args[0]), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is main without the process exit, returning the exit status.
func run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "YAML file with capture settings (optional)")
	backend := fs.String("backend", config.BackendGst, "Capture backend: gst, opencv, v4l2")
	device := fs.String("device", "/dev/video0", "V4L2 device node, or camera index for opencv")
	pipeline := fs.String("pipeline", "", "GStreamer launch string override (must end in appsink)")
	width := fs.Int("width", 640, "Capture width in pixels")
	height := fs.Int("height", 480, "Capture height in pixels")
	framerate := fs.Int("framerate", 0, "Capture framerate (0 = camera default)")
	preview := fs.Bool("preview", false, "Show [RAW] and [EDGE] windows (ESC stops)")
	step := fs.Int("step", 0, "Step mode: wait for a key before every burst of N frames (0 = off)")
	warmupFor := fs.Duration("warmup", 0, "Measure capture FPS stability before the run (e.g. 3s)")
	report := fs.String("report", "", "Write a run report (.yaml or .msgpack)")
	mqttBroker := fs.String("mqtt", "", "Publish frame events and the summary to this MQTT broker (host:port)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, cameracanny.Usage, prog)
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *showVersion {
		fmt.Fprintf(stdout, "camera-canny %s\n", version)
		return 0
	}

	// Set up logging (stdout carries the per-frame lines and the summary)
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if fs.NArg() < 6 {
		fmt.Fprintf(stderr, cameracanny.Usage, prog)
		return 1
	}

	runCfg, err := cameracanny.ParseArgs(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	// File first, explicit flags on top
	cfg := config.DefaultConfig()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Capture.Backend = *backend
		case "device":
			cfg.Capture.Device = *device
		case "pipeline":
			cfg.Capture.Pipeline = *pipeline
		case "width":
			cfg.Capture.Width = *width
		case "height":
			cfg.Capture.Height = *height
		case "framerate":
			cfg.Capture.Framerate = *framerate
		case "preview":
			cfg.Preview = *preview
		case "step":
			cfg.StepBurst = *step
		case "warmup":
			cfg.WarmupDurationS = warmupFor.Seconds()
		case "report":
			cfg.ReportPath = *report
		case "mqtt":
			cfg.MQTT.Broker = *mqttBroker
		}
	})
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "ERROR: invalid configuration: %v\n", err)
		return 1
	}

	if err := cameracanny.EnsureOutputDir(runCfg.OutputDir); err != nil {
		fmt.Fprintf(stderr, "ERROR: could not create/verify output directory: %s\n", runCfg.OutputDir)
		slog.Error("camera-canny: output directory", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT/SIGTERM stop the loop and unblock a pending capture
	var interrupted control.Cancel
	stopNotify := control.NotifySignals(&interrupted)
	defer stopNotify()
	go func() {
		select {
		case <-interrupted.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	cam, err := openCamera(ctx, cfg.Capture)
	if err != nil {
		slog.Error("camera-canny: failed to open camera", "backend", cfg.Capture.Backend, "error", err)
		fmt.Fprintf(stderr, "Failed to open camera pipeline.\n")
		return 1
	}
	defer func() {
		if err := cam.Close(); err != nil {
			slog.Error("camera-canny: error closing camera", "error", err)
		}
	}()

	if d := cfg.WarmupDuration(); d > 0 {
		if err := runWarmup(ctx, cam, d, stdout); err != nil {
			slog.Error("camera-canny: warm-up failed", "error", err)
			fmt.Fprintf(stderr, "Failed to open camera pipeline.\n")
			return 1
		}
	}

	runID := uuid.New().String()

	var (
		stops     = []cameracanny.StopSignal{&interrupted}
		observers []cameracanny.Observer
		advance   cameracanny.AdvanceSignal
		telemetry *emitter.MQTTEmitter
	)
	if cfg.Preview {
		p := vision.NewPreview()
		defer p.Close()
		stops = append(stops, p)
		observers = append(observers, p)
		advance = p
	}
	if cfg.MQTT.Enabled() {
		telemetry = emitter.NewMQTTEmitter(cfg.MQTT, runID)
		if err := telemetry.Connect(ctx); err != nil {
			// Telemetry is optional; the run goes on without it
			slog.Warn("camera-canny: mqtt telemetry disabled", "broker", cfg.MQTT.Broker, "error", err)
			telemetry.Disconnect()
			telemetry = nil
		} else {
			defer telemetry.Disconnect()
			observers = append(observers, telemetry)
		}
	}
	if cfg.StepBurst > 0 && advance == nil {
		advance = control.NewLineAdvance(stdin, stderr)
	}

	printBanner(stdout, runCfg, cfg)

	proc := vision.NewProcessor()
	runner, err := cameracanny.NewRunner(runCfg, cameracanny.Collaborators{
		Source:    cam,
		Converter: proc,
		Detector:  proc,
		Writer:    cameracanny.PGMWriter{},
	},
		cameracanny.WithStopSignal(control.Any(stops...)),
		cameracanny.WithObserver(cameracanny.Observers(observers...)),
		cameracanny.WithOutput(stdout),
		cameracanny.WithRunID(runID),
	)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	startedAt := time.Now()
	var summary cameracanny.Summary
	if cfg.StepBurst > 0 {
		summary, err = runner.RunStepped(ctx, advance, cfg.StepBurst)
	} else {
		summary, err = runner.Run(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	if err := cameracanny.WriteSummary(stdout, summary); err != nil {
		slog.Error("camera-canny: failed to print summary", "error", err)
	}

	r := cameracanny.NewReport(runCfg, cfg.Capture.Backend, startedAt, cfg.StepBurst, summary)
	if cfg.ReportPath != "" {
		if err := cameracanny.WriteReport(cfg.ReportPath, r); err != nil {
			slog.Error("camera-canny: failed to write report", "path", cfg.ReportPath, "error", err)
		} else {
			slog.Info("camera-canny: report written", "path", cfg.ReportPath)
		}
	}
	if telemetry != nil {
		if err := telemetry.PublishSummary(r); err != nil {
			slog.Error("camera-canny: failed to publish summary", "error", err)
		}
		stats := telemetry.Stats()
		slog.Info("camera-canny: telemetry",
			"published", stats.Published,
			"dropped", stats.Dropped,
			"errors", stats.Errors,
		)
	}

	slog.Info("camera-canny: run completed",
		"run_id", summary.RunID,
		"frames", summary.FramesProcessed,
		"stop_reason", summary.StopReason,
	)
	return 0
}

func printBanner(w io.Writer, rc cameracanny.RunConfig, cfg *config.Config) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║              camera-canny - Capture + Canny               ║\n")
	fmt.Fprintf(w, "║                      Version %s                       ║\n", version)
	fmt.Fprintf(w, "╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Fprintf(w, "[INFO] Running Canny capture+process\n")
	fmt.Fprintf(w, "  sigma=%g tlow=%g thigh=%g\n", rc.Edge.Sigma, rc.Edge.TLow, rc.Edge.THigh)
	fmt.Fprintf(w, "  mode=%s value=%g\n", rc.Mode, rc.Value)
	fmt.Fprintf(w, "  outdir=%s\n", rc.OutputDir)
	fmt.Fprintf(w, "  capture=%s %dx%d\n", cfg.Capture.Backend, cfg.Capture.Width, cfg.Capture.Height)
	if cfg.StepBurst > 0 {
		fmt.Fprintf(w, "  step=%d frames per advance\n", cfg.StepBurst)
	}
	if cfg.Preview {
		fmt.Fprintf(w, "Press ESC anytime to stop early.\n")
	} else {
		fmt.Fprintf(w, "Press Ctrl+C anytime to stop early.\n")
	}
}

func runWarmup(ctx context.Context, cam camera, d time.Duration, w io.Writer) error {
	wu, ok := cam.(warmer)
	if !ok {
		slog.Warn("camera-canny: backend does not support warm-up, skipping")
		return nil
	}

	fmt.Fprintf(w, "\nRunning warmup (%s) to measure stream stability...\n", d)
	stats, err := wu.Warmup(ctx, d)
	if err != nil && !errors.Is(err, warmup.ErrUnstable) {
		return err
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "╭─────────────────────────────────────────────────────────╮\n")
	fmt.Fprintf(w, "│ Warmup Complete\n")
	fmt.Fprintf(w, "├─────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(w, "│ Frames Received:    %6d frames\n", stats.FramesReceived)
	fmt.Fprintf(w, "│ Duration:           %6.1f seconds\n", stats.Duration.Seconds())
	fmt.Fprintf(w, "│ FPS Mean:           %6.2f fps\n", stats.FPSMean)
	fmt.Fprintf(w, "│ FPS StdDev:         %6.2f fps\n", stats.FPSStdDev)
	fmt.Fprintf(w, "│ FPS Range:          %6.1f - %.1f fps\n", stats.FPSMin, stats.FPSMax)
	fmt.Fprintf(w, "│ Jitter Mean:        %6.3f s\n", stats.JitterMean)
	fmt.Fprintf(w, "│ Jitter Max:         %6.3f s\n", stats.JitterMax)
	fmt.Fprintf(w, "│ Stable:             %6v\n", stats.IsStable)
	fmt.Fprintf(w, "╰─────────────────────────────────────────────────────────╯\n")

	if !stats.IsStable {
		fmt.Fprintf(w, "\nWARNING: Stream is unstable (high FPS variance or jitter)\n")
	}
	fmt.Fprintf(w, "\n")
	return nil
}
