package cameracanny

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrInvalidConfig is wrapped by every run configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// RunConfig is the immutable description of one run
type RunConfig struct {
	// Edge holds sigma, tlow and thigh for the edge detector
	Edge EdgeParams
	// Mode selects duration-bounded or count-bounded termination
	Mode Mode
	// Value is seconds (ModeSeconds) or frames (ModeFrames), always > 0
	Value float64
	// OutputDir receives the frameNNN.pgm files
	OutputDir string
}

// NewRunConfig builds a RunConfig with fail-fast validation
//
// Validation happens here, before any device or directory is touched:
//   - sigma must be > 0
//   - tlow and thigh must be fractions in [0, 1]
//   - value must be > 0 (and a whole number of frames in ModeFrames)
//   - the output directory must be named
func NewRunConfig(edge EdgeParams, mode Mode, value float64, outputDir string) (RunConfig, error) {
	cfg := RunConfig{
		Edge:      edge,
		Mode:      mode,
		Value:     value,
		OutputDir: outputDir,
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks every field of the configuration.
func (c RunConfig) Validate() error {
	if !isFinite(c.Edge.Sigma) || c.Edge.Sigma <= 0 {
		return fmt.Errorf("%w: sigma must be > 0, got %v", ErrInvalidConfig, c.Edge.Sigma)
	}
	if !isFraction(c.Edge.TLow) {
		return fmt.Errorf("%w: tlow must be within [0, 1], got %v", ErrInvalidConfig, c.Edge.TLow)
	}
	if !isFraction(c.Edge.THigh) {
		return fmt.Errorf("%w: thigh must be within [0, 1], got %v", ErrInvalidConfig, c.Edge.THigh)
	}

	switch c.Mode {
	case ModeSeconds, ModeFrames:
	default:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidConfig, c.Mode)
	}

	if !isFinite(c.Value) || c.Value <= 0 {
		return fmt.Errorf("%w: value must be > 0, got %v", ErrInvalidConfig, c.Value)
	}
	if c.Mode == ModeFrames && c.Value != math.Trunc(c.Value) {
		return fmt.Errorf("%w: frame count must be a whole number, got %v", ErrInvalidConfig, c.Value)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	return nil
}

// FrameLimit returns the frame count for ModeFrames, 0 otherwise.
func (c RunConfig) FrameLimit() int {
	if c.Mode != ModeFrames {
		return 0
	}
	return int(c.Value)
}

// Duration returns the run length for ModeSeconds, 0 otherwise.
func (c RunConfig) Duration() time.Duration {
	if c.Mode != ModeSeconds {
		return 0
	}
	return time.Duration(c.Value * float64(time.Second))
}

// Usage is printed when the positional arguments are missing
const Usage = `
USAGE:
  %[1]s [flags] sigma tlow thigh <mode:s|n> <value> <outdir>

Examples:
  %[1]s 1.0 0.1 0.3 s 5 camera_canny_img
  %[1]s 1.0 0.1 0.3 n 150 camera_canny_img

`

// ParseArgs parses the six positional arguments
// (sigma tlow thigh mode value outdir) into a validated RunConfig.
func ParseArgs(args []string) (RunConfig, error) {
	if len(args) < 6 {
		return RunConfig{}, fmt.Errorf("%w: expected 6 arguments, got %d", ErrInvalidConfig, len(args))
	}

	sigma, err := parseFloatArg("sigma", args[0])
	if err != nil {
		return RunConfig{}, err
	}
	tlow, err := parseFloatArg("tlow", args[1])
	if err != nil {
		return RunConfig{}, err
	}
	thigh, err := parseFloatArg("thigh", args[2])
	if err != nil {
		return RunConfig{}, err
	}
	mode, err := ParseMode(args[3])
	if err != nil {
		return RunConfig{}, err
	}
	value, err := parseFloatArg("value", args[4])
	if err != nil {
		return RunConfig{}, err
	}

	return NewRunConfig(
		EdgeParams{Sigma: sigma, TLow: tlow, THigh: thigh},
		mode,
		value,
		args[5],
	)
}

func parseFloatArg(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number: %q", ErrInvalidConfig, name, s)
	}
	return v, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isFraction(v float64) bool {
	return isFinite(v) && v >= 0 && v <= 1
}
