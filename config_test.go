package cameracanny

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    RunConfig
		wantErr bool
	}{
		{
			name: "seconds mode",
			args: []string{"1.0", "0.1", "0.3", "s", "5", "camera_canny_img"},
			want: RunConfig{
				Edge:      EdgeParams{Sigma: 1.0, TLow: 0.1, THigh: 0.3},
				Mode:      ModeSeconds,
				Value:     5,
				OutputDir: "camera_canny_img",
			},
		},
		{
			name: "frames mode",
			args: []string{"1.0", "0.1", "0.3", "n", "150", "camera_canny_img"},
			want: RunConfig{
				Edge:      EdgeParams{Sigma: 1.0, TLow: 0.1, THigh: 0.3},
				Mode:      ModeFrames,
				Value:     150,
				OutputDir: "camera_canny_img",
			},
		},
		{
			name: "fractional seconds",
			args: []string{"2.5", "0", "1", "s", "0.5", "out"},
			want: RunConfig{
				Edge:      EdgeParams{Sigma: 2.5, TLow: 0, THigh: 1},
				Mode:      ModeSeconds,
				Value:     0.5,
				OutputDir: "out",
			},
		},
		{
			name: "extra arguments ignored",
			args: []string{"1", "0.1", "0.3", "n", "1", "out", "extra"},
			want: RunConfig{
				Edge:      EdgeParams{Sigma: 1, TLow: 0.1, THigh: 0.3},
				Mode:      ModeFrames,
				Value:     1,
				OutputDir: "out",
			},
		},
		{name: "too few arguments", args: []string{"1.0", "0.1", "0.3", "s", "5"}, wantErr: true},
		{name: "no arguments", args: nil, wantErr: true},
		{name: "sigma not a number", args: []string{"abc", "0.1", "0.3", "s", "5", "out"}, wantErr: true},
		{name: "zero sigma", args: []string{"0", "0.1", "0.3", "s", "5", "out"}, wantErr: true},
		{name: "tlow above one", args: []string{"1", "1.5", "0.3", "s", "5", "out"}, wantErr: true},
		{name: "negative thigh", args: []string{"1", "0.1", "-0.3", "s", "5", "out"}, wantErr: true},
		{name: "unknown mode", args: []string{"1", "0.1", "0.3", "x", "5", "out"}, wantErr: true},
		{name: "mode must be exact", args: []string{"1", "0.1", "0.3", "seconds", "5", "out"}, wantErr: true},
		{name: "zero value", args: []string{"1", "0.1", "0.3", "s", "0", "out"}, wantErr: true},
		{name: "negative value", args: []string{"1", "0.1", "0.3", "n", "-3", "out"}, wantErr: true},
		{name: "fractional frame count", args: []string{"1", "0.1", "0.3", "n", "2.5", "out"}, wantErr: true},
		{name: "infinite value", args: []string{"1", "0.1", "0.3", "s", "Inf", "out"}, wantErr: true},
		{name: "NaN sigma", args: []string{"NaN", "0.1", "0.3", "s", "5", "out"}, wantErr: true},
		{name: "empty output dir", args: []string{"1", "0.1", "0.3", "s", "5", ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.args)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("ParseArgs() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArgs() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRunConfig_Limits(t *testing.T) {
	frames := RunConfig{Edge: testEdge, Mode: ModeFrames, Value: 150, OutputDir: "out"}
	if frames.FrameLimit() != 150 || frames.Duration() != 0 {
		t.Errorf("frames mode: FrameLimit=%d Duration=%v", frames.FrameLimit(), frames.Duration())
	}

	secs := RunConfig{Edge: testEdge, Mode: ModeSeconds, Value: 1.5, OutputDir: "out"}
	if secs.FrameLimit() != 0 || secs.Duration() != 1500*time.Millisecond {
		t.Errorf("seconds mode: FrameLimit=%d Duration=%v", secs.FrameLimit(), secs.Duration())
	}
}

func TestRunConfig_ValidateUnknownMode(t *testing.T) {
	cfg := RunConfig{Edge: testEdge, Mode: Mode(7), Value: 1, OutputDir: "out"}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeSeconds, ModeFrames} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("S"); err == nil {
		t.Error("ParseMode(\"S\") expected error")
	}
	if got := Mode(7).String(); got != "Mode(7)" {
		t.Errorf("String() = %q", got)
	}
}

func TestIsFraction(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{0, true},
		{1, true},
		{0.5, true},
		{-0.0001, false},
		{1.0001, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := isFraction(tt.v); got != tt.want {
			t.Errorf("isFraction(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
