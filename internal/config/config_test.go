package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camera-canny.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(DefaultConfig()) error = %v", err)
	}
	if cfg.Capture.Backend != BackendGst {
		t.Errorf("Backend = %q, want %q", cfg.Capture.Backend, BackendGst)
	}
	if cfg.Capture.Width != 640 || cfg.Capture.Height != 480 {
		t.Errorf("resolution = %dx%d, want 640x480", cfg.Capture.Width, cfg.Capture.Height)
	}
	if cfg.Preview || cfg.StepBurst != 0 || cfg.WarmupDuration() != 0 || cfg.ReportPath != "" {
		t.Errorf("unexpected ambient defaults: %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
capture:
  backend: v4l2
  device: /dev/video2
  width: 320
  framerate: 15
preview: true
step_burst: 5
warmup_duration_s: 1.5
report_path: run.msgpack
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.Backend != BackendV4L2 || cfg.Capture.Device != "/dev/video2" {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Capture.Width != 320 {
		t.Errorf("Width = %d, want 320", cfg.Capture.Width)
	}
	if cfg.Capture.Height != 480 {
		t.Errorf("Height = %d, want default 480", cfg.Capture.Height)
	}
	if cfg.Capture.Framerate != 15 {
		t.Errorf("Framerate = %d, want 15", cfg.Capture.Framerate)
	}
	if !cfg.Preview || cfg.StepBurst != 5 || cfg.ReportPath != "run.msgpack" {
		t.Errorf("ambient = %+v", cfg)
	}
	if cfg.WarmupDuration() != 1500*time.Millisecond {
		t.Errorf("WarmupDuration() = %v, want 1.5s", cfg.WarmupDuration())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "capture: [", "failed to parse config"},
		{"unknown backend", "capture:\n  backend: dshow\n", "unknown backend"},
		{"negative step", "step_burst: -1\n", "step_burst"},
		{"negative warmup", "warmup_duration_s: -2\n", "warmup_duration_s"},
		{"report extension", "report_path: run.json\n", "report_path"},
		{"framerate", "capture:\n  framerate: 500\n", "framerate"},
		{"negative width", "capture:\n  width: -5\n", "resolution"},
		{"gst pipeline without sink", "capture:\n  pipeline: videotestsrc ! appsink\n", "name=sink"},
		{"v4l2 without device", "capture:\n  backend: v4l2\n  device: \"\"\n", "device is required"},
		{"v4l2 with pipeline", "capture:\n  backend: v4l2\n  pipeline: x ! appsink name=sink\n", "not supported"},
		{"opencv bad device", "capture:\n  backend: opencv\n  device: front\n", "camera index"},
		{"mqtt scheme", "mqtt:\n  broker: tcp://localhost:1883\n", "without a scheme"},
		{"mqtt qos", "mqtt:\n  broker: localhost:1883\n  qos: 3\n", "qos"},
		{"mqtt wildcard", "mqtt:\n  broker: localhost:1883\n  topic_prefix: lab/#\n", "wildcards"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil for a missing file")
	}
}

func TestValidateCapture_Defaults(t *testing.T) {
	c := CaptureConfig{}
	if err := ValidateCapture(&c); err != nil {
		t.Fatalf("ValidateCapture() error = %v", err)
	}
	if c.Backend != BackendGst || c.Width != 640 || c.Height != 480 {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestDeviceIndex(t *testing.T) {
	tests := []struct {
		device string
		want   int
		ok     bool
	}{
		{"0", 0, true},
		{"3", 3, true},
		{"-1", 0, false},
		{"/dev/video0", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := CaptureConfig{Device: tt.device}.DeviceIndex()
		if got != tt.want || ok != tt.ok {
			t.Errorf("DeviceIndex(%q) = %d, %v; want %d, %v", tt.device, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValidateMQTT(t *testing.T) {
	disabled := MQTTConfig{}
	if err := ValidateMQTT(&disabled); err != nil {
		t.Fatalf("ValidateMQTT(disabled) error = %v", err)
	}
	if disabled.Enabled() || disabled.ClientID != "" {
		t.Errorf("disabled config modified: %+v", disabled)
	}

	m := MQTTConfig{Broker: "localhost:1883", TopicPrefix: "lab/"}
	if err := ValidateMQTT(&m); err != nil {
		t.Fatalf("ValidateMQTT() error = %v", err)
	}
	if m.ClientID != "camera-canny" {
		t.Errorf("ClientID = %q, want default", m.ClientID)
	}
	if m.TopicPrefix != "lab" {
		t.Errorf("TopicPrefix = %q, want trailing slash trimmed", m.TopicPrefix)
	}
}
