// Package config loads the optional camera-canny YAML file.
//
// The file only covers capture and ambient settings. The run itself
// (sigma, thresholds, mode, value, output folder) always comes from the
// command line.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture backends
const (
	BackendGst    = "gst"    // libcamerasrc through go-gst appsink
	BackendOpenCV = "opencv" // cv::VideoCapture (GStreamer launch string or device index)
	BackendV4L2   = "v4l2"   // USB camera, MJPEG through go4vl
)

// Config represents the complete camera-canny file configuration
type Config struct {
	Capture         CaptureConfig `yaml:"capture"`
	Preview         bool          `yaml:"preview"`           // show [RAW] and [EDGE] windows
	StepBurst       int           `yaml:"step_burst"`        // frames per key press, 0 = continuous
	WarmupDurationS float64       `yaml:"warmup_duration_s"` // 0 disables warm-up
	ReportPath      string        `yaml:"report_path"`       // .yaml/.yml or .msgpack/.mp, empty = none
	MQTT            MQTTConfig    `yaml:"mqtt"`
}

// CaptureConfig contains camera settings
type CaptureConfig struct {
	Backend   string `yaml:"backend"`   // gst, opencv, v4l2
	Device    string `yaml:"device"`    // /dev/videoN for v4l2, camera index for opencv
	Width     int    `yaml:"width"`     // requested frame width
	Height    int    `yaml:"height"`    // requested frame height
	Framerate int    `yaml:"framerate"` // 0 = camera default
	Pipeline  string `yaml:"pipeline"`  // gst-launch override ending in appsink
}

// MQTTConfig contains broker settings for run telemetry. An empty broker
// disables publishing.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`       // host:port
	ClientID    string `yaml:"client_id"`    // default: camera-canny
	TopicPrefix string `yaml:"topic_prefix"` // default: camera-canny
	QoS         byte   `yaml:"qos"`          // QoS of the summary message (0-2)
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// DefaultConfig returns the configuration used when no file is given:
// 640x480 from libcamerasrc, no preview, continuous run, no warm-up.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Backend: BackendGst,
			Device:  "/dev/video0",
			Width:   640,
			Height:  480,
		},
	}
}

// Load reads and parses a YAML configuration file on top of DefaultConfig
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// WarmupDuration returns the warm-up length as a time.Duration.
func (c *Config) WarmupDuration() time.Duration {
	return time.Duration(c.WarmupDurationS * float64(time.Second))
}

// DeviceIndex parses Device as an OpenCV camera index.
func (c CaptureConfig) DeviceIndex() (int, bool) {
	idx, err := strconv.Atoi(c.Device)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
