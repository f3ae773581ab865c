package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks if the configuration is valid and fills empty fields with defaults
func Validate(cfg *Config) error {
	if err := ValidateCapture(&cfg.Capture); err != nil {
		return fmt.Errorf("capture validation failed: %w", err)
	}

	if cfg.StepBurst < 0 {
		return fmt.Errorf("step_burst must be >= 0, got %d", cfg.StepBurst)
	}
	if cfg.WarmupDurationS < 0 {
		return fmt.Errorf("warmup_duration_s must be >= 0, got %v", cfg.WarmupDurationS)
	}

	if cfg.ReportPath != "" {
		switch strings.ToLower(filepath.Ext(cfg.ReportPath)) {
		case ".yaml", ".yml", ".msgpack", ".mp":
		default:
			return fmt.Errorf("report_path '%s': extension must be .yaml, .yml, .msgpack or .mp", cfg.ReportPath)
		}
	}

	if err := ValidateMQTT(&cfg.MQTT); err != nil {
		return fmt.Errorf("mqtt validation failed: %w", err)
	}

	return nil
}

// ValidateMQTT validates the mqtt section and sets default client id and topic prefix
func ValidateMQTT(m *MQTTConfig) error {
	if !m.Enabled() {
		return nil
	}
	if strings.Contains(m.Broker, "://") {
		return fmt.Errorf("broker '%s' must be host:port without a scheme", m.Broker)
	}
	if m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if m.ClientID == "" {
		m.ClientID = "camera-canny"
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = "camera-canny"
	}
	if strings.ContainsAny(m.TopicPrefix, "+#") {
		return fmt.Errorf("topic_prefix '%s' must not contain wildcards", m.TopicPrefix)
	}
	m.TopicPrefix = strings.TrimSuffix(m.TopicPrefix, "/")
	return nil
}

// ValidateCapture validates the capture section
func ValidateCapture(c *CaptureConfig) error {
	if c.Backend == "" {
		c.Backend = BackendGst // default
	}
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}

	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		return fmt.Errorf("framerate must be 0-120, got %d", c.Framerate)
	}

	switch c.Backend {
	case BackendGst:
		if c.Pipeline != "" && !strings.Contains(c.Pipeline, "name=sink") {
			return fmt.Errorf("pipeline must contain an appsink named 'sink'")
		}

	case BackendOpenCV:
		if c.Pipeline == "" && c.Device != "" && !strings.HasPrefix(c.Device, "/dev/") {
			if _, ok := c.DeviceIndex(); !ok {
				return fmt.Errorf("device '%s': opencv expects a camera index or a pipeline", c.Device)
			}
		}

	case BackendV4L2:
		if c.Device == "" {
			return fmt.Errorf("device is required for the v4l2 backend")
		}
		if c.Pipeline != "" {
			return fmt.Errorf("pipeline is not supported by the v4l2 backend")
		}

	default:
		return fmt.Errorf("unknown backend '%s' (must be 'gst', 'opencv' or 'v4l2')", c.Backend)
	}

	return nil
}
