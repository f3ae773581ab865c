package cameracanny

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Report is the machine-readable record of a run, written next to the
// frames when requested.
type Report struct {
	RunID     string       `yaml:"run_id" msgpack:"run_id"`
	StartedAt time.Time    `yaml:"started_at" msgpack:"started_at"`
	Backend   string       `yaml:"backend" msgpack:"backend"`
	Config    ReportConfig `yaml:"config" msgpack:"config"`
	Summary   Summary      `yaml:"summary" msgpack:"summary"`
}

// ReportConfig mirrors RunConfig with stable field names
type ReportConfig struct {
	Sigma     float64 `yaml:"sigma" msgpack:"sigma"`
	TLow      float64 `yaml:"tlow" msgpack:"tlow"`
	THigh     float64 `yaml:"thigh" msgpack:"thigh"`
	Mode      string  `yaml:"mode" msgpack:"mode"`
	Value     float64 `yaml:"value" msgpack:"value"`
	OutputDir string  `yaml:"output_dir" msgpack:"output_dir"`
	StepBurst int     `yaml:"step_burst,omitempty" msgpack:"step_burst,omitempty"`
}

// NewReport assembles a Report from the run configuration and its summary.
func NewReport(cfg RunConfig, backend string, startedAt time.Time, stepBurst int, s Summary) Report {
	return Report{
		RunID:     s.RunID,
		StartedAt: startedAt,
		Backend:   backend,
		Config: ReportConfig{
			Sigma:     cfg.Edge.Sigma,
			TLow:      cfg.Edge.TLow,
			THigh:     cfg.Edge.THigh,
			Mode:      cfg.Mode.String(),
			Value:     cfg.Value,
			OutputDir: cfg.OutputDir,
			StepBurst: stepBurst,
		},
		Summary: s,
	}
}

// MarshalReport encodes r according to the extension of path:
// .yaml/.yml as YAML, .msgpack/.mp as MessagePack.
func MarshalReport(path string, r Report) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(r)
	case ".msgpack", ".mp":
		return msgpack.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported report format %q (use .yaml or .msgpack)", filepath.Ext(path))
	}
}

// WriteReport encodes r and writes it to path.
func WriteReport(path string, r Report) error {
	data, err := MarshalReport(path, r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
