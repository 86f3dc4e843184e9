package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Report is the persisted outcome of a run.
type Report struct {
	RunID     string             `json:"run_id"              yaml:"run_id"`
	Mode      string             `json:"mode"                yaml:"mode"`
	Cancelled bool               `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Results   []PredictionResult `json:"results"             yaml:"results"`
	Summary   Summary            `json:"summary"             yaml:"summary"`
}

// Format is a report encoding.
type Format string

// Supported report encodings.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Encode writes the report to w.
func (r Report) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode report yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	return nil
}

// WriteFile writes the report to path, creating parent directories.
func (r Report) WriteFile(path string, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.Encode(f, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}
