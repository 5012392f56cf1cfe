// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf2md/pkg/types"
)

// Report is the YAML document written after each batch.
type Report struct {
	Batch     string          `yaml:"batch"`
	Generated time.Time       `yaml:"generated"`
	Canceled  bool            `yaml:"canceled,omitempty"`
	Totals    ReportTotals    `yaml:"totals"`
	Succeeded []ReportSuccess `yaml:"succeeded,omitempty"`
	Failed    []ReportFailure `yaml:"failed,omitempty"`
	Skipped   []string        `yaml:"skipped,omitempty"`
}

// ReportTotals counts documents by outcome.
type ReportTotals struct {
	Converted int `yaml:"converted"`
	Skipped   int `yaml:"skipped"`
	Failed    int `yaml:"failed"`
}

// ReportSuccess describes one converted document.
type ReportSuccess struct {
	Source      string            `yaml:"source"`
	Output      string            `yaml:"output"`
	Pages       int               `yaml:"pages"`
	Images      int               `yaml:"images"`
	ImageSource types.ImageSource `yaml:"image_source"`
	Inline      int               `yaml:"inline"`
	Appended    int               `yaml:"appended"`
	Seconds     float64           `yaml:"seconds"`
}

// ReportFailure describes one failed document.
type ReportFailure struct {
	Source string `yaml:"source"`
	Error  string `yaml:"error"`
}

// NewReport builds the report for a finished batch.
func NewReport(r BatchResult, generated time.Time) Report {
	rep := Report{
		Batch:     r.ID,
		Generated: generated.UTC(),
		Canceled:  r.Canceled,
		Totals:    ReportTotals{Converted: r.Converted, Skipped: r.Skipped, Failed: r.Failed},
	}
	for _, s := range r.Summaries {
		switch s.Status {
		case types.ConversionDone:
			rep.Succeeded = append(rep.Succeeded, ReportSuccess{
				Source:      s.Source,
				Output:      s.Output,
				Pages:       s.Pages,
				Images:      s.Images,
				ImageSource: s.ImageSource,
				Inline:      s.Inline,
				Appended:    s.Appended,
				Seconds:     s.Duration.Round(time.Millisecond).Seconds(),
			})
		case types.ConversionFailed:
			rep.Failed = append(rep.Failed, ReportFailure{Source: s.Source, Error: s.Error})
		case types.ConversionSkipped:
			rep.Skipped = append(rep.Skipped, s.Source)
		}
	}
	return rep
}

// ReportName returns conversion_report_<YYYYMMDD_HHMMSS>.yaml for t.
func ReportName(t time.Time) string {
	return "conversion_report_" + t.Format("20060102_150405") + ".yaml"
}

// WriteReport writes the batch report into dir and returns its path.
func WriteReport(dir string, r BatchResult, now time.Time) (string, error) {
	data, err := yaml.Marshal(NewReport(r, now))
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	path := filepath.Join(dir, ReportName(now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
