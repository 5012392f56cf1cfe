// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ConversionBackend identifies the primary PDF conversion engine.
type ConversionBackend string

const (
	BackendMarkitdown ConversionBackend = "markitdown"
	BackendMarker     ConversionBackend = "marker"
)

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	// Backend selects the primary engine: markitdown or marker.
	Backend ConversionBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// OutputDir receives <stem>.md files, <stem>_images/ directories and
	// batch reports.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// FallbackImages enables the fallback image extractor when the primary
	// engine returns no images.
	FallbackImages bool `json:"fallback_images" yaml:"fallback_images" mapstructure:"fallback_images"`

	// Overwrite reconverts documents whose Markdown output already exists.
	Overwrite bool `json:"overwrite" yaml:"overwrite" mapstructure:"overwrite"`

	// Report writes a conversion_report_<timestamp>.yaml after each batch.
	Report bool `json:"report" yaml:"report" mapstructure:"report"`

	// MarkerBinary is the marker CLI used by the marker backend.
	MarkerBinary string `json:"marker_binary" yaml:"marker_binary" mapstructure:"marker_binary"`

	// ContainerRuntime is docker, podman, or empty to detect one.
	ContainerRuntime string `json:"container_runtime" yaml:"container_runtime" mapstructure:"container_runtime"`

	// MarkitdownImage is the container image run by the markitdown backend.
	MarkitdownImage string `json:"markitdown_image" yaml:"markitdown_image" mapstructure:"markitdown_image"`
}

// ReconcileConfig holds settings for image-reference reconciliation.
type ReconcileConfig struct {
	// AssumedMaxPages is the page count assumed when estimating where an
	// image without a textual anchor belongs (default 100). The Markdown
	// carries no real page count, so this is an approximation only.
	AssumedMaxPages int `json:"assumed_max_pages" yaml:"assumed_max_pages" mapstructure:"assumed_max_pages"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is console or json (default console).
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File, when set, receives a copy of every log entry.
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// HistoryConfig controls the conversion history database.
type HistoryConfig struct {
	// Enabled turns history recording on (default true).
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Dir holds history.db (default ~/.local/share/pdf2md).
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Reconcile  ReconcileConfig  `json:"reconcile" yaml:"reconcile" mapstructure:"reconcile"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
	History    HistoryConfig    `json:"history" yaml:"history" mapstructure:"history"`
}

// DefaultAssumedMaxPages is the default for ReconcileConfig.AssumedMaxPages.
const DefaultAssumedMaxPages = 100

// DefaultConfig returns the configuration used when no file, environment
// variable or flag overrides a value.
func DefaultConfig() PipelineConfig {
	return PipelineConfig{
		Conversion: ConversionConfig{
			Backend:         BackendMarkitdown,
			OutputDir:       "markdown",
			FallbackImages:  true,
			Report:          true,
			MarkerBinary:    "marker_single",
			MarkitdownImage: "markitdown:latest",
		},
		Reconcile: ReconcileConfig{
			AssumedMaxPages: DefaultAssumedMaxPages,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}
