// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pdf2md CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pdf2md/internal/logging"
	"github.com/pdiddy/pdf2md/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is built from configuration before any subcommand runs.
var logger = zap.NewNop()

// rootCmd is the base command for the pdf2md CLI.
var rootCmd = &cobra.Command{
	Use:   "pdf2md",
	Short: "Batch-convert PDF files to Markdown with their images",
	Long: `pdf2md converts PDF files to Markdown through a primary engine (markitdown
in a container, or the marker CLI). When the engine returns no images, pdf2md
extracts the embedded images itself and places each one in the Markdown: at
the reference the engine left behind, next to a line mentioning its page, near
the heading closest to its page, or in a trailing "Additional Images" section.

Subcommands: convert, watch, history, audit, version.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", zap.String("path", used))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pdf2md.yaml or ~/.config/pdf2md/pdf2md.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pdf2md")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pdf2md"))
		}
	}

	setDefaults(types.DefaultConfig())

	viper.SetEnvPrefix("PDF2MD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Reading config file:", err)
	}
}

func setDefaults(d types.PipelineConfig) {
	viper.SetDefault("conversion.backend", string(d.Conversion.Backend))
	viper.SetDefault("conversion.output_dir", d.Conversion.OutputDir)
	viper.SetDefault("conversion.fallback_images", d.Conversion.FallbackImages)
	viper.SetDefault("conversion.overwrite", d.Conversion.Overwrite)
	viper.SetDefault("conversion.report", d.Conversion.Report)
	viper.SetDefault("conversion.marker_binary", d.Conversion.MarkerBinary)
	viper.SetDefault("conversion.container_runtime", d.Conversion.ContainerRuntime)
	viper.SetDefault("conversion.markitdown_image", d.Conversion.MarkitdownImage)
	viper.SetDefault("reconcile.assumed_max_pages", d.Reconcile.AssumedMaxPages)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
	viper.SetDefault("log.file", d.Log.File)
	viper.SetDefault("history.enabled", d.History.Enabled)
	viper.SetDefault("history.dir", d.History.Dir)
}

// loadConfig merges defaults, config file, environment and flags.
func loadConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.History.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.History.Dir = filepath.Join(home, ".local", "share", "pdf2md")
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
