// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pdf2md/internal/convert"
	"github.com/pdiddy/pdf2md/internal/fallback"
	"github.com/pdiddy/pdf2md/internal/history"
	"github.com/pdiddy/pdf2md/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [pdf files or directories...]",
	Short: "Convert PDF files to Markdown",
	Long: `Convert transforms PDF files into Markdown files in the output directory.
Directories contribute the PDF files they contain. Each document gets
<stem>.md and, when it has images, a <stem>_images/ directory. Existing
Markdown is skipped unless --overwrite is set.

Ctrl+C stops the batch after the current page; finished documents are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	addConversionFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

// conversionFlags maps configuration keys to the flags shared by convert and
// watch.
var conversionFlags = map[string]string{
	"conversion.backend":           "backend",
	"conversion.output_dir":        "output",
	"conversion.overwrite":         "overwrite",
	"conversion.fallback_images":   "fallback-images",
	"conversion.report":            "report",
	"conversion.container_runtime": "runtime",
	"reconcile.assumed_max_pages":  "assumed-max-pages",
}

func addConversionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", "", "conversion backend: markitdown or marker")
	f.StringP("output", "o", "", "output directory for Markdown and images")
	f.Bool("overwrite", false, "reconvert documents whose Markdown already exists")
	f.Bool("fallback-images", true, "extract images from the PDF when the backend returns none")
	f.Bool("report", true, "write a conversion report after the batch")
	f.String("runtime", "", "container runtime for markitdown: docker or podman (default: detect)")
	f.Int("assumed-max-pages", 0, "page count assumed when estimating image positions")

	// Bind when the command runs: convert and watch share keys, and viper
	// keeps one flag per key.
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, name := range conversionFlags {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// buildPipeline wires the configured backend, the pdfcpu fallback extractor
// and, when enabled, the history store. The returned cleanup closes the store.
func buildPipeline(ctx context.Context, cfg types.PipelineConfig) (*convert.Pipeline, func(), error) {
	conv, err := convert.NewConverter(ctx, cfg.Conversion)
	if err != nil {
		return nil, nil, err
	}
	p := convert.NewPipeline(conv, fallback.NewExtractor(logger), cfg, logger)

	cleanup := func() {}
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History)
		if err != nil {
			logger.Warn("history disabled", zap.Error(err))
		} else {
			p.WithRecorder(store)
			cleanup = func() { _ = store.Close() }
		}
	}
	return p, cleanup, nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pdfs, err := convert.CollectPDFs(args)
	if err != nil {
		return err
	}
	if len(pdfs) == 0 {
		return errors.New("no PDF files found")
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	result, err := p.ConvertPaths(ctx, pdfs, out)
	if len(result.Summaries) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, summaryTable(result.Summaries, shouldColorize(out)))
	}
	if err != nil {
		if result.Canceled {
			return fmt.Errorf("conversion canceled after %d of %d documents", result.Total(), len(pdfs))
		}
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d of %d documents failed", result.Failed, result.Total())
	}
	return nil
}

func summaryTable(summaries []types.DocumentSummary, colorize bool) string {
	headers := []string{"Document", "Status", "Pages", "Images", "Inline", "Appended", "Time"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.ID,
			statusLabel(s.Status, colorize),
			humanize.Comma(int64(s.Pages)),
			humanize.Comma(int64(s.Images)),
			humanize.Comma(int64(s.Inline)),
			humanize.Comma(int64(s.Appended)),
			s.Duration.Round(10 * time.Millisecond).String(),
		})
	}
	return renderTable(headers, rows, aligns)
}
