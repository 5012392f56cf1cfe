// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/pdf2md/internal/convert"
)

const debounceDuration = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Convert PDF files as they appear in a directory",
	Long: `Watch converts the PDF files already in a directory, then keeps converting
PDF files as they are created or written until interrupted. Bursts of file
events are collected for half a second and converted as one batch. A PDF whose
Markdown already exists is skipped unless --overwrite is set, so pass
--overwrite to reconvert PDFs that change in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addConversionFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := args[0]

	ctx, stop := signalContext(cmd)
	defer stop()

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	run := func(ctx context.Context, pdfs []string) {
		result, err := p.ConvertPaths(ctx, pdfs, out)
		if err != nil {
			logger.Warn("batch stopped", zap.Error(err))
			return
		}
		if result.HasFailures() {
			logger.Warn("batch finished with failures", zap.Int("failed", result.Failed))
		}
	}

	existing, err := convert.CollectPDFs([]string{dir})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		run(ctx, existing)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", dir)
	return watchPDFs(ctx, watcher.Events, watcher.Errors, debounceDuration, run)
}

// watchPDFs collects PDF create and write events and hands the distinct
// paths that still exist to run once no event arrived for the debounce
// interval. run executes on the calling goroutine, so batches never overlap.
func watchPDFs(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, debounce time.Duration, run func(context.Context, []string)) error {
	pending := make(map[string]struct{})
	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !wantEvent(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for path := range pending {
				if _, err := os.Stat(path); err == nil {
					paths = append(paths, path)
				}
			}
			clear(pending)
			if len(paths) == 0 {
				continue
			}
			sort.Strings(paths)
			run(ctx, paths)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

func wantEvent(event fsnotify.Event) bool {
	if !convert.IsPDF(event.Name) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}
