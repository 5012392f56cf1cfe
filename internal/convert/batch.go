// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/pdf2md/pkg/types"
)

const lockFile = ".pdf2md.lock"

// ErrLocked is returned when another batch holds the output directory.
var ErrLocked = errors.New("output directory is locked by another pdf2md run")

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	ID        string
	Converted int
	Skipped   int
	Failed    int
	Summaries []types.DocumentSummary

	// Canceled is set when the context ended before every document ran.
	Canceled bool

	// ReportPath is empty when no report was written.
	ReportPath string
}

// Total returns the total number of documents processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any documents failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertBatch processes documents one at a time, printing per-file status
// to w and returning a summary. The output directory is locked for the run.
// The context is checked between documents; a canceled batch still returns
// the documents finished so far, together with the context error.
func (p *Pipeline) ConvertBatch(ctx context.Context, docs []types.Document, w io.Writer) (BatchResult, error) {
	result := BatchResult{ID: uuid.NewString()}
	log := p.logger.With(zap.String("batch", result.ID))

	outDir := p.cfg.Conversion.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return result, fmt.Errorf("creating output directory: %w", err)
	}
	lock := flock.New(filepath.Join(outDir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return result, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release output lock", zap.Error(err))
		}
	}()

	log.Info("batch started", zap.Int("documents", len(docs)), zap.String("output", outDir))

	var runErr error
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			result.Canceled = true
			runErr = err
			log.Warn("batch canceled", zap.Int("remaining", len(docs)-i))
			break
		}

		summary := p.ConvertDocument(ctx, doc, w)
		result.Summaries = append(result.Summaries, summary)
		switch summary.Status {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionSkipped:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}

		if p.recorder != nil && summary.Status != types.ConversionSkipped {
			if err := p.recorder.Record(context.WithoutCancel(ctx), result.ID, summary); err != nil {
				log.Warn("recording history failed", zap.String("document", doc.ID), zap.Error(err))
			}
		}
	}

	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())

	if p.cfg.Conversion.Report && len(result.Summaries) > 0 {
		path, err := WriteReport(outDir, result, p.now())
		if err != nil {
			log.Warn("writing conversion report failed", zap.Error(err))
		} else {
			result.ReportPath = path
			fmt.Fprintf(w, "Report: %s\n", path)
		}
	}

	log.Info("batch finished",
		zap.Int("converted", result.Converted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Bool("canceled", result.Canceled))
	return result, runErr
}

// ConvertPaths builds Document records from PDF paths and delegates to
// ConvertBatch.
func (p *Pipeline) ConvertPaths(ctx context.Context, pdfPaths []string, w io.Writer) (BatchResult, error) {
	docs := make([]types.Document, len(pdfPaths))
	for i, path := range pdfPaths {
		docs[i] = NewDocument(path)
	}
	return p.ConvertBatch(ctx, docs, w)
}

// CollectPDFs expands the arguments into PDF paths. Directories contribute
// their *.pdf files (not recursive, case-insensitive extension); files are
// taken as given. The result keeps argument order with directory entries
// sorted by name.
func CollectPDFs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", arg, err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		for _, e := range entries {
			if !e.IsDir() && IsPDF(e.Name()) {
				out = append(out, filepath.Join(arg, e.Name()))
			}
		}
	}
	return out, nil
}

// IsPDF reports whether name has a .pdf extension in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
