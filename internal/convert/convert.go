// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns PDFs into Markdown files with pluggable primary
// engines. When the primary engine returns no images, the fallback engine
// extracts them and the reconcile package places them in the Markdown.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/pdf2md/internal/reconcile"
	"github.com/pdiddy/pdf2md/pkg/types"
)

// Rendered is what a primary engine produces for one PDF.
type Rendered struct {
	Markdown string

	// Images maps a filename to its bytes. Engines that do not export
	// images leave it empty.
	Images map[string][]byte

	// PageCount is zero when the engine does not report it.
	PageCount int
	Title     string
	Author    string
}

// Converter transforms a PDF file into Markdown. Different backends
// (markitdown, marker) implement this interface.
type Converter interface {
	Convert(ctx context.Context, pdfPath string) (Rendered, error)
}

// ImageExtractor is the fallback engine. fallback.Extractor implements it.
type ImageExtractor interface {
	Validate(pdfPath string) error
	PageCount(pdfPath string) (int, error)
	Extract(ctx context.Context, pdfPath, imagesDir string) ([]types.ImageAsset, error)
}

// Recorder persists per-document outcomes. history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, batchID string, summary types.DocumentSummary) error
}

// Pipeline converts documents into cfg.Conversion.OutputDir.
type Pipeline struct {
	converter Converter
	extractor ImageExtractor
	recorder  Recorder
	cfg       types.PipelineConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline wires a primary engine and a fallback engine. A nil logger
// discards log output.
func NewPipeline(c Converter, ex ImageExtractor, cfg types.PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		converter: c,
		extractor: ex,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "convert")),
		now:       time.Now,
	}
}

// WithRecorder makes the pipeline record every document summary.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// Stem returns the PDF filename without its extension.
func Stem(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewDocument builds a Document whose ID is the PDF stem.
func NewDocument(pdfPath string) types.Document {
	return types.Document{ID: Stem(pdfPath), PDFPath: pdfPath}
}

// ConvertDocument converts one PDF and writes <stem>.md (plus images) to the
// output directory. Existing output is skipped unless Overwrite is set. A
// status line is written to w. Failures are reported in the summary, not
// returned.
func (p *Pipeline) ConvertDocument(ctx context.Context, doc types.Document, w io.Writer) types.DocumentSummary {
	start := p.now()
	stem := Stem(doc.PDFPath)
	outDir := p.cfg.Conversion.OutputDir
	mdPath := filepath.Join(outDir, stem+".md")

	summary := types.DocumentSummary{
		ID:          doc.ID,
		Source:      doc.PDFPath,
		Output:      mdPath,
		ImageSource: types.ImagesNone,
		ConvertedAt: start.UTC(),
	}
	log := p.logger.With(zap.String("document", stem))

	if _, err := os.Stat(mdPath); err == nil && !p.cfg.Conversion.Overwrite {
		summary.Status = types.ConversionSkipped
		fmt.Fprintf(w, "skipped: %s (already exists)\n", stem)
		log.Debug("output exists, skipping", zap.String("output", mdPath))
		return summary
	}

	if err := p.convert(ctx, doc, stem, &summary, log); err != nil {
		summary.Status = types.ConversionFailed
		summary.Error = err.Error()
		summary.Duration = p.now().Sub(start)
		fmt.Fprintf(w, "failed:  %s (%v)\n", stem, err)
		log.Warn("conversion failed", zap.Error(err))
		return summary
	}

	summary.Status = types.ConversionDone
	summary.Duration = p.now().Sub(start)
	fmt.Fprintf(w, "converted: %s (%d pages, %d images: %d inline, %d appended)\n",
		stem, summary.Pages, summary.Images, summary.Inline, summary.Appended)
	log.Info("document converted",
		zap.Int("pages", summary.Pages),
		zap.Int("images", summary.Images),
		zap.String("image_source", string(summary.ImageSource)),
		zap.Duration("duration", summary.Duration))
	return summary
}

func (p *Pipeline) convert(ctx context.Context, doc types.Document, stem string, summary *types.DocumentSummary, log *zap.Logger) error {
	if err := p.extractor.Validate(doc.PDFPath); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	outDir := p.cfg.Conversion.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	rendered, err := p.converter.Convert(ctx, doc.PDFPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered.Markdown) == "" {
		return errors.New("conversion produced no text")
	}

	summary.Pages = rendered.PageCount
	if summary.Pages == 0 {
		if n, err := p.extractor.PageCount(doc.PDFPath); err == nil {
			summary.Pages = n
		}
	}

	imagesDir := filepath.Join(outDir, reconcile.ImagesDir(stem))
	body := rendered.Markdown

	switch {
	case len(rendered.Images) > 0:
		body, err = savePrimaryImages(body, rendered.Images, imagesDir, stem)
		if err != nil {
			return err
		}
		summary.ImageSource = types.ImagesPrimary
		summary.Images = len(rendered.Images)
		summary.Inline = summary.Images

	case p.cfg.Conversion.FallbackImages:
		assets, err := p.extractor.Extract(ctx, doc.PDFPath, imagesDir)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Warn("fallback image extraction failed", zap.Error(err))
		}
		if len(assets) == 0 {
			removeIfEmpty(imagesDir)
			break
		}
		res, err := reconcile.Reconcile(body, assets, reconcile.Options{
			Stem:            stem,
			AssumedMaxPages: p.cfg.Reconcile.AssumedMaxPages,
		})
		if err != nil {
			return fmt.Errorf("placing images: %w", err)
		}
		body = res.Markdown
		summary.ImageSource = types.ImagesFallback
		summary.Images = len(assets)
		summary.Inline = res.Inline()
		summary.Appended = len(res.Appended)
		log.Debug("images reconciled",
			zap.Int("references", res.References),
			zap.Int("rewritten", len(res.Bindings)),
			zap.Int("inserted", len(res.Inserted)),
			zap.Int("appended", len(res.Appended)))
	}

	meta := metadata{
		source:    doc.PDFPath,
		converted: summary.ConvertedAt,
		pages:     summary.Pages,
		title:     rendered.Title,
		author:    rendered.Author,
	}
	if meta.title == "" {
		meta.title = firstHeading(body)
	}

	mdPath := filepath.Join(outDir, stem+".md")
	if err := os.WriteFile(mdPath, []byte(addFrontmatter(meta, body)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mdPath, err)
	}
	return nil
}

// savePrimaryImages writes engine-supplied images to imagesDir and points
// references at them.
func savePrimaryImages(body string, images map[string][]byte, imagesDir, stem string) (string, error) {
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return "", fmt.Errorf("creating images directory: %w", err)
	}
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	saved := make(map[string]string, len(names))
	for _, name := range names {
		file := filepath.Base(name)
		if err := os.WriteFile(filepath.Join(imagesDir, file), images[name], 0o644); err != nil {
			return "", fmt.Errorf("saving image %s: %w", file, err)
		}
		saved[name] = reconcile.ImageLink(stem, file)
		saved[file] = reconcile.ImageLink(stem, file)
	}
	return relink(body, saved), nil
}

// relink replaces image targets found in links with their new location.
func relink(body string, links map[string]string) string {
	var b strings.Builder
	last := 0
	for _, ref := range reconcile.FindReferences(body) {
		target, ok := links[ref.Target]
		if !ok {
			continue
		}
		b.WriteString(body[last:ref.Start])
		b.WriteString("![" + ref.Alt + "](" + target + ")")
		last = ref.End
	}
	b.WriteString(body[last:])
	return b.String()
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

type metadata struct {
	source    string
	converted time.Time
	pages     int
	title     string
	author    string
}

// addFrontmatter prepends YAML frontmatter to the converted Markdown content.
func addFrontmatter(m metadata, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "source_pdf: %q\n", m.source)
	fmt.Fprintf(&b, "converted_at: %q\n", m.converted.Format(time.RFC3339))
	if m.pages > 0 {
		fmt.Fprintf(&b, "pages: %d\n", m.pages)
	}
	if m.title != "" {
		fmt.Fprintf(&b, "title: %q\n", m.title)
	}
	if m.author != "" {
		fmt.Fprintf(&b, "author: %q\n", m.author)
	}
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}
