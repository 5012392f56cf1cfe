// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pdf2md/internal/audit"
	"github.com/pdiddy/pdf2md/pkg/types"
)

// fakeConverter returns canned output per PDF path, or a default.
type fakeConverter struct {
	output  Rendered
	outputs map[string]Rendered
	errors  map[string]error
	err     error
	calls   int
}

func (f *fakeConverter) Convert(_ context.Context, pdfPath string) (Rendered, error) {
	f.calls++
	if err := f.errors[pdfPath]; err != nil {
		return Rendered{}, err
	}
	if f.err != nil {
		return Rendered{}, f.err
	}
	if out, ok := f.outputs[pdfPath]; ok {
		return out, nil
	}
	return f.output, nil
}

// fakeExtractor writes each asset as a small file and returns it.
type fakeExtractor struct {
	assets  []types.ImageAsset
	err     error
	invalid error
	pages   int
	calls   int
}

func (f *fakeExtractor) Validate(string) error { return f.invalid }

func (f *fakeExtractor) PageCount(string) (int, error) { return f.pages, nil }

func (f *fakeExtractor) Extract(_ context.Context, _, imagesDir string) ([]types.ImageAsset, error) {
	f.calls++
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, err
	}
	for _, a := range f.assets {
		if err := os.WriteFile(filepath.Join(imagesDir, a.Filename), []byte("img"), 0o644); err != nil {
			return nil, err
		}
	}
	return f.assets, f.err
}

type fakeRecorder struct {
	batches []string
	records []types.DocumentSummary
}

func (f *fakeRecorder) Record(_ context.Context, batchID string, s types.DocumentSummary) error {
	f.batches = append(f.batches, batchID)
	f.records = append(f.records, s)
	return nil
}

var fixedNow = time.Date(2025, 9, 1, 14, 30, 5, 0, time.UTC)

func testConfig(t *testing.T) types.PipelineConfig {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Conversion.OutputDir = filepath.Join(t.TempDir(), "markdown")
	return cfg
}

func newTestPipeline(c Converter, ex ImageExtractor, cfg types.PipelineConfig, logger *zap.Logger) *Pipeline {
	p := NewPipeline(c, ex, cfg, logger)
	p.now = func() time.Time { return fixedNow }
	return p
}

// writePDFs creates placeholder PDFs and returns their paths.
func writePDFs(t *testing.T, names ...string) []string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "raw")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("%PDF-1.7"), 0o644))
	}
	return paths
}

func readOutput(t *testing.T, cfg types.PipelineConfig, stem string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Conversion.OutputDir, stem+".md"))
	require.NoError(t, err)
	return string(data)
}

func TestConvertDocument(t *testing.T) {
	tests := []struct {
		name       string
		converter  *fakeConverter
		extractor  *fakeExtractor
		preCreate  bool
		overwrite  bool
		wantStatus types.ConversionStatus
		wantLog    string
		wantCalls  int
	}{
		{
			name:       "successful conversion",
			converter:  &fakeConverter{output: Rendered{Markdown: "# Title\n\nContent here."}},
			extractor:  &fakeExtractor{},
			wantStatus: types.ConversionDone,
			wantLog:    "converted: 2301.07041",
			wantCalls:  1,
		},
		{
			name:       "skip existing markdown",
			converter:  &fakeConverter{output: Rendered{Markdown: "unused"}},
			extractor:  &fakeExtractor{},
			preCreate:  true,
			wantStatus: types.ConversionSkipped,
			wantLog:    "skipped: 2301.07041 (already exists)",
		},
		{
			name:       "overwrite existing markdown",
			converter:  &fakeConverter{output: Rendered{Markdown: "# New"}},
			extractor:  &fakeExtractor{},
			preCreate:  true,
			overwrite:  true,
			wantStatus: types.ConversionDone,
			wantLog:    "converted:",
			wantCalls:  1,
		},
		{
			name:       "conversion failure",
			converter:  &fakeConverter{err: errors.New("container crashed")},
			extractor:  &fakeExtractor{},
			wantStatus: types.ConversionFailed,
			wantLog:    "failed:  2301.07041 (container crashed)",
			wantCalls:  1,
		},
		{
			name:       "invalid pdf",
			converter:  &fakeConverter{output: Rendered{Markdown: "unused"}},
			extractor:  &fakeExtractor{invalid: errors.New("bad header")},
			wantStatus: types.ConversionFailed,
			wantLog:    "invalid PDF: bad header",
		},
		{
			name:       "blank output",
			converter:  &fakeConverter{output: Rendered{Markdown: " \n\n"}},
			extractor:  &fakeExtractor{},
			wantStatus: types.ConversionFailed,
			wantLog:    "conversion produced no text",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Conversion.Overwrite = tt.overwrite
			pdf := writePDFs(t, "2301.07041.pdf")[0]
			if tt.preCreate {
				require.NoError(t, os.MkdirAll(cfg.Conversion.OutputDir, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(cfg.Conversion.OutputDir, "2301.07041.md"), []byte("existing"), 0o644))
			}

			var log bytes.Buffer
			s := newTestPipeline(tt.converter, tt.extractor, cfg, nil).ConvertDocument(context.Background(), NewDocument(pdf), &log)

			assert.Equal(t, tt.wantStatus, s.Status)
			assert.Contains(t, log.String(), tt.wantLog)
			assert.Equal(t, tt.wantCalls, tt.converter.calls)
			assert.Equal(t, "2301.07041", s.ID)
			if tt.wantStatus == types.ConversionFailed {
				assert.NotEmpty(t, s.Error)
			}
		})
	}
}

func TestConvertDocument_Frontmatter(t *testing.T) {
	cfg := testConfig(t)
	pdf := writePDFs(t, "report.pdf")[0]
	conv := &fakeConverter{output: Rendered{Markdown: "intro\n\n# Annual Report\n\nSome content.", Author: "Ada"}}

	s := newTestPipeline(conv, &fakeExtractor{pages: 12}, cfg, nil).ConvertDocument(context.Background(), NewDocument(pdf), &bytes.Buffer{})
	require.Equal(t, types.ConversionDone, s.Status)
	assert.Equal(t, 12, s.Pages)

	content := readOutput(t, cfg, "report")
	assert.True(t, strings.HasPrefix(content, "---\n"))
	assert.Contains(t, content, `source_pdf: "`+pdf+`"`)
	assert.Contains(t, content, `converted_at: "2025-09-01T14:30:05Z"`)
	assert.Contains(t, content, "pages: 12\n")
	assert.Contains(t, content, `title: "Annual Report"`)
	assert.Contains(t, content, `author: "Ada"`)
	assert.True(t, strings.HasSuffix(content, "---\n\nintro\n\n# Annual Report\n\nSome content."))
}

func TestConvertDocument_ReconcilesFallbackImages(t *testing.T) {
	cfg := testConfig(t)
	pdf := writePDFs(t, "doc.pdf")[0]
	conv := &fakeConverter{output: Rendered{Markdown: "# Report\n\n![](img1.png)\n\nText about page 2 here.\n"}}
	ex := &fakeExtractor{assets: []types.ImageAsset{
		{Filename: "page_001_img_01_aaaaaaaa.png", PageNumber: 1},
		{Filename: "page_002_img_01_bbbbbbbb.png", PageNumber: 2},
	}}

	s := newTestPipeline(conv, ex, cfg, nil).ConvertDocument(context.Background(), NewDocument(pdf), &bytes.Buffer{})
	require.Equal(t, types.ConversionDone, s.Status, s.Error)

	assert.Equal(t, types.ImagesFallback, s.ImageSource)
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, 2, s.Inline)
	assert.Equal(t, 0, s.Appended)

	content := readOutput(t, cfg, "doc")
	assert.Contains(t, content, "![](doc_images/page_001_img_01_aaaaaaaa.png)")
	assert.Contains(t, content, "Text about page 2 here.\n\n![Page 2 image](doc_images/page_002_img_01_bbbbbbbb.png)")
	assert.NotContains(t, content, "## Additional Images")

	report, err := audit.File(filepath.Join(cfg.Conversion.OutputDir, "doc.md"))
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report)
	assert.Len(t, report.Images, 2)
	assert.Equal(t, "Report", report.Meta.Title)
}

func TestConvertDocument_PrimaryImagesSkipFallback(t *testing.T) {
	cfg := testConfig(t)
	pdf := writePDFs(t, "doc.pdf")[0]
	conv := &fakeConverter{output: Rendered{
		Markdown:  "# Doc\n\n![](_page_0_Picture_1.jpeg)\n",
		Images:    map[string][]byte{"_page_0_Picture_1.jpeg": []byte("jpeg")},
		PageCount: 3,
	}}
	ex := &fakeExtractor{assets: []types.ImageAsset{{Filename: "page_001_img_01_aaaaaaaa.png", PageNumber: 1}}}

	s := newTestPipeline(conv, ex, cfg, nil).ConvertDocument(context.Background(), NewDocument(pdf), &bytes.Buffer{})
	require.Equal(t, types.ConversionDone, s.Status, s.Error)

	assert.Zero(t, ex.calls)
	assert.Equal(t, types.ImagesPrimary, s.ImageSource)
	assert.Equal(t, 3, s.Pages)
	assert.Equal(t, 1, s.Images)

	data, err := os.ReadFile(filepath.Join(cfg.Conversion.OutputDir, "doc_images", "_page_0_Picture_1.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
	assert.Contains(t, readOutput(t, cfg, "doc"), "![](doc_images/_page_0_Picture_1.jpeg)")
}

func TestConvertDocument_FallbackDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Conversion.FallbackImages = false
	pdf := writePDFs(t, "doc.pdf")[0]
	ex := &fakeExtractor{assets: []types.ImageAsset{{Filename: "page_001_img_01_aaaaaaaa.png", PageNumber: 1}}}

	s := newTestPipeline(&fakeConverter{output: Rendered{Markdown: "# Doc"}}, ex, cfg, nil).
		ConvertDocument(context.Background(), NewDocument(pdf), &bytes.Buffer{})

	assert.Equal(t, types.ConversionDone, s.Status)
	assert.Zero(t, ex.calls)
	assert.Equal(t, types.ImagesNone, s.ImageSource)
}

func TestConvertDocument_FallbackErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := testConfig(t)
	pdf := writePDFs(t, "doc.pdf")[0]
	ex := &fakeExtractor{err: errors.New("xref broken")}

	s := newTestPipeline(&fakeConverter{output: Rendered{Markdown: "# Doc"}}, ex, cfg, zap.New(core)).
		ConvertDocument(context.Background(), NewDocument(pdf), &bytes.Buffer{})

	assert.Equal(t, types.ConversionDone, s.Status)
	assert.Equal(t, types.ImagesNone, s.ImageSource)
	require.Equal(t, 1, logs.FilterMessage("fallback image extraction failed").Len())
	entry := logs.FilterMessage("fallback image extraction failed").All()[0]
	assert.Equal(t, "doc", entry.ContextMap()["document"])

	_, err := os.Stat(filepath.Join(cfg.Conversion.OutputDir, "doc_images"))
	assert.True(t, os.IsNotExist(err), "empty images directory should be removed")
}

func TestConvertBatch(t *testing.T) {
	cfg := testConfig(t)
	paths := writePDFs(t, "a.pdf", "b.pdf", "c.pdf")

	require.NoError(t, os.MkdirAll(cfg.Conversion.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Conversion.OutputDir, "b.md"), []byte("existing"), 0o644))

	conv := &fakeConverter{
		output: Rendered{Markdown: "# Paper"},
		errors: map[string]error{paths[2]: errors.New("bad pdf")},
	}
	rec := &fakeRecorder{}

	var log bytes.Buffer
	result, err := newTestPipeline(conv, &fakeExtractor{}, cfg, nil).WithRecorder(rec).ConvertPaths(context.Background(), paths, &log)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Converted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Total())
	assert.True(t, result.HasFailures())
	assert.False(t, result.Canceled)
	assert.NotEmpty(t, result.ID)
	assert.Contains(t, log.String(), "Batch summary: 1 converted, 1 skipped, 1 failed (total: 3)")

	require.Len(t, rec.records, 2)
	assert.Equal(t, []string{result.ID, result.ID}, rec.batches)
	assert.Equal(t, "a", rec.records[0].ID)
	assert.Equal(t, "c", rec.records[1].ID)

	assert.Equal(t, filepath.Join(cfg.Conversion.OutputDir, "conversion_report_20250901_143005.yaml"), result.ReportPath)
	assert.FileExists(t, result.ReportPath)
}

func TestConvertBatch_Canceled(t *testing.T) {
	cfg := testConfig(t)
	paths := writePDFs(t, "a.pdf", "b.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := &fakeConverter{output: Rendered{Markdown: "# Paper"}}
	result, err := newTestPipeline(conv, &fakeExtractor{}, cfg, nil).ConvertPaths(ctx, paths, &bytes.Buffer{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Canceled)
	assert.Zero(t, result.Total())
	assert.Zero(t, conv.calls)
	assert.Empty(t, result.ReportPath)
}

func TestConvertBatch_Locked(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Conversion.OutputDir, 0o755))
	held := flock.New(filepath.Join(cfg.Conversion.OutputDir, lockFile))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	conv := &fakeConverter{output: Rendered{Markdown: "# Paper"}}
	_, err = newTestPipeline(conv, &fakeExtractor{}, cfg, nil).ConvertPaths(context.Background(), writePDFs(t, "a.pdf"), &bytes.Buffer{})

	assert.ErrorIs(t, err, ErrLocked)
	assert.Zero(t, conv.calls)
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	result := BatchResult{
		ID:        "batch-1",
		Converted: 1,
		Failed:    1,
		Skipped:   1,
		Summaries: []types.DocumentSummary{
			{Source: "a.pdf", Output: "a.md", Status: types.ConversionDone, Pages: 4, Images: 3, ImageSource: types.ImagesFallback, Inline: 2, Appended: 1, Duration: 1500 * time.Millisecond},
			{Source: "b.pdf", Status: types.ConversionFailed, Error: "bad pdf"},
			{Source: "c.pdf", Status: types.ConversionSkipped},
		},
	}

	path, err := WriteReport(dir, result, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "conversion_report_20250901_143005.yaml", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))

	assert.Equal(t, "batch-1", got.Batch)
	assert.Equal(t, ReportTotals{Converted: 1, Skipped: 1, Failed: 1}, got.Totals)
	require.Len(t, got.Succeeded, 1)
	assert.Equal(t, 1.5, got.Succeeded[0].Seconds)
	assert.Equal(t, 1, got.Succeeded[0].Appended)
	assert.Equal(t, []ReportFailure{{Source: "b.pdf", Error: "bad pdf"}}, got.Failed)
	assert.Equal(t, []string{"c.pdf"}, got.Skipped)
}

func TestCollectPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))
	single := filepath.Join(t.TempDir(), "single.pdf")
	require.NoError(t, os.WriteFile(single, nil, 0o644))

	got, err := CollectPDFs([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{single, filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.pdf")}, got)

	_, err = CollectPDFs([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}

func TestRelink(t *testing.T) {
	body := "![a](x.png) ![b](keep.png) ![c](sub/x.png)"
	got := relink(body, map[string]string{"x.png": "doc_images/x.png", "sub/x.png": "doc_images/x.png"})
	assert.Equal(t, "![a](doc_images/x.png) ![b](keep.png) ![c](doc_images/x.png)", got)
}
