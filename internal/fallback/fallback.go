// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fallback extracts embedded images from a PDF when the primary
// conversion engine returns none. Images are written to the document's
// images directory under names that encode their page:
//
//	page_<NNN>_img_<NN>_<hash8>.<ext>
//
// so the reconcile package can later recover the page from the filename.
package fallback

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/pdiddy/pdf2md/pkg/types"
)

// ErrEmptyPDF is returned by Validate for zero-byte files and PDFs without pages.
var ErrEmptyPDF = errors.New("PDF is empty")

// Extractor pulls embedded images out of PDFs.
type Extractor struct {
	source imageSource
	logger *zap.Logger
}

// NewExtractor returns an Extractor backed by pdfcpu.
func NewExtractor(logger *zap.Logger) *Extractor {
	return newExtractor(newPDFCPUSource(), logger)
}

func newExtractor(src imageSource, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{source: src, logger: logger.With(zap.String("component", "fallback"))}
}

// ImageName builds the filename for the index-th image (1-based) on a
// 1-based page.
func ImageName(page, index int, hash, ext string) string {
	return fmt.Sprintf("page_%03d_img_%02d_%s.%s", page, index, hash, ext)
}

// contentHash returns the first 8 hex digits of the MD5 of data.
func contentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])[:8]
}

// Extract writes every embedded image of pdfPath into imagesDir and returns
// the assets in page order. Identical images (same content hash) are kept
// once. An image that cannot be read or written is logged and skipped. The
// context is checked between pages; on cancellation the assets extracted so
// far are returned with the context error.
func (e *Extractor) Extract(ctx context.Context, pdfPath, imagesDir string) ([]types.ImageAsset, error) {
	pages, err := e.source.PageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating images directory: %w", err)
	}

	var assets []types.ImageAsset
	seen := make(map[string]bool)
	found := 0

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return assets, err
		}

		images, err := e.source.PageImages(pdfPath, page)
		if err != nil {
			e.logger.Warn("page image extraction failed", zap.Int("page", page), zap.Error(err))
		}

		for i, img := range images {
			found++
			hash := contentHash(img.Data)
			if seen[hash] {
				e.logger.Debug("duplicate image skipped", zap.Int("page", page), zap.String("hash", hash))
				continue
			}

			name := ImageName(page, i+1, hash, imageExt(img.Ext))
			if err := writeImage(filepath.Join(imagesDir, name), img.Data); err != nil {
				e.logger.Warn("saving image failed", zap.String("image", name), zap.Error(err))
				continue
			}
			seen[hash] = true

			assets = append(assets, types.ImageAsset{
				Filename:    name,
				PageNumber:  page,
				ContentHash: hash,
				SizeBytes:   int64(len(img.Data)),
			})
			e.logger.Debug("image extracted",
				zap.String("image", name),
				zap.String("size", humanize.Bytes(uint64(len(img.Data)))))
		}
	}

	e.logger.Info("fallback extraction finished",
		zap.String("pdf", filepath.Base(pdfPath)),
		zap.Int("saved", len(assets)),
		zap.Int("found", found))
	return assets, nil
}

// Validate checks that pdfPath exists, is non-empty, parses and has pages.
func (e *Extractor) Validate(pdfPath string) error {
	info, err := os.Stat(pdfPath)
	if err != nil {
		return fmt.Errorf("checking %s: %w", pdfPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", pdfPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s: %w", pdfPath, ErrEmptyPDF)
	}
	if err := e.source.Validate(pdfPath); err != nil {
		return err
	}
	pages, err := e.source.PageCount(pdfPath)
	if err != nil {
		return err
	}
	if pages == 0 {
		return fmt.Errorf("%s has no pages: %w", pdfPath, ErrEmptyPDF)
	}
	return nil
}

// PageCount returns the number of pages in pdfPath.
func (e *Extractor) PageCount(pdfPath string) (int, error) {
	return e.source.PageCount(pdfPath)
}

func imageExt(ext string) string {
	if ext == "" {
		return "bin"
	}
	return ext
}

// writeImage writes data unless an identical file is already there from an
// earlier run.
func writeImage(path string, data []byte) error {
	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(data)) {
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}
