// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pdf2md pipeline:
// conversion inputs and outcomes, extracted image assets, and configuration.
package types

import "time"

// ConversionStatus indicates the state of PDF-to-Markdown conversion for a document.
type ConversionStatus string

const (
	ConversionNone    ConversionStatus = "none"
	ConversionDone    ConversionStatus = "converted"
	ConversionSkipped ConversionStatus = "skipped"
	ConversionFailed  ConversionStatus = "failed"
)

// ImageSource names the engine that supplied a document's images.
type ImageSource string

const (
	ImagesNone     ImageSource = "none"
	ImagesPrimary  ImageSource = "primary"
	ImagesFallback ImageSource = "fallback"
)

// Document is one PDF queued for conversion.
type Document struct {
	// ID is the filename stem of the PDF (e.g. "annual-report-2024").
	ID string `json:"id" yaml:"id"`

	// PDFPath is the local filesystem path to the PDF.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`
}

// ImageAsset is an image extracted from a PDF by the fallback engine. The
// filename encodes the page index and a content hash; assets are immutable
// once created.
type ImageAsset struct {
	// Filename is the generated name, e.g. "page_007_img_01_abc12345.png".
	Filename string `json:"filename" yaml:"filename"`

	// PageNumber is the 1-based page the image came from; 0 means unknown.
	PageNumber int `json:"page_number" yaml:"page_number"`

	// ContentHash is the truncated MD5 of the image bytes.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// SizeBytes is the size of the persisted image.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`
}

// DocumentSummary records the outcome of converting one document. It feeds
// the batch report and the history store.
type DocumentSummary struct {
	ID          string           `json:"id" yaml:"id"`
	Source      string           `json:"source" yaml:"source"`
	Output      string           `json:"output,omitempty" yaml:"output,omitempty"`
	Status      ConversionStatus `json:"status" yaml:"status"`
	Error       string           `json:"error,omitempty" yaml:"error,omitempty"`
	Pages       int              `json:"pages" yaml:"pages"`
	Images      int              `json:"images" yaml:"images"`
	ImageSource ImageSource      `json:"image_source" yaml:"image_source"`

	// Inline counts images placed in the body (rewritten or inserted);
	// Appended counts images placed in the trailing appendix.
	Inline   int `json:"inline" yaml:"inline"`
	Appended int `json:"appended" yaml:"appended"`

	Duration    time.Duration `json:"duration" yaml:"duration"`
	ConvertedAt time.Time     `json:"converted_at" yaml:"converted_at"`
}

// Succeeded reports whether the document produced Markdown output.
func (s DocumentSummary) Succeeded() bool {
	return s.Status == ConversionDone
}
