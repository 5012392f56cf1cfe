// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit inspects converted Markdown files. It parses the frontmatter
// written by the convert package, walks the Markdown AST for images and
// checks every local image against the document's images directory.
// Images inside code blocks are not images to a Markdown renderer and are
// ignored here as well.
package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/pdiddy/pdf2md/internal/reconcile"
)

// Metadata is the frontmatter written at conversion time.
type Metadata struct {
	SourcePDF   string `yaml:"source_pdf"`
	ConvertedAt string `yaml:"converted_at"`
	Pages       int    `yaml:"pages"`
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
}

// Image is one image node in document order.
type Image struct {
	Alt         string
	Destination string
}

// Remote reports whether the image points outside the local filesystem.
func (i Image) Remote() bool {
	return strings.Contains(i.Destination, "://") || strings.HasPrefix(i.Destination, "data:")
}

// Report is the audit outcome for one Markdown file.
type Report struct {
	Path   string
	Meta   Metadata
	Images []Image

	// Missing lists local destinations with no file on disk.
	Missing []string
	// Duplicates lists destinations referenced more than once.
	Duplicates []string
	// Orphans lists files in the images directory that nothing references.
	Orphans []string
}

// OK reports whether the document has no missing, duplicate or orphaned
// images.
func (r Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Duplicates) == 0 && len(r.Orphans) == 0
}

// Parse splits source into frontmatter and body and returns the body's
// images. A document without frontmatter yields zero Metadata.
func Parse(source []byte) (Metadata, []Image, error) {
	var meta Metadata
	body, err := frontmatter.Parse(bytes.NewReader(source), &meta)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return meta, Images(body), nil
}

// Images returns every image node of a Markdown body.
func Images(body []byte) []Image {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(body))

	var images []Image
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := node.(*ast.Image); ok {
			images = append(images, Image{
				Alt:         altText(img, body),
				Destination: string(img.Destination),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return images
}

func altText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(altText(c, source))
		}
	}
	return b.String()
}

// File audits the Markdown file at path. Local destinations are resolved
// relative to the file's directory; orphans are looked up in the
// <stem>_images directory next to it.
func File(path string) (Report, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("reading %s: %w", path, err)
	}
	meta, images, err := Parse(source)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", path, err)
	}

	r := Report{Path: path, Meta: meta, Images: images}
	dir := filepath.Dir(path)
	counts := make(map[string]int, len(images))
	referenced := make(map[string]bool, len(images))

	for _, img := range images {
		if img.Remote() {
			continue
		}
		counts[img.Destination]++
		if counts[img.Destination] == 2 {
			r.Duplicates = append(r.Duplicates, img.Destination)
		}
		if counts[img.Destination] > 1 {
			continue
		}
		local := filepath.Join(dir, filepath.FromSlash(img.Destination))
		referenced[filepath.Clean(local)] = true
		if _, err := os.Stat(local); err != nil {
			r.Missing = append(r.Missing, img.Destination)
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	imagesDir := filepath.Join(dir, reconcile.ImagesDir(stem))
	entries, err := os.ReadDir(imagesDir)
	if err != nil && !os.IsNotExist(err) {
		return r, fmt.Errorf("reading %s: %w", imagesDir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !referenced[filepath.Join(imagesDir, e.Name())] {
			r.Orphans = append(r.Orphans, reconcile.ImageLink(stem, e.Name()))
		}
	}
	sort.Strings(r.Orphans)
	return r, nil
}

// Dir audits every .md file directly inside dir.
func Dir(dir string) ([]Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var reports []Report
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		r, err := File(filepath.Join(dir, e.Name()))
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
