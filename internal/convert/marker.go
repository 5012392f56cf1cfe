// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// commandRunner runs a command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true,
}

// MarkerConverter runs the marker CLI on the host. marker exports images
// alongside the Markdown, so documents converted with it usually skip the
// fallback engine.
type MarkerConverter struct {
	binary string
	run    commandRunner
}

// NewMarkerConverter checks that binary is on PATH.
func NewMarkerConverter(binary string) (*MarkerConverter, error) {
	if binary == "" {
		binary = "marker_single"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("marker binary %s not found: %w", binary, err)
	}
	return &MarkerConverter{binary: binary, run: runCommand}, nil
}

// markerMeta is the subset of <stem>_meta.json that pdf2md reads.
type markerMeta struct {
	PageStats []json.RawMessage `json:"page_stats"`
	Title     string            `json:"title"`
	Author    string            `json:"author"`
}

// Convert runs marker into a temporary directory and collects the Markdown,
// images and metadata it wrote.
func (m *MarkerConverter) Convert(ctx context.Context, pdfPath string) (Rendered, error) {
	tmp, err := os.MkdirTemp("", "pdf2md-marker-*")
	if err != nil {
		return Rendered{}, fmt.Errorf("creating marker work dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	out, err := m.run(ctx, m.binary, pdfPath, "--output_dir", tmp, "--output_format", "markdown")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Rendered{}, ctxErr
		}
		return Rendered{}, fmt.Errorf("converting %s with marker: %w: %s", pdfPath, err, lastOutputLine(out))
	}
	return readMarkerOutput(tmp, Stem(pdfPath))
}

// readMarkerOutput reads <dir>/<stem>/<stem>.md and its sibling files.
// Older marker releases write directly into dir, so both layouts are tried.
func readMarkerOutput(dir, stem string) (Rendered, error) {
	docDir := filepath.Join(dir, stem)
	if _, err := os.Stat(filepath.Join(docDir, stem+".md")); err != nil {
		docDir = dir
	}

	md, err := os.ReadFile(filepath.Join(docDir, stem+".md"))
	if err != nil {
		return Rendered{}, fmt.Errorf("marker wrote no Markdown: %w", err)
	}
	r := Rendered{Markdown: string(md)}

	entries, err := os.ReadDir(docDir)
	if err != nil {
		return Rendered{}, fmt.Errorf("reading marker output: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(docDir, e.Name()))
		if err != nil {
			return Rendered{}, fmt.Errorf("reading marker image %s: %w", e.Name(), err)
		}
		if r.Images == nil {
			r.Images = make(map[string][]byte)
		}
		r.Images[e.Name()] = data
	}

	raw, err := os.ReadFile(filepath.Join(docDir, stem+"_meta.json"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Rendered{}, fmt.Errorf("reading marker metadata: %w", err)
	default:
		var meta markerMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return Rendered{}, fmt.Errorf("parsing marker metadata: %w", err)
		}
		r.PageCount = len(meta.PageStats)
		r.Title = meta.Title
		r.Author = meta.Author
	}
	return r, nil
}

func lastOutputLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
