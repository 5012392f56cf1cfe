// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pdf2md/pkg/types"
)

// fakeRuntime implements container.Runtime.
type fakeRuntime struct {
	missing bool
	output  string
	err     error
	image   string
	input   string
}

func (f *fakeRuntime) Name() string { return "docker" }
func (f *fakeRuntime) Available(context.Context) bool { return true }
func (f *fakeRuntime) ImageExists(_ context.Context, image string) error {
	if f.missing {
		return errors.New("no such image " + image)
	}
	return nil
}

func (f *fakeRuntime) Run(_ context.Context, image string, stdin io.Reader, stdout io.Writer) error {
	f.image = image
	data, _ := io.ReadAll(stdin)
	f.input = string(data)
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(stdout, f.output)
	return err
}

func TestMarkitdownConverter(t *testing.T) {
	pdf := writePDFs(t, "doc.pdf")[0]

	t.Run("pipes pdf through image", func(t *testing.T) {
		rt := &fakeRuntime{output: "# Doc\n"}
		c, err := NewMarkitdownConverter(context.Background(), rt, "")
		require.NoError(t, err)

		got, err := c.Convert(context.Background(), pdf)
		require.NoError(t, err)
		assert.Equal(t, "# Doc\n", got.Markdown)
		assert.Empty(t, got.Images)
		assert.Equal(t, imageMarkitdown, rt.image)
		assert.Equal(t, "%PDF-1.7", rt.input)
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := NewMarkitdownConverter(context.Background(), &fakeRuntime{missing: true}, "custom:1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "custom:1")
	})

	t.Run("empty output", func(t *testing.T) {
		c, err := NewMarkitdownConverter(context.Background(), &fakeRuntime{}, "")
		require.NoError(t, err)
		_, err = c.Convert(context.Background(), pdf)
		assert.ErrorContains(t, err, "empty output")
	})

	t.Run("container failure", func(t *testing.T) {
		c, err := NewMarkitdownConverter(context.Background(), &fakeRuntime{err: errors.New("exit status 1")}, "")
		require.NoError(t, err)
		_, err = c.Convert(context.Background(), pdf)
		assert.ErrorContains(t, err, "exit status 1")
	})
}

// markerOutput returns a runner that writes marker's nested output layout.
func markerOutput(files map[string]string) commandRunner {
	return func(_ context.Context, _ string, args ...string) ([]byte, error) {
		pdfPath, outDir := args[0], args[2]
		docDir := filepath.Join(outDir, Stem(pdfPath))
		if err := os.MkdirAll(docDir, 0o755); err != nil {
			return nil, err
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(docDir, name), []byte(content), 0o644); err != nil {
				return nil, err
			}
		}
		return []byte("Saved markdown"), nil
	}
}

func TestMarkerConverter(t *testing.T) {
	pdf := writePDFs(t, "doc.pdf")[0]

	c := &MarkerConverter{binary: "marker_single", run: markerOutput(map[string]string{
		"doc.md":                 "# Doc\n\n![](_page_0_Picture_1.jpeg)\n",
		"_page_0_Picture_1.jpeg": "jpeg",
		"doc_meta.json":          `{"title": "Doc", "page_stats": [{"page_id": 0}, {"page_id": 1}]}`,
	})}

	got, err := c.Convert(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "# Doc\n\n![](_page_0_Picture_1.jpeg)\n", got.Markdown)
	assert.Equal(t, map[string][]byte{"_page_0_Picture_1.jpeg": []byte("jpeg")}, got.Images)
	assert.Equal(t, 2, got.PageCount)
	assert.Equal(t, "Doc", got.Title)
}

func TestMarkerConverter_Failure(t *testing.T) {
	pdf := writePDFs(t, "doc.pdf")[0]
	c := &MarkerConverter{binary: "marker_single", run: func(context.Context, string, ...string) ([]byte, error) {
		return []byte("loading models\nRuntimeError: CUDA out of memory\n"), errors.New("exit status 1")
	}}

	_, err := c.Convert(context.Background(), pdf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RuntimeError: CUDA out of memory")
}

func TestReadMarkerOutput_FlatLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("text"), 0o644))

	got, err := readMarkerOutput(dir, "doc")
	require.NoError(t, err)
	assert.Equal(t, "text", got.Markdown)
	assert.Nil(t, got.Images)
	assert.Zero(t, got.PageCount)

	_, err = readMarkerOutput(t.TempDir(), "doc")
	assert.Error(t, err)
}

func TestNewConverter_UnknownBackend(t *testing.T) {
	_, err := NewConverter(context.Background(), types.ConversionConfig{Backend: "pandoc"})
	assert.ErrorContains(t, err, `unknown conversion backend "pandoc"`)
}
