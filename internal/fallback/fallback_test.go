// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fallback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSource serves canned pages. Pages are 1-based; pageErrs fails a page.
type fakeSource struct {
	pages     [][]PageImage
	pageErrs  map[int]error
	countErr  error
	invalid   error
	requested []int
	onPage    func(page int)
}

func (f *fakeSource) PageCount(string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.pages), nil
}

func (f *fakeSource) PageImages(_ string, page int) ([]PageImage, error) {
	f.requested = append(f.requested, page)
	if f.onPage != nil {
		f.onPage(page)
	}
	if err := f.pageErrs[page]; err != nil {
		return nil, err
	}
	return f.pages[page-1], nil
}

func (f *fakeSource) Validate(string) error {
	return f.invalid
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "page_007_img_01_abc12345.png", ImageName(7, 1, "abc12345", "png"))
	assert.Equal(t, "page_120_img_12_00000000.jpg", ImageName(120, 12, "00000000", "jpg"))
}

func TestExtract(t *testing.T) {
	src := &fakeSource{pages: [][]PageImage{
		{{Data: []byte("first"), Ext: "png"}, {Data: []byte("second"), Ext: "jpg"}},
		{},
		{{Data: []byte("third"), Ext: ""}},
	}}
	dir := filepath.Join(t.TempDir(), "doc_images")

	got, err := newExtractor(src, nil).Extract(context.Background(), "doc.pdf", dir)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, ImageName(1, 1, contentHash([]byte("first")), "png"), got[0].Filename)
	assert.Equal(t, 1, got[0].PageNumber)
	assert.Equal(t, int64(5), got[0].SizeBytes)
	assert.Equal(t, ImageName(1, 2, contentHash([]byte("second")), "jpg"), got[1].Filename)
	assert.Equal(t, 3, got[2].PageNumber)
	assert.Equal(t, "bin", filepath.Ext(got[2].Filename)[1:])

	for _, a := range got {
		data, err := os.ReadFile(filepath.Join(dir, a.Filename))
		require.NoError(t, err)
		assert.Equal(t, contentHash(data), a.ContentHash)
	}
}

func TestExtract_SkipsDuplicateContent(t *testing.T) {
	logo := PageImage{Data: []byte("logo"), Ext: "png"}
	src := &fakeSource{pages: [][]PageImage{{logo}, {logo, {Data: []byte("chart"), Ext: "png"}}}}

	got, err := newExtractor(src, nil).Extract(context.Background(), "doc.pdf", t.TempDir())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].PageNumber)
	assert.Equal(t, 2, got[1].PageNumber)
	assert.Contains(t, got[1].Filename, "_img_02_")
}

func TestExtract_PageErrorIsLoggedAndSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := &fakeSource{
		pages: [][]PageImage{
			{{Data: []byte("a"), Ext: "png"}},
			nil,
			{{Data: []byte("c"), Ext: "png"}},
		},
		pageErrs: map[int]error{2: errors.New("broken xref")},
	}

	got, err := newExtractor(src, zap.New(core)).Extract(context.Background(), "doc.pdf", t.TempDir())
	require.NoError(t, err)

	assert.Len(t, got, 2)
	require.Equal(t, 1, logs.FilterMessage("page image extraction failed").Len())
	assert.Equal(t, int64(2), logs.All()[0].ContextMap()["page"])
}

func TestExtract_StopsBetweenPagesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		pages: [][]PageImage{
			{{Data: []byte("a"), Ext: "png"}},
			{{Data: []byte("b"), Ext: "png"}},
			{{Data: []byte("c"), Ext: "png"}},
		},
		onPage: func(page int) {
			if page == 1 {
				cancel()
			}
		},
	}

	got, err := newExtractor(src, nil).Extract(ctx, "doc.pdf", t.TempDir())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 1)
	assert.Equal(t, []int{1}, src.requested)
}

func TestExtract_PageCountError(t *testing.T) {
	src := &fakeSource{countErr: errors.New("not a pdf")}

	_, err := newExtractor(src, nil).Extract(context.Background(), "doc.pdf", t.TempDir())
	assert.EqualError(t, err, "not a pdf")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	require.NoError(t, os.WriteFile(good, []byte("%PDF-1.7"), 0o644))
	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	tests := []struct {
		name    string
		path    string
		src     *fakeSource
		wantErr bool
		isEmpty bool
	}{
		{name: "valid", path: good, src: &fakeSource{pages: [][]PageImage{nil}}},
		{name: "missing", path: filepath.Join(dir, "nope.pdf"), src: &fakeSource{}, wantErr: true},
		{name: "directory", path: dir, src: &fakeSource{}, wantErr: true},
		{name: "zero bytes", path: empty, src: &fakeSource{}, wantErr: true, isEmpty: true},
		{name: "unparseable", path: good, src: &fakeSource{invalid: errors.New("bad header")}, wantErr: true},
		{name: "no pages", path: good, src: &fakeSource{}, wantErr: true, isEmpty: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newExtractor(tt.src, nil).Validate(tt.path)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tt.isEmpty {
				assert.ErrorIs(t, err, ErrEmptyPDF)
			}
		})
	}
}
