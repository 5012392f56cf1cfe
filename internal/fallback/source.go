// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fallback

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImage is one embedded image read from a page.
type PageImage struct {
	Data []byte
	// Ext is the file extension without the dot, e.g. "png".
	Ext string
}

// imageSource reads PDF structure. The production source is pdfcpu; tests
// substitute canned pages.
type imageSource interface {
	PageCount(pdfPath string) (int, error)
	PageImages(pdfPath string, page int) ([]PageImage, error)
	Validate(pdfPath string) error
}

// pdfcpuSource implements imageSource with pdfcpu.
type pdfcpuSource struct {
	conf *model.Configuration
}

func newPDFCPUSource() *pdfcpuSource {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &pdfcpuSource{conf: conf}
}

func (s *pdfcpuSource) PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("counting pages of %s: %w", pdfPath, err)
	}
	return n, nil
}

func (s *pdfcpuSource) Validate(pdfPath string) error {
	if err := api.ValidateFile(pdfPath, s.conf); err != nil {
		return fmt.Errorf("validating %s: %w", pdfPath, err)
	}
	return nil
}

// PageImages extracts the images of a single page so callers can stop
// between pages.
func (s *pdfcpuSource) PageImages(pdfPath string, page int) ([]PageImage, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(page)}, s.conf)
	if err != nil {
		return nil, fmt.Errorf("extracting images from page %d: %w", page, err)
	}

	var out []PageImage
	for _, byObj := range pages {
		objNrs := make([]int, 0, len(byObj))
		for nr := range byObj {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			img := byObj[nr]
			if img.Reader == nil {
				continue
			}
			data, err := io.ReadAll(img.Reader)
			if err != nil {
				return out, fmt.Errorf("reading image object %d on page %d: %w", nr, page, err)
			}
			out = append(out, PageImage{Data: data, Ext: img.FileType})
		}
	}
	return out, nil
}
