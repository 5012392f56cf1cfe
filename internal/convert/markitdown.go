// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/pdf2md/internal/container"
)

const imageMarkitdown = "markitdown:latest"

// MarkitdownConverter converts PDFs by piping them through the markitdown
// container image. markitdown emits text only, so its documents always go
// through the fallback image engine.
type MarkitdownConverter struct {
	runtime container.Runtime
	image   string
}

// NewMarkitdownConverter creates a converter that uses the given container
// runtime to run the markitdown image. It verifies that the image exists
// locally before returning. An empty image selects markitdown:latest.
func NewMarkitdownConverter(ctx context.Context, rt container.Runtime, image string) (*MarkitdownConverter, error) {
	if image == "" {
		image = imageMarkitdown
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &MarkitdownConverter{runtime: rt, image: image}, nil
}

// Convert pipes the PDF at pdfPath through the markitdown container.
func (m *MarkitdownConverter) Convert(ctx context.Context, pdfPath string) (Rendered, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return Rendered{}, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, f, &out); err != nil {
		return Rendered{}, fmt.Errorf("converting %s with markitdown: %w", pdfPath, err)
	}
	if out.Len() == 0 {
		return Rendered{}, fmt.Errorf("markitdown produced empty output for %s", pdfPath)
	}
	return Rendered{Markdown: out.String()}, nil
}
