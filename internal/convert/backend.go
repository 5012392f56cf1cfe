// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"

	"github.com/pdiddy/pdf2md/internal/container"
	"github.com/pdiddy/pdf2md/pkg/types"
)

// NewConverter builds the primary engine selected by cfg.Backend.
func NewConverter(ctx context.Context, cfg types.ConversionConfig) (Converter, error) {
	switch cfg.Backend {
	case types.BackendMarkitdown, "":
		rt, err := container.DetectRuntime(ctx, cfg.ContainerRuntime)
		if err != nil {
			return nil, err
		}
		return NewMarkitdownConverter(ctx, rt, cfg.MarkitdownImage)
	case types.BackendMarker:
		return NewMarkerConverter(cfg.MarkerBinary)
	default:
		return nil, fmt.Errorf("unknown conversion backend %q (want %s or %s)",
			cfg.Backend, types.BackendMarkitdown, types.BackendMarker)
	}
}
