package render

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ktool/ktool/macro"
)

// PlaceholderPNG is a 1×1 transparent pixel, base64-encoded. It is
// substituted when rendering or rasterization fails: a missing diagram is
// preferable to aborting the whole batch.
const PlaceholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// Config configures a Renderer.
type Config struct {
	Engine     Engine
	Rasterizer Rasterizer
	Logger     *slog.Logger
}

// Renderer fills a diagram record's vector and raster images in place.
type Renderer struct {
	engine Engine
	raster Rasterizer
	logger *slog.Logger
}

// New creates a Renderer with the given configuration.
func New(cfg Config) *Renderer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{engine: cfg.Engine, raster: cfg.Rasterizer, logger: logger}
}

// Render renders rec's source to SVG and PNG, mutating rec in place. It
// never fails: on any internal error the record receives PlaceholderPNG and
// the error is logged, so every record stays uploadable.
func (r *Renderer) Render(ctx context.Context, rec *macro.Record) {
	if err := r.render(ctx, rec); err != nil {
		r.logger.Warn("render: substituting placeholder image",
			"macro_id", rec.MacroID, "filename", rec.Filename, "error", err)
		rec.PNG = PlaceholderPNG
	}
}

// render is the fallible inner path; the placeholder substitution happens
// only at the Render boundary so failures stay observable here.
func (r *Renderer) render(ctx context.Context, rec *macro.Record) error {
	svg, err := r.engine.Render(ctx, rec.MacroID, rec.SourceCode)
	if err != nil {
		return fmt.Errorf("vector render: %w", err)
	}
	rec.SVG = svg

	png, err := r.raster.Rasterize(ctx, svg)
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	rec.PNG = png
	return nil
}
