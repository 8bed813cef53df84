package preview

import (
	"context"
	"fmt"
	"time"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
	"backup-timeline/internal/transcoder"
)

// Kind names the preview flavors.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindVideo Kind = "video"
)

// Image engine names accepted by NewGenerator.
const (
	EngineMagick = "magick"
	EngineVips   = "vips"
	EngineNative = "native"
)

// Tools are the external binaries the generator invokes.
type Tools struct {
	Convert string
	FFmpeg  string
}

// Options configures a Generator.
type Options struct {
	Tools       Tools
	ImageEngine string
}

// ImageEngine renders an image thumbnail that fits box without enlarging.
type ImageEngine interface {
	Name() string
	Thumbnail(ctx context.Context, in, out string, box Box) error
}

// Generator renders previews.
type Generator struct {
	runner transcoder.Runner
	tools  Tools
	images ImageEngine
}

// NewGenerator returns a Generator that runs external tools through runner.
func NewGenerator(runner transcoder.Runner, opts Options) (*Generator, error) {
	if opts.Tools.Convert == "" {
		opts.Tools.Convert = "convert"
	}
	if opts.Tools.FFmpeg == "" {
		opts.Tools.FFmpeg = "ffmpeg"
	}

	g := &Generator{runner: runner, tools: opts.Tools}

	switch opts.ImageEngine {
	case "", EngineMagick:
		g.images = &magickEngine{runner: runner, convert: opts.Tools.Convert}
	case EngineVips:
		if err := InitVips(); err != nil {
			return nil, err
		}
		g.images = vipsEngine{}
	case EngineNative:
		g.images = nativeEngine{}
	default:
		return nil, fmt.Errorf("unknown image engine %q", opts.ImageEngine)
	}

	logging.Debug("Preview generator using %s image engine", g.images.Name())
	return g, nil
}

// ImageEngineName returns the active image engine.
func (g *Generator) ImageEngineName() string {
	return g.images.Name()
}

// Image writes a thumbnail of the first frame of in to out.
func (g *Generator) Image(ctx context.Context, in, out string, box Box, overwrite bool) (err error) {
	defer observe(KindImage, time.Now(), &err)

	if err = box.Validate(); err != nil {
		return err
	}
	if err = CheckOutput(out, overwrite); err != nil {
		return err
	}
	if err = g.images.Thumbnail(ctx, in, out, box); err != nil {
		return fmt.Errorf("could not generate image preview: %w", err)
	}
	return nil
}

// PDF writes a thumbnail of the first page of in to out.
func (g *Generator) PDF(ctx context.Context, in, out string, box Box, overwrite bool) (err error) {
	defer observe(KindPDF, time.Now(), &err)

	if err = box.Validate(); err != nil {
		return err
	}
	if err = CheckOutput(out, overwrite); err != nil {
		return err
	}
	if err = g.runner.Run(ctx, g.tools.Convert, PDFArgs(in, out, box)); err != nil {
		return fmt.Errorf("could not generate pdf preview: %w", err)
	}
	return nil
}

// Video writes a digest of in to out. duration is the clip length in seconds
// and must be positive.
func (g *Generator) Video(ctx context.Context, in, out string, duration float64, box Box, overwrite bool) (err error) {
	defer observe(KindVideo, time.Now(), &err)

	if err = box.Validate(); err != nil {
		return err
	}
	if err = CheckOutput(out, overwrite); err != nil {
		return err
	}
	if !(duration > 0) {
		return &DurationError{Duration: duration}
	}
	if err = g.runner.Run(ctx, g.tools.FFmpeg, VideoArgs(in, out, duration, box)); err != nil {
		return fmt.Errorf("could not generate video preview: %w", err)
	}
	return nil
}

func observe(kind Kind, start time.Time, errp *error) {
	status := "success"
	switch {
	case *errp == nil:
	case isAlreadyExists(*errp):
		status = "exists"
	default:
		status = "error"
	}
	metrics.PreviewGenerationsTotal.WithLabelValues(string(kind), status).Inc()
	if status == "success" {
		metrics.PreviewGenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}
}

type magickEngine struct {
	runner  transcoder.Runner
	convert string
}

func (m *magickEngine) Name() string { return EngineMagick }

func (m *magickEngine) Thumbnail(ctx context.Context, in, out string, box Box) error {
	return m.runner.Run(ctx, m.convert, ImageArgs(in, out, box))
}
