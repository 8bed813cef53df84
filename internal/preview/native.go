package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"

	// Decoders beyond what imaging registers
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// nativeEngine renders thumbnails in pure Go. Output format follows the
// output file extension.
type nativeEngine struct{}

func (nativeEngine) Name() string { return EngineNative }

func (nativeEngine) Thumbnail(ctx context.Context, in, out string, box Box) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Decoding keeps only the first frame of animated formats.
	img, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	// Fit never enlarges.
	thumb := imaging.Fit(img, box.Width, box.Height, imaging.Lanczos)

	if err := imaging.Save(flatten(thumb), out, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// flatten composites img over a white background.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
