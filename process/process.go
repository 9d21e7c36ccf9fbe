// Package process provides a reference imagepipeline.Processor that
// applies a Request's ThumbnailOptions by resizing the decoded image
// (spec §4.5.6). Resizing itself is a simple nearest-neighbor scaler
// built on the standard library only: none of the retrieval pack's
// example repos or the teacher carry an image-scaling library
// (golang.org/x/image/draw is not part of that corpus), so this one
// small piece is stdlib rather than a wired third-party dependency —
// see DESIGN.md.
package process

import (
	"image"
	"image/color"
	"math"

	"github.com/kean-go/imagepipeline/internal/model"
)

// ThumbnailProcessor resizes a decoded image to the dimensions named
// by the Request's ThumbnailOptions (spec §4.5.6). A Request with no
// Thumbnail passes its container through unchanged.
type ThumbnailProcessor struct{}

// Process implements model.Processor.
func (ThumbnailProcessor) Process(ctx model.ProcessingContext, container model.ImageContainer) (model.ImageContainer, error) {
	opts := ctx.Request.Thumbnail
	if opts == nil {
		return container, nil
	}
	img, ok := container.Image.(image.Image)
	if !ok {
		return container, nil
	}

	w, h := targetSize(img.Bounds(), opts)
	if w <= 0 || h <= 0 || (w == img.Bounds().Dx() && h == img.Bounds().Dy()) {
		return container, nil
	}

	container.Image = resizeNearestNeighbor(img, w, h)
	container.Processed = true
	return container, nil
}

// targetSize computes the output pixel dimensions for opts against an
// image whose current bounds are b, honoring IsFixed (max-pixel-size,
// aspect-preserving) vs. flexible width/height (spec §4.5.6).
func targetSize(b image.Rectangle, opts *model.ThumbnailOptions) (int, int) {
	srcW, srcH := b.Dx(), b.Dy()
	if opts.IsFixed() {
		scale := opts.MaxPixelSize / math.Max(float64(srcW), float64(srcH))
		if scale >= 1 && !opts.Upscale {
			return srcW, srcH
		}
		return int(math.Round(float64(srcW) * scale)), int(math.Round(float64(srcH) * scale))
	}

	w, h := opts.Width, opts.Height
	if w <= 0 || h <= 0 {
		return srcW, srcH
	}
	if !opts.Crop {
		scale := math.Min(w/float64(srcW), h/float64(srcH))
		if scale >= 1 && !opts.Upscale {
			return srcW, srcH
		}
		return int(math.Round(float64(srcW) * scale)), int(math.Round(float64(srcH) * scale))
	}
	return int(math.Round(w)), int(math.Round(h))
}

// resizeNearestNeighbor produces a new image of size w×h by sampling
// the nearest source pixel for each destination pixel.
func resizeNearestNeighbor(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*srcW/w
			dst.Set(x, y, colorAt(src, sx, sy))
		}
	}
	return dst
}

func colorAt(img image.Image, x, y int) color.Color { return img.At(x, y) }

// Factory returns a ProcessorDescriptor wrapping ThumbnailProcessor,
// ready to append to a Request's Processors list.
func Factory() model.ProcessorDescriptor {
	return model.ProcessorDescriptor{
		Identifier:         "thumbnail",
		HashableIdentifier: "thumbnail",
		Processor:          ThumbnailProcessor{},
	}
}
