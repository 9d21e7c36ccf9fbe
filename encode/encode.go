// Package encode provides a reference imagepipeline.Encoder built on
// the standard library's image/jpeg codec (spec §6's encoder
// interface), used by the orchestrator's disk-cache encode step.
package encode

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/pkg/errors"

	"github.com/kean-go/imagepipeline/internal/model"
)

// JPEGEncoder encodes a container's decoded image back to JPEG bytes
// for the disk cache. Quality follows image/jpeg's own convention
// (1-100); the zero value falls back to jpeg's default.
type JPEGEncoder struct {
	Quality int
}

// Encode implements model.Encoder. A container whose Image does not
// satisfy image.Image (e.g. a decoder that only ever produces
// previews, or a non-image payload) is a benign skip, not an error,
// matching spec §6: "Returning (nil, nil) is a benign skip".
func (e JPEGEncoder) Encode(container model.ImageContainer) ([]byte, error) {
	img, ok := container.Image.(image.Image)
	if !ok {
		return nil, nil
	}

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: e.Quality}
	if opts.Quality <= 0 {
		opts.Quality = jpeg.DefaultQuality
	}
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), nil
}

// Factory returns a model.EncoderFactory handing out a JPEGEncoder at
// the given quality for every request.
func Factory(quality int) model.EncoderFactory {
	e := JPEGEncoder{Quality: quality}
	return func(model.Request) model.Encoder { return e }
}
