// Package decode provides a reference imagepipeline.Decoder built on
// the standard library's image codecs (spec §6's decoder interface;
// codec internals themselves are an explicit Non-goal, so this wraps
// stdlib rather than implementing any format itself).
package decode

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"

	"github.com/kean-go/imagepipeline/internal/model"
)

// StdlibDecoder decodes any format registered with the standard
// library's image package (jpeg/png/gif by this package's blank
// imports; callers may blank-import additional codecs, e.g.
// golang.org/x/image/webp, to extend it without changing this type).
type StdlibDecoder struct{}

// Decode implements model.Decoder. It does not implement
// model.PartialDecoder: stdlib's image.Decode has no progressive-scan
// API, so progressive decoding is simply unavailable for this decoder
// (the orchestrator already treats a decoder without that interface as
// "no previews for this request", spec §4.5.2).
func (StdlibDecoder) Decode(ctx model.DecodingContext, data []byte) (model.ImageContainer, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.ImageContainer{}, errors.Wrap(err, "decoding image")
	}
	return model.ImageContainer{
		Image: img,
		Type:  format,
		Data:  data,
	}, nil
}

// Factory returns a model.DecoderFactory that always hands out the
// same StdlibDecoder, suitable for Config.DecoderFactory when no
// per-request decoder selection is needed.
func Factory() model.DecoderFactory {
	d := StdlibDecoder{}
	return func(model.DecodingContext) model.Decoder { return d }
}
