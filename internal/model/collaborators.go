package model

import "context"

// DataLoader is the byte-level HTTP (or local) fetcher collaborator.
// Implementations are external to the engine (spec §1); the engine
// only depends on this interface.
type DataLoader interface {
	// LoadData fetches the bytes for request, invoking onChunk as data
	// arrives (onChunk may be called with the full buffer if the
	// underlying transport is not streamed) and onResponse at most once
	// with response metadata as soon as it is known. resumeFrom/validator,
	// when resumeFrom > 0, ask the loader to issue a Range/If-Range
	// request; the loader reports via the returned bool whether the
	// server honored the resume (206) or restarted (200).
	//
	// completed (onChunk) and ContentLength (onResponse's URLResponse)
	// are both absolute: they already account for resumeFrom, not just
	// the bytes of the current attempt. On a resume, onChunk is called
	// only with the new tail bytes actually read, never the
	// already-received prefix.
	LoadData(ctx context.Context, request Request, resumeFrom int64, validator string,
		onResponse func(*URLResponse), onChunk func(chunk []byte, completed, total int64) error) (resumed bool, err error)
}

// DecodingContext is passed to a Decoder so it can adapt its behavior
// to the request and to whether the byte stream is complete.
type DecodingContext struct {
	Request     Request
	URLResponse *URLResponse
	IsCompleted bool
	ByteCount   int
}

// Decoder turns bytes into an ImageContainer. Progressive decoding is
// optional: a Decoder that supports it also implements PartialDecoder,
// and the engine produces no previews for a Decoder that does not.
type Decoder interface {
	Decode(ctx DecodingContext, data []byte) (ImageContainer, error)
}

// PartialDecoder is implemented by Decoders that support progressive
// decoding. DecodePartial returns (container, completeScan, error);
// only decodes with completeScan=true produce a preview container
// (spec §4.5.2).
type PartialDecoder interface {
	DecodePartial(ctx DecodingContext, data []byte) (container ImageContainer, completeScan bool, err error)
}

// DecoderFactory is consulted per request to obtain a Decoder;
// returning nil is treated as CodeDecodeFailed (decoderNotRegistered).
type DecoderFactory func(ctx DecodingContext) Decoder

// Encoder turns a processed image back into bytes for the disk cache.
// Returning (nil, nil) is a benign skip: the engine does not treat it
// as an error (spec §6).
type Encoder interface {
	Encode(container ImageContainer) ([]byte, error)
}

// EncoderFactory is consulted per request to obtain an Encoder.
type EncoderFactory func(request Request) Encoder

// ProcessingContext is passed to a Processor.
type ProcessingContext struct {
	Request     Request
	Response    Response
	IsCompleted bool
}

// Processor transforms an ImageContainer, e.g. resizing or applying a
// filter. Returning the input container unchanged still counts as
// "applied" for decompression-skip purposes (spec §4.5.3); the engine
// sets the returned container's Processed flag itself after every
// processor call, whether or not the image changed.
type Processor interface {
	Process(ctx ProcessingContext, container ImageContainer) (ImageContainer, error)
}

// Decompressor forces a container into a drawable bitmap form
// (spec §4.5.4); external collaborator.
type Decompressor interface {
	Decompress(container ImageContainer) (ImageContainer, error)
}
