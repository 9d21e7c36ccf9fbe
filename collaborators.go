package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// DataLoader, Decoder, Encoder, Processor, Decompressor and their
// supporting context types are defined in internal/model; see
// priority.go for why.
type DataLoader = model.DataLoader
type DecodingContext = model.DecodingContext
type Decoder = model.Decoder
type PartialDecoder = model.PartialDecoder
type DecoderFactory = model.DecoderFactory
type Encoder = model.Encoder
type EncoderFactory = model.EncoderFactory
type ProcessingContext = model.ProcessingContext
type Processor = model.Processor
type Decompressor = model.Decompressor
