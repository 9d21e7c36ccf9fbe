package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// Request and its supporting types are defined in internal/model; see
// priority.go for why.
type SourceKind = model.SourceKind

var ESourceKind = model.ESourceKind

type ByteProducer = model.ByteProducer
type HTTPFields = model.HTTPFields
type ProcessorDescriptor = model.ProcessorDescriptor
type ThumbnailOptions = model.ThumbnailOptions
type Request = model.Request

var (
	NewRequestFromURL         = model.NewRequestFromURL
	NewRequestFromURLRequest  = model.NewRequestFromURLRequest
	NewRequestFromByteProducer = model.NewRequestFromByteProducer
	NewRequestFromInlineData  = model.NewRequestFromInlineData
)
