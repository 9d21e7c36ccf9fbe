package model

import "context"

// SourceKind identifies how a Request's bytes are obtained.
type SourceKind uint8

const (
	sourceKindURL SourceKind = iota
	sourceKindURLRequest
	sourceKindByteProducer
	sourceKindInlineData
)

var ESourceKind = SourceKind(sourceKindURL)

func (SourceKind) URL() SourceKind         { return sourceKindURL }
func (SourceKind) URLRequest() SourceKind  { return sourceKindURLRequest }
func (SourceKind) ByteProducer() SourceKind { return sourceKindByteProducer }
func (SourceKind) InlineData() SourceKind  { return sourceKindInlineData }

// ByteProducer is an asynchronous source of bytes for a Request whose
// source is not a URL — it streams chunks to sink, returning when the
// source is exhausted or ctx is cancelled.
type ByteProducer func(ctx context.Context, sink func(chunk []byte) error) error

// HTTPFields carries request-level HTTP customization (headers,
// cache-control hints) for a url+http-fields source.
type HTTPFields struct {
	Headers map[string]string
	// CachePolicy, when non-empty, is passed through to the DataLoader
	// as a transport-level cache directive (e.g. "no-cache"); the
	// pipeline itself does not interpret it.
	CachePolicy string
}

// ProcessorDescriptor identifies a Processor for cache-key derivation
// and in-memory coalescing (spec §3).
type ProcessorDescriptor struct {
	// Identifier is a stable string used in disk-cache keys. Two
	// descriptors with equal Identifier are interchangeable.
	Identifier string
	// HashableIdentifier is used for in-memory Job coalescing; it may
	// be cheaper to compute/compare than Identifier but must agree
	// with it on equality.
	HashableIdentifier string
	Processor          Processor
}

// ThumbnailOptions requests a downsampled decode (spec §4.5.6). Either
// MaxPixelSize (fixed) or both Width and Height (flexible) should be set.
type ThumbnailOptions struct {
	MaxPixelSize float64
	Width        float64
	Height       float64
	ContentMode  string
	Crop         bool
	Upscale      bool
}

// IsFixed reports whether t requests a fixed-max-pixel-size thumbnail
// as opposed to a flexible width/height one.
func (t *ThumbnailOptions) IsFixed() bool { return t != nil && t.MaxPixelSize > 0 }

// Request identifies a logical image load (spec §3, §4.6). Requests
// are value-typed and cheap to copy; Processors/Priority/Options may
// be mutated in place by the caller between uses.
type Request struct {
	Source       SourceKind
	URL          string
	HTTPFields   *HTTPFields
	ByteProducer ByteProducer
	InlineData   []byte

	// ID overrides the key component otherwise derived from URL; it
	// defaults to URL when empty.
	ID string

	Processors []ProcessorDescriptor
	Priority   Priority
	Options    Options
	Thumbnail  *ThumbnailOptions
	// ScaleOverride, when non-zero, participates in the memory-cache
	// key alongside the thumbnail descriptor.
	ScaleOverride float64

	UserInfo map[string]any
}

// NewRequestFromURL builds a Request whose source is a plain URL.
func NewRequestFromURL(url string) Request {
	return Request{Source: ESourceKind.URL(), URL: url, Priority: EPriority}
}

// NewRequestFromURLRequest builds a Request carrying HTTP customization.
func NewRequestFromURLRequest(url string, fields HTTPFields) Request {
	return Request{Source: ESourceKind.URLRequest(), URL: url, HTTPFields: &fields, Priority: EPriority}
}

// NewRequestFromByteProducer builds a Request sourced from an
// asynchronous byte producer identified by a caller-supplied stable id.
func NewRequestFromByteProducer(id string, producer ByteProducer) Request {
	return Request{Source: ESourceKind.ByteProducer(), ID: id, ByteProducer: producer, Priority: EPriority}
}

// NewRequestFromInlineData builds a Request whose bytes are already
// resident in memory.
func NewRequestFromInlineData(id string, data []byte) Request {
	return Request{Source: ESourceKind.InlineData(), ID: id, InlineData: data, Priority: EPriority}
}

// Identity returns the URL-or-ID component keys are derived from.
func (r Request) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	return r.URL
}

// IsLocalOrInline reports whether the source can never write to the
// disk cache regardless of policy (spec §4.5.1: local file / data: URLs).
func (r Request) IsLocalOrInline() bool {
	switch r.Source {
	case sourceKindByteProducer, sourceKindInlineData:
		return true
	}
	return hasLocalOrDataScheme(r.URL)
}

func hasLocalOrDataScheme(url string) bool {
	for _, scheme := range []string{"file://", "data:"} {
		if len(url) >= len(scheme) && url[:len(scheme)] == scheme {
			return true
		}
	}
	return false
}

// IsResumableCapable reports whether this source kind can possibly
// participate in the Resumable Download Store (real network URLs only).
func (r Request) IsResumableCapable() bool {
	return (r.Source == sourceKindURL || r.Source == sourceKindURLRequest) && !r.IsLocalOrInline()
}
