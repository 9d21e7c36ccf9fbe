package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// ProcessorKeyPart is the key-relevant projection of a Request's
// processor descriptor (spec §3: "Processor descriptor").
type ProcessorKeyPart struct {
	Identifier         string
	HashableIdentifier string
}

// ThumbnailDescriptor is the key-relevant projection of a Request's
// thumbnail options (spec §4.3).
type ThumbnailDescriptor struct {
	Fixed        bool
	MaxPixelSize float64
	Width        float64
	Height       float64
	ContentMode  string
	Crop         bool
	Upscale      bool
}

// Canonical renders the descriptor the way spec §4.3 specifies, used
// as a key component for both cache tiers.
func (t *ThumbnailDescriptor) Canonical() string {
	if t == nil {
		return ""
	}
	opts := thumbnailOptionsSuffix(t.Crop, t.Upscale)
	if t.Fixed {
		return fmt.Sprintf("com.github/kean/nuke/thumbnail?maxPixelSize=%s,options=%s",
			formatFloat(t.MaxPixelSize), opts)
	}
	return fmt.Sprintf("com.github/kean/nuke/thumbnail?width=%s,height=%s,contentMode=%s,options=%s",
		formatFloat(t.Width), formatFloat(t.Height), t.ContentMode, opts)
}

func thumbnailOptionsSuffix(crop, upscale bool) string {
	var b strings.Builder
	if crop {
		b.WriteString("crop")
	}
	if upscale {
		b.WriteString("upscale")
	}
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Input bundles everything the two key-derivation functions need. The
// caller (the orchestrator, via the coordinator) resolves Identity as
// observer-key ?? url ?? request-id before constructing it — key
// derivation itself does not know about Requests or Observers.
type Input struct {
	Identity      string
	Processors    []ProcessorKeyPart
	Thumbnail     *ThumbnailDescriptor
	ScaleOverride float64
	// OptionsSuffix carries any option bits that affect cached
	// *content* (as opposed to read/write policy, which never touches
	// keys) into the disk key.
	OptionsSuffix string
}

// WithProcessorPrefix returns a copy of in truncated to the first n
// processors, used by the orchestrator's cache-lookup-order walk over
// processor-list prefixes (spec §4.5, stages c/d).
func (in Input) WithProcessorPrefix(n int) Input {
	out := in
	if n >= len(in.Processors) {
		out.Processors = in.Processors
	} else {
		out.Processors = in.Processors[:n]
	}
	return out
}

// WithoutProcessors returns a copy of in with its processor list
// cleared, used for the decode-stage coalescing key: decoding depends
// on identity, thumbnail and scale only, never on the processor chain
// applied afterwards (spec §4.5, stage "get-decoded-image").
func (in Input) WithoutProcessors() Input {
	out := in
	out.Processors = nil
	return out
}

// AsOriginal returns a copy of in with processors and thumbnail both
// cleared, used for the original (undecoded) bytes cache entry: the
// spec says thumbnails are never stored in the disk cache but the
// original bytes powering them are (§4.5.6), so that entry's key must
// not vary with the thumbnail or processor configuration a given
// request happened to ask for.
func (in Input) AsOriginal() Input {
	return Input{Identity: in.Identity, OptionsSuffix: in.OptionsSuffix}
}

// MemoryKey derives the in-memory cache key (spec §4.3): identity
// combined with the processors' hashable identifiers (cheaper to
// compare, used only for in-process coalescing/lookup), the thumbnail
// descriptor, and any scale override.
func MemoryKey(in Input) string {
	var b strings.Builder
	b.WriteString(in.Identity)
	for _, p := range in.Processors {
		b.WriteByte('|')
		b.WriteString(p.HashableIdentifier)
	}
	if in.Thumbnail != nil {
		b.WriteByte('|')
		b.WriteString(in.Thumbnail.Canonical())
	}
	if in.ScaleOverride != 0 {
		b.WriteByte('|')
		b.WriteString(formatFloat(in.ScaleOverride))
	}
	return b.String()
}

// DiskKey derives the on-disk cache key (spec §4.3): identity, the
// processors' stable identifiers (portable across process restarts,
// unlike HashableIdentifier), the thumbnail descriptor, and an
// options suffix.
func DiskKey(in Input) string {
	var b strings.Builder
	b.WriteString(in.Identity)
	for _, p := range in.Processors {
		b.WriteByte('|')
		b.WriteString(p.Identifier)
	}
	if in.Thumbnail != nil {
		b.WriteByte('|')
		b.WriteString(in.Thumbnail.Canonical())
	}
	if in.OptionsSuffix != "" {
		b.WriteByte('|')
		b.WriteString(in.OptionsSuffix)
	}
	return b.String()
}
