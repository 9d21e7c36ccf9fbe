package model

import "github.com/kean-go/imagepipeline/internal/common"

// Options is a bitset of independently toggleable per-request flags
// (spec §4.6). The zero value enables every cache tier and the normal
// decompression/queueing path.
type Options uint16

const (
	// OptionReloadIgnoringCachedData skips both cache reads; writes
	// still happen as usual once the load completes.
	OptionReloadIgnoringCachedData Options = 1 << iota
	// OptionReturnCacheDataDontLoad restricts the request to cache
	// reads only; a miss fails with CodeLoadFailed (dataMissingInCache),
	// never touching the network.
	OptionReturnCacheDataDontLoad
	OptionDisableMemoryCacheReads
	OptionDisableMemoryCacheWrites
	OptionDisableDiskCacheReads
	OptionDisableDiskCacheWrites
	OptionSkipDecompression
	// OptionSkipDataLoadingQueue bypasses the data-loading queue's
	// concurrency bound; used when the source is already in memory
	// (inline-data requests) and admission control would add nothing.
	OptionSkipDataLoadingQueue
)

func (o Options) Has(flag Options) bool { return common.BitflagsContainAny(o, flag) }

func (o Options) With(flag Options) Options    { return common.BitflagsAdd(o, flag) }
func (o Options) Without(flag Options) Options { return common.BitflagsRemove(o, flag) }

func (o Options) MemoryCacheReadsEnabled() bool {
	return !o.Has(OptionDisableMemoryCacheReads) && !o.Has(OptionReloadIgnoringCachedData)
}

func (o Options) MemoryCacheWritesEnabled() bool {
	return !o.Has(OptionDisableMemoryCacheWrites)
}

func (o Options) DiskCacheReadsEnabled() bool {
	return !o.Has(OptionDisableDiskCacheReads) && !o.Has(OptionReloadIgnoringCachedData)
}

func (o Options) DiskCacheWritesEnabled() bool {
	return !o.Has(OptionDisableDiskCacheWrites)
}

func (o Options) CacheOnly() bool { return o.Has(OptionReturnCacheDataDontLoad) }

// DataCachePolicy controls what the disk tier stores for a completed
// load (spec §6, Data-cache policies).
type DataCachePolicy uint8

const (
	dataCachePolicyAutomatic DataCachePolicy = iota
	dataCachePolicyStoreOriginalData
	dataCachePolicyStoreEncodedImages
	dataCachePolicyStoreAll
)

var EDataCachePolicy = DataCachePolicy(dataCachePolicyAutomatic)

func (DataCachePolicy) Automatic() DataCachePolicy          { return dataCachePolicyAutomatic }
func (DataCachePolicy) StoreOriginalData() DataCachePolicy  { return dataCachePolicyStoreOriginalData }
func (DataCachePolicy) StoreEncodedImages() DataCachePolicy { return dataCachePolicyStoreEncodedImages }
func (DataCachePolicy) StoreAll() DataCachePolicy           { return dataCachePolicyStoreAll }

func (p DataCachePolicy) String() string {
	switch p {
	case dataCachePolicyAutomatic:
		return "automatic"
	case dataCachePolicyStoreOriginalData:
		return "storeOriginalData"
	case dataCachePolicyStoreEncodedImages:
		return "storeEncodedImages"
	case dataCachePolicyStoreAll:
		return "storeAll"
	default:
		return "unknown"
	}
}

// ShouldStoreOriginal reports whether the original (undecoded) bytes
// should be written to the disk cache for a request that had
// hasProcessors processors configured.
func (p DataCachePolicy) ShouldStoreOriginal(hasProcessors bool) bool {
	switch p {
	case dataCachePolicyStoreOriginalData, dataCachePolicyStoreAll:
		return true
	case dataCachePolicyAutomatic:
		return !hasProcessors
	default:
		return false
	}
}

// ShouldStoreEncoded reports whether the encoded, fully-processed
// image should be written to the disk cache for a request that had
// hasProcessors processors configured.
func (p DataCachePolicy) ShouldStoreEncoded(hasProcessors bool) bool {
	if !hasProcessors {
		return false
	}
	switch p {
	case dataCachePolicyStoreEncodedImages, dataCachePolicyStoreAll:
		return true
	case dataCachePolicyAutomatic:
		return true
	default:
		return false
	}
}

// PreviewPolicy controls whether progressive/partial decodes are
// delivered to observers for a given decoding context (spec §4.7).
type PreviewPolicy uint8

const (
	previewPolicyDisabled PreviewPolicy = iota
	previewPolicyIncremental
)

var EPreviewPolicy = PreviewPolicy(previewPolicyIncremental)

func (PreviewPolicy) Disabled() PreviewPolicy    { return previewPolicyDisabled }
func (PreviewPolicy) Incremental() PreviewPolicy { return previewPolicyIncremental }

func (p PreviewPolicy) String() string {
	if p == previewPolicyDisabled {
		return "disabled"
	}
	return "incremental"
}
