package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// Options, DataCachePolicy and PreviewPolicy are defined in
// internal/model; see priority.go for why.
type Options = model.Options

const (
	OptionReloadIgnoringCachedData = model.OptionReloadIgnoringCachedData
	OptionReturnCacheDataDontLoad  = model.OptionReturnCacheDataDontLoad
	OptionDisableMemoryCacheReads  = model.OptionDisableMemoryCacheReads
	OptionDisableMemoryCacheWrites = model.OptionDisableMemoryCacheWrites
	OptionDisableDiskCacheReads    = model.OptionDisableDiskCacheReads
	OptionDisableDiskCacheWrites   = model.OptionDisableDiskCacheWrites
	OptionSkipDecompression        = model.OptionSkipDecompression
	OptionSkipDataLoadingQueue     = model.OptionSkipDataLoadingQueue
)

type DataCachePolicy = model.DataCachePolicy

var EDataCachePolicy = model.EDataCachePolicy

type PreviewPolicy = model.PreviewPolicy

var EPreviewPolicy = model.EPreviewPolicy
