package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// Code and Error are defined in internal/model; see priority.go for
// why the public types here are aliases rather than fresh definitions.
type Code = model.Code

const (
	CodeNone             = model.CodeNone
	CodeDecodeFailed     = model.CodeDecodeFailed
	CodeEncodeFailed     = model.CodeEncodeFailed
	CodeProcessFailed    = model.CodeProcessFailed
	CodeLoadFailed       = model.CodeLoadFailed
	CodeCancelled        = model.CodeCancelled
	CodeCacheIO          = model.CodeCacheIO
	CodeInvalidOptions   = model.CodeInvalidOptions
	CodeResumableStoreIO = model.CodeResumableStoreIO
	CodePipelineInvalidated = model.CodePipelineInvalidated
)

type Error = model.Error

var (
	NewError     = model.NewError
	WrapError    = model.WrapError
	CodeOf       = model.CodeOf
	IsCancelled  = model.IsCancelled
)
