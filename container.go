package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// ImageContainer, IsPreview, CacheType, URLResponse, Response and
// Progress are defined in internal/model; see priority.go for why.
type ImageContainer = model.ImageContainer
type IsPreview = model.IsPreview

type CacheType = model.CacheType

var ECacheType = model.ECacheType

type URLResponse = model.URLResponse
type Response = model.Response
type Progress = model.Progress
