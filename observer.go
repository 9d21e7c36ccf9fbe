package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// Observer and DefaultObserver are defined in internal/model; see
// priority.go for why.
type Observer = model.Observer
type DefaultObserver = model.DefaultObserver
