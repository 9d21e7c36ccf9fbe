package imagepipeline

import "github.com/kean-go/imagepipeline/internal/model"

// Priority orders work across the pipeline's Work Queues (spec §3,
// §4.2). Defined in internal/model so internal/orchestrator can share
// the exact same type without importing this package (which in turn
// imports internal/orchestrator, to build the public Pipeline).
type Priority = model.Priority

var EPriority = model.EPriority
