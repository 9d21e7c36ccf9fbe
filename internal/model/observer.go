package model

// Observer is the host-provided delegate contract (spec §4.7). Every
// method is optional; a host implements only the subset it needs by
// embedding DefaultObserver and overriding specific methods (the
// "partial interface via embedding" idiom, used because Go has no
// native optional-method protocol).
type Observer interface {
	// CacheKey overrides the derived key (memory and disk) for
	// request. Returning "" means "no override".
	CacheKey(request Request) string
	// WillCache vetoes or transforms bytes before a disk-cache write;
	// returning nil skips the write.
	WillCache(data []byte, container *ImageContainer, request Request) []byte
	// PreviewPolicy overrides the default progressive-decoding policy
	// for a given decoding context.
	PreviewPolicy(ctx DecodingContext) PreviewPolicy

	Created(request Request)
	Progress(request Request, progress Progress)
	Preview(request Request, container ImageContainer)
	Finished(request Request, response Response)
	// Failed reports a Task's terminal error. Distinct from Finished
	// (success) and Cancelled (dropped before completion) rather than a
	// single Result-carrying Finished — there is no Result type in idiomatic
	// Go and folding failure into Finished would force every observer to
	// branch on a zero Response (spec §4.7's "finished(result)" is realized
	// here as three separate, mutually exclusive terminal callbacks).
	Failed(request Request, err error)
	Cancelled(request Request)
}

// DefaultObserver implements Observer with no-op/zero-value behavior
// for every method; embed it and override only what you need.
type DefaultObserver struct{}

func (DefaultObserver) CacheKey(Request) string                             { return "" }
func (DefaultObserver) WillCache(data []byte, _ *ImageContainer, _ Request) []byte { return data }
func (DefaultObserver) PreviewPolicy(DecodingContext) PreviewPolicy         { return EPreviewPolicy }
func (DefaultObserver) Created(Request)                                    {}
func (DefaultObserver) Progress(Request, Progress)                         {}
func (DefaultObserver) Preview(Request, ImageContainer)                    {}
func (DefaultObserver) Finished(Request, Response)                         {}
func (DefaultObserver) Failed(Request, error)                              {}
func (DefaultObserver) Cancelled(Request)                                  {}
