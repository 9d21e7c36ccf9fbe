package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an Error without requiring callers to inspect its
// message text. Codes are additive bit-independent values (not flags);
// new codes may be added, existing ones never repurposed.
type Code uint32

const (
	CodeNone Code = iota
	// CodeDecodeFailed means the configured Decoder returned an error.
	CodeDecodeFailed
	// CodeEncodeFailed means the configured Encoder returned an error.
	CodeEncodeFailed
	// CodeProcessFailed means a Processor returned an error.
	CodeProcessFailed
	// CodeLoadFailed means the configured Loader's fetch failed (network,
	// 4xx/5xx, or local I/O).
	CodeLoadFailed
	// CodeCancelled means the request or one of its subscriptions was
	// cancelled before completion.
	CodeCancelled
	// CodeCacheIO means an error occurred reading or writing a cache
	// entry (as opposed to a cache miss, which is not an error).
	CodeCacheIO
	// CodeInvalidOptions means the supplied Options/Request are not
	// internally consistent (e.g. a thumbnail descriptor with a zero size).
	CodeInvalidOptions
	// CodeResumableStoreIO means an error occurred reading or writing the
	// resumable-download checkpoint store.
	CodeResumableStoreIO
	// CodePipelineInvalidated means the pipeline was invalidated
	// (InvalidateAll) before or during this request; terminal and global,
	// per spec §4.5.7 — every live Task ends this way and no further
	// request is ever accepted afterwards.
	CodePipelineInvalidated
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeDecodeFailed:
		return "decodeFailed"
	case CodeEncodeFailed:
		return "encodeFailed"
	case CodeProcessFailed:
		return "processFailed"
	case CodeLoadFailed:
		return "loadFailed"
	case CodeCancelled:
		return "cancelled"
	case CodeCacheIO:
		return "cacheIO"
	case CodeInvalidOptions:
		return "invalidOptions"
	case CodeResumableStoreIO:
		return "resumableStoreIO"
	case CodePipelineInvalidated:
		return "pipelineInvalidated"
	default:
		return fmt.Sprintf("code(%d)", uint32(c))
	}
}

// Error is the pipeline's error type. It carries a Code for
// programmatic branching plus an optional wrapped cause, and supports
// errors.Is/As/Unwrap via the Unwrap method.
type Error struct {
	code  Code
	msg   string
	cause error
}

func NewError(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func WrapError(code Code, cause error, msg string) *Error {
	return &Error{code: code, msg: msg, cause: cause}
}

func (e *Error) Code() Code { return e.code }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause implements github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error {
	if e.cause == nil {
		return e
	}
	return e.cause
}

// CodeOf extracts the Code carried by err, walking its cause chain via
// errors.As. It returns CodeNone if err is nil or carries no Error.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.code
	}
	return CodeNone
}

// IsCancelled reports whether err (or something in its chain) is a
// pipeline Error carrying CodeCancelled.
func IsCancelled(err error) bool {
	return CodeOf(err) == CodeCancelled
}
