package pipeline

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/maquette/compare"
	"github.com/hazyhaar/maquette/designsource"
	"github.com/hazyhaar/maquette/extract"
	"github.com/hazyhaar/maquette/navigate"
	"github.com/hazyhaar/maquette/session"
)

// Kind is the machine-checkable failure classification. Every terminal
// error carries exactly one.
type Kind string

const (
	KindPoolExhausted           Kind = "pool_exhausted"
	KindLaunchFailed            Kind = "launch_failed"
	KindNavigationFailed        Kind = "navigation_failed"
	KindAuthFailed              Kind = "auth_failed"
	KindBotProtectionSuspected  Kind = "bot_protection_suspected"
	KindExtractionFailed        Kind = "extraction_failed"
	KindScreenshotFailed        Kind = "screenshot_failed"
	KindInvalidInput            Kind = "invalid_input"
	KindDesignSourceUnavailable Kind = "design_source_unavailable"
	KindInternal                Kind = "internal"
)

// Retryable reports whether a caller may reasonably retry the request.
func (k Kind) Retryable() bool {
	switch k {
	case KindPoolExhausted, KindLaunchFailed, KindNavigationFailed,
		KindExtractionFailed, KindDesignSourceUnavailable:
		return true
	}
	return false
}

// TypedError is the terminal error of a pipeline request: a human-readable
// message plus a machine-checkable kind, enough for the caller to decide
// retry vs give up.
type TypedError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *TypedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Kind, e.Msg)
}

func (e *TypedError) Unwrap() error { return e.Err }

// typed wraps err with a kind and message.
func typed(kind Kind, msg string, err error) *TypedError {
	return &TypedError{Kind: kind, Msg: msg, Err: err}
}

// classify maps component sentinel errors to kinds.
func classify(err error) Kind {
	switch {
	case errors.Is(err, session.ErrPoolExhausted), errors.Is(err, session.ErrPoolClosed):
		return KindPoolExhausted
	case errors.Is(err, session.ErrLaunchFailed):
		return KindLaunchFailed
	case errors.Is(err, navigate.ErrNavigationFailed):
		return KindNavigationFailed
	case errors.Is(err, extract.ErrExtractionFailed):
		return KindExtractionFailed
	case errors.Is(err, compare.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, designsource.ErrNotFound),
		errors.Is(err, designsource.ErrForbidden),
		errors.Is(err, designsource.ErrRateLimited),
		errors.Is(err, designsource.ErrUnavailable):
		return KindDesignSourceUnavailable
	}
	return KindInternal
}

// KindOf extracts the kind from any error returned by the pipeline.
func KindOf(err error) Kind {
	var te *TypedError
	if errors.As(err, &te) {
		return te.Kind
	}
	return classify(err)
}
