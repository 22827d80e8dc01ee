package domain

import "errors"

// Kind classifies errors that cross a component boundary.
type Kind string

const (
	KindScanUnavailable  Kind = "scan_unavailable"
	KindAnalysisFailed   Kind = "analysis_failed"
	KindCacheUnavailable Kind = "cache_unavailable"
	KindInvalidDomain    Kind = "invalid_domain"
)

// Error carries a kind and a human-readable reason. errors.Is matches on kind.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func NewError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind Kind, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrScanUnavailable  = &Error{Kind: KindScanUnavailable}
	ErrAnalysisFailed   = &Error{Kind: KindAnalysisFailed}
	ErrCacheUnavailable = &Error{Kind: KindCacheUnavailable}
	ErrInvalidDomain    = &Error{Kind: KindInvalidDomain}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
