// Package apperror defines the error kinds produced at the point of failure and
// consumed by the HTTP boundary. Callers switch on Kind, never on message text.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags an error with the category the HTTP boundary maps to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindCityNotFound
	KindRateLimited
	KindUpstreamConfiguration
	KindUpstream
	// KindAdvisoryFailed wraps a failure inside advisory generation. KindOf
	// resolves through it to the wrapped kind.
	KindAdvisoryFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCityNotFound:
		return "city_not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstreamConfiguration:
		return "upstream_configuration"
	case KindUpstream:
		return "upstream"
	case KindAdvisoryFailed:
		return "advisory_failed"
	default:
		return "internal"
	}
}

// Error is a tagged error. Op names the failing operation, City is set for
// CityNotFound, RetryAfter for RateLimited.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	City       string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports bad caller input (city format, profile fields, query params).
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// CityNotFound reports that the weather provider does not know city.
func CityNotFound(city string) *Error {
	return &Error{Kind: KindCityNotFound, City: city, Message: fmt.Sprintf("City '%s' not found", city)}
}

// RateLimited reports a rejected request; retryAfter is the earliest time a retry can succeed.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: "Too many requests. Please try again later.", RetryAfter: retryAfter}
}

// UpstreamConfiguration reports a missing or rejected upstream credential.
func UpstreamConfiguration(op, message string) *Error {
	return &Error{Kind: KindUpstreamConfiguration, Op: op, Message: message}
}

// Upstream reports any other upstream failure. err may be nil.
func Upstream(op, detail string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Message: detail, Err: err}
}

// AdvisoryFailed wraps err so the kind of the underlying failure is preserved.
func AdvisoryFailed(err error) *Error {
	return &Error{Kind: KindAdvisoryFailed, Message: "Advisory generation failed", Err: err}
}

// KindOf returns the most specific kind in err's chain. Untagged errors are KindInternal.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return KindInternal
		}
		if e.Kind != KindAdvisoryFailed {
			return e.Kind
		}
		err = e.Err
	}
	return KindInternal
}

// As returns the most specific *Error in err's chain, skipping advisory wrappers.
func As(err error) (*Error, bool) {
	var found *Error
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		found = e
		if e.Kind != KindAdvisoryFailed {
			return e, true
		}
		err = e.Err
	}
	return found, found != nil
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
