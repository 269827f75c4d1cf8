package client

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryCityNotFound  ErrorCategory = "city_not_found"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream      ErrorCategory = "upstream"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics. Timeouts
// are reported separately from other upstream failures.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	switch apperror.KindOf(err) {
	case apperror.KindCityNotFound:
		return ErrorCategoryCityNotFound
	case apperror.KindUpstreamConfiguration:
		return ErrorCategoryConfiguration
	case apperror.KindRateLimited:
		return ErrorCategoryRateLimited
	case apperror.KindUpstream:
		return ErrorCategoryUpstream
	case apperror.KindValidation:
		return ErrorCategoryValidation
	}
	return ErrorCategoryUnknown
}
