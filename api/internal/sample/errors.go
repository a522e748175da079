package sample

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveSample        = errors.New("no sample selected")
	ErrPipelineBusy          = errors.New("analysis already running for this sample")
	ErrSampleNotFound        = errors.New("sample not found")
	ErrEmptyImage            = errors.New("image is empty")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrMalformedResponse     = errors.New("malformed classifier response")
	ErrGeneration            = errors.New("text generation failed")
	ErrPersistence           = errors.New("persistence failed")

	// ErrPermissionDenied is a persistence failure; errors.Is(err, ErrPersistence) holds for it.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrPersistence)
)

// Kind names the taxonomy entry err belongs to, for notifications and metrics labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoActiveSample):
		return "no_active_sample"
	case errors.Is(err, ErrPipelineBusy):
		return "pipeline_busy"
	case errors.Is(err, ErrSampleNotFound):
		return "not_found"
	case errors.Is(err, ErrEmptyImage):
		return "empty_image"
	case errors.Is(err, ErrClassifierUnavailable):
		return "classifier_unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}
