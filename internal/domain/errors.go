package domain

import "errors"

// Common domain errors
var (
	// Search errors
	ErrBootstrapFailure  = errors.New("bootstrap failed")
	ErrAllStreamsFailed  = errors.New("all streams failed")
	ErrNoCandidates      = errors.New("search produced no usable candidates")
	ErrEmptyReferenceSet = errors.New("reference set is empty")
	ErrInvalidConfig     = errors.New("invalid search configuration")

	// Generative service errors
	ErrServiceRefusal    = errors.New("service refused the request")
	ErrGenerationFailure = errors.New("image generation failed")
	ErrTransport         = errors.New("transport error")
	ErrEmptyResult       = errors.New("empty result")

	// Scoring errors
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Archive errors
	ErrRunNotFound = errors.New("search run not found")

	// Storage errors
	ErrUnsupportedLocation = errors.New("unsupported output location")
)

// ErrorKind returns a short stable label for the failure category of err,
// suitable for metrics labels and trace records.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrServiceRefusal):
		return "refusal"
	case errors.Is(err, ErrGenerationFailure):
		return "generation_failure"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
