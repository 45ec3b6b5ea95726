package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrorClass is the retry classification of a failed call.
type ErrorClass int

const (
	// Fatal errors are never retried by the inner loop.
	Fatal ErrorClass = iota
	// Transient errors (timeouts, unavailable upstream) are left to the
	// outer task retry.
	Transient
	// QuotaExceeded errors are retried by the inner loop after a backoff.
	QuotaExceeded
)

// String returns the lowercase name of the class.
func (c ErrorClass) String() string {
	switch c {
	case Transient:
		return "transient"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return "fatal"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Classifier maps an error to an ErrorClass.
type Classifier func(err error) ErrorClass

var quotaMarkers = []string{
	"quota",
	"rate limit",
	"ratelimit",
	"resourceexhausted",
	"too many requests",
	"429",
	"exceeded",
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"unavailable",
	"503",
	"502",
	"504",
}

// Classify is the default Classifier. Structured signals win over text;
// the text heuristic matches quota markers case-insensitively and ignores
// the separators that differ between SDKs (RESOURCE_EXHAUSTED,
// ResourceExhausted, resource exhausted).
func Classify(err error) ErrorClass {
	if err == nil {
		return Fatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		switch code := coder.StatusCode(); {
		case code == http.StatusTooManyRequests:
			return QuotaExceeded
		case code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
			return Transient
		}
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a raw error description.
func ClassifyMessage(msg string) ErrorClass {
	lower := strings.ToLower(msg)

	// "deadline exceeded" would otherwise match the bare "exceeded" marker
	if strings.Contains(lower, "deadline exceeded") {
		return Transient
	}

	compact := strings.NewReplacer("_", "", "-", "", " ", "").Replace(lower)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) || strings.Contains(compact, strings.ReplaceAll(marker, " ", "")) {
			return QuotaExceeded
		}
	}

	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return Transient
		}
	}

	return Fatal
}
