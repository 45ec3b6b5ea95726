package shared

import (
	"fmt"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/traqcheck/bgv-agent/internal/platform/logger"
	"github.com/traqcheck/bgv-agent/internal/redact"
)

// ErrorResponse is the body of every non-2xx API response. Error is safe to
// show to the workflow backend; internal detail only reaches the log.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// ResponseOption tunes how an error response is logged.
type ResponseOption func(*errorLogPolicy)

type errorLogPolicy struct {
	elevated bool
}

// WithElevatedLogLevel logs a 4xx at WARN. The service gate uses it so
// rejected callers show up in production logs.
func WithElevatedLogLevel() ResponseOption {
	return func(p *errorLogPolicy) {
		p.elevated = true
	}
}

func (p errorLogPolicy) level(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests, p.elevated && status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// RespondWithJSON encodes data as the response body.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithErrorAndLog writes userMessage with the request's trace id and
// logs err after redaction. err may be nil.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	userMessage string,
	err error,
	opts ...ResponseOption,
) {
	var policy errorLogPolicy
	for _, opt := range opts {
		opt(&policy)
	}

	ctx := r.Context()
	traceID := GetTraceID(ctx)
	attrs := []slog.Attr{
		slog.Int("status_code", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("trace_id", traceID),
		slog.String("user_message", userMessage),
	}
	if caller := GetCaller(ctx); caller != "" {
		attrs = append(attrs, slog.String("caller", caller))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}
	logger.FromContext(ctx).LogAttrs(ctx, policy.level(status), "API error response", attrs...)

	RespondWithJSON(w, r, status, ErrorResponse{Error: userMessage, TraceID: traceID})
}
