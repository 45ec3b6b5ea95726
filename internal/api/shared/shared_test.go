package shared

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	ctx := SetTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, 2*TraceIDLength)
	assert.NotEqual(t, id, GetTraceID(SetTraceID(context.Background())))
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestTraceIDReusesSpanContext(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := SetTraceID(trace.ContextWithSpanContext(context.Background(), sc))
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", GetTraceID(ctx))
}

func TestCaller(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetCaller(context.Background()))
	assert.Equal(t, "workflow-backend", GetCaller(SetCaller(context.Background(), "workflow-backend")))
}

func TestRespondWithErrorAndLog(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(SetTraceID(req.Context()))
	rec := httptest.NewRecorder()

	RespondWithErrorAndLog(rec, req, http.StatusInternalServerError, "Something went wrong",
		errors.New("password=hunter2 leaked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "hunter2")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Something went wrong", body.Error)
	assert.Equal(t, GetTraceID(req.Context()), body.TraceID)
}

type sample struct {
	Email   string `json:"email" validate:"required,email"`
	Trigger string `json:"trigger" validate:"omitempty,oneof=manual automated"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		decode  error
		message string
	}{
		{name: "empty", body: "", decode: ErrEmptyBody},
		{name: "missing email", body: `{}`, message: "Email is required"},
		{name: "bad email", body: `{"email":"nope"}`, message: "Email must be a valid email address"},
		{name: "bad trigger", body: `{"email":"a@b.co","trigger":"cron"}`, message: "Trigger must be one of: manual automated"},
		{name: "valid", body: `{"email":"a@b.co","trigger":"manual"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var s sample
			err := DecodeJSON(req, &s)
			if tt.decode != nil {
				assert.ErrorIs(t, err, tt.decode)
				return
			}
			require.NoError(t, err)

			err = ValidateRequest(&s)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.message, ValidationMessage(err))
		})
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
	var s sample
	assert.Error(t, DecodeJSON(req, &s))
}

func TestErrorLogPolicyLevel(t *testing.T) {
	t.Parallel()

	var plain errorLogPolicy
	assert.Equal(t, slog.LevelError, plain.level(http.StatusBadGateway))
	assert.Equal(t, slog.LevelWarn, plain.level(http.StatusTooManyRequests))
	assert.Equal(t, slog.LevelDebug, plain.level(http.StatusUnauthorized))

	elevated := errorLogPolicy{}
	WithElevatedLogLevel()(&elevated)
	assert.Equal(t, slog.LevelWarn, elevated.level(http.StatusUnauthorized))
	assert.Equal(t, slog.LevelError, elevated.level(http.StatusInternalServerError))
}
