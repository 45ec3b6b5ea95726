package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusError struct {
	code int
}

func (e statusError) Error() string   { return fmt.Sprintf("upstream returned %d", e.code) }
func (e statusError) StatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, Fatal},
		{"gemini resource exhausted", errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED"), QuotaExceeded},
		{"python exception name", errors.New("google.api_core.exceptions.ResourceExhausted: check quota"), QuotaExceeded},
		{"rate limit upper case", errors.New("RATE LIMIT reached for model"), QuotaExceeded},
		{"ratelimit compact", errors.New("ratelimit: slow down"), QuotaExceeded},
		{"exceeded", errors.New("requests per minute exceeded"), QuotaExceeded},
		{"too many requests", errors.New("Too Many Requests"), QuotaExceeded},
		{"structured 429", statusError{code: 429}, QuotaExceeded},
		{"structured 503", statusError{code: 503}, Transient},
		{"wrapped structured 429", fmt.Errorf("call: %w", statusError{code: 429}), QuotaExceeded},
		{"context deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), Transient},
		{"textual deadline", errors.New("rpc error: deadline exceeded"), Transient},
		{"connection reset", errors.New("read tcp: connection reset by peer"), Transient},
		{"invalid argument", errors.New("Error 400, Status: INVALID_ARGUMENT"), Fatal},
		{"unknown", errors.New("something broke"), Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorClassString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "quota_exceeded", QuotaExceeded.String())
}

func TestCallErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := fmt.Errorf("deliver: %w", &CallError{Class: Fatal, Attempts: 1, Err: cause})

	assert.ErrorIs(t, err, ErrCallFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrQuotaExhausted)

	var callErr *CallError
	assert.ErrorAs(t, err, &callErr)
	assert.Equal(t, 1, callErr.Attempts)
}
