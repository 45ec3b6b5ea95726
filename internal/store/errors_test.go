package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/traqcheck/bgv-agent/internal/domain"
)

func TestNotFoundSentinels(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrAuditLogNotFound, ErrBGVRequestNotFound, ErrTaskNotFound} {
		assert.True(t, IsNotFoundError(err), err.Error())
		assert.True(t, IsNotFoundError(fmt.Errorf("load: %w", err)), err.Error())
		assert.False(t, IsDuplicateError(err), err.Error())
	}
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(errors.New("connection reset")))
}

func TestIsDuplicateError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDuplicateError(fmt.Errorf("create audit log 40: %w", ErrDuplicate)))
	assert.False(t, IsDuplicateError(ErrInvalidEntity))
	assert.False(t, IsDuplicateError(nil))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	err := NewStoreError("bgv_request", "update_status", "invalid status", domain.ErrInvalidBGVStatus)
	assert.Equal(t, "bgv_request update_status: invalid status: "+domain.ErrInvalidBGVStatus.Error(), err.Error())
	assert.ErrorIs(t, err, domain.ErrInvalidBGVStatus)

	var target *StoreError
	assert.ErrorAs(t, fmt.Errorf("handler: %w", err), &target)
	assert.Equal(t, "bgv_request", target.Entity)

	assert.Equal(t, "task save: queue full", NewStoreError("task", "save", "queue full", nil).Error())
}
