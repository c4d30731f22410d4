package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
)

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       errors.AppError
		code      constants.ErrorCode
		status    int
		retryable bool
		is        func(error) bool
	}{
		{"validation", errors.ErrValidation("client id missing"), constants.ErrCodeValidation, http.StatusBadRequest, false, errors.IsValidation},
		{"not found", errors.ErrNotFound("no record"), constants.ErrCodeNotFound, http.StatusNotFound, false, errors.IsNotFound},
		{"contention", errors.ErrPersistenceContention("serialization failure"), constants.ErrCodePersistenceContention, http.StatusServiceUnavailable, true, errors.IsContention},
		{"crypto", errors.ErrCryptoFailure("tag mismatch"), constants.ErrCodeCryptoFailure, http.StatusInternalServerError, false, errors.IsCryptoFailure},
		{"no signing key", errors.ErrNoSigningKey("none active"), constants.ErrCodeNoSigningKey, http.StatusServiceUnavailable, true, errors.IsNoSigningKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code())
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.retryable, tt.err.Retryable())
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("wrapped: %w", tt.err)))
			assert.Equal(t, tt.status, errors.HTTPStatusOf(tt.err))
		})
	}
}

func TestWithCauseAndMetadata(t *testing.T) {
	err := errors.ErrPersistenceContention("save failed").
		WithCause(context.DeadlineExceeded).
		WithMetadata("record_id", "r-1")

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "r-1", err.Metadata()["record_id"])
	assert.Contains(t, err.Error(), "save failed")
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

func TestIsMatchesByCode(t *testing.T) {
	a := errors.ErrNotFound("first")
	b := errors.ErrNotFound("second")
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, errors.ErrCryptoFailure("other")))
}

func TestAsAppError(t *testing.T) {
	_, ok := errors.AsAppError(nil)
	assert.False(t, ok)

	_, ok = errors.AsAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, constants.ErrCodeInternal, errors.CodeOf(errors.New("plain")))
	assert.False(t, errors.IsRetryable(errors.New("plain")))

	appErr, ok := errors.AsAppError(fmt.Errorf("ctx: %w", errors.ErrNoSigningKey("x")))
	require.True(t, ok)
	assert.Equal(t, constants.ErrCodeNoSigningKey, appErr.Code())
}
