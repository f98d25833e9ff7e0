package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	custom := ErrAlreadyBlocked.WithMessage("You have blocked this user.")
	assert.True(t, errors.Is(custom, ErrAlreadyBlocked))
	assert.False(t, errors.Is(custom, ErrNotBlocked))

	wrapped := fmt.Errorf("service: %w", ErrNotEditable)
	assert.True(t, errors.Is(wrapped, ErrNotEditable))
}

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusUnprocessableEntity},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestAsTreatsForeignErrorsAsInternal(t *testing.T) {
	cause := errors.New("connection reset")
	e := As(cause)
	require.NotNil(t, e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.NotContains(t, e.Message, "connection reset")
	assert.ErrorIs(t, e, cause)

	assert.Nil(t, As(nil))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("x: %w", ErrForbidden)))
}

func TestFieldValidation(t *testing.T) {
	e := Field("content", "The content field is required.")
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, "The content field is required.", e.Message)
	assert.Equal(t, map[string]string{"content": "The content field is required."}, e.Fields)
}
