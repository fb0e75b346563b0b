package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("order %d not found", 7), KindNotFound},
		{"conflict", Conflict("cart is empty"), KindConflict},
		{"invalid", Invalid("quantity must be positive"), KindInvalid},
		{"unauthenticated", Unauthenticated("invalid token"), KindUnauthenticated},
		{"wrapped twice", fmt.Errorf("outer: %w", Conflict("stock")), KindConflict},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("card declined")
	err := Wrap(KindConflict, cause, "payment processing error: %s", cause.Error())

	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "payment processing error: card declined", Message(err))
}
