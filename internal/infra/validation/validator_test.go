package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/shared/apperr"
)

type payCommand struct {
	BookingID string `validate:"required"`
	ReturnURL string `validate:"omitempty,url"`
}

func TestValidateMapsToValidationKind(t *testing.T) {
	v := New()
	err := v.Validate(context.Background(), payCommand{ReturnURL: "not a url"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "booking_id is required")
	assert.Contains(t, err.Error(), "return_url must be a valid URL")
}

func TestValidateAcceptsValidAndNonStructMessages(t *testing.T) {
	v := New()
	assert.NoError(t, v.Validate(context.Background(), payCommand{BookingID: "b-1", ReturnURL: "https://example.com/ok"}))
	assert.NoError(t, v.Validate(context.Background(), &payCommand{BookingID: "b-1"}))
	assert.NoError(t, v.Validate(context.Background(), "plain"))
	assert.NoError(t, v.Validate(context.Background(), nil))
}
