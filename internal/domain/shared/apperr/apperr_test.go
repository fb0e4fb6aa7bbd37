package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"stayhub/internal/domain/shared/apperr"
)

func TestWrapKeepsBothChains(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	err := apperr.Wrap(apperr.ErrGateway, base)
	assert.ErrorIs(t, err, apperr.ErrGateway)
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, apperr.Wrap(apperr.ErrGateway, err))
	assert.NoError(t, apperr.Wrap(apperr.ErrGateway, nil))
}

func TestKindAndRestore(t *testing.T) {
	err := fmt.Errorf("%w: booking already paid", apperr.ErrConflict)
	assert.Equal(t, "conflict", apperr.Kind(err))
	assert.Equal(t, "", apperr.Kind(errors.New("boom")))

	restored := apperr.Restore("conflict", err.Error())
	assert.ErrorIs(t, restored, apperr.ErrConflict)
	assert.Equal(t, err.Error(), restored.Error())

	plain := apperr.Restore("", "boom")
	assert.EqualError(t, plain, "boom")
}

func TestRetryable(t *testing.T) {
	assert.True(t, apperr.Retryable(apperr.Gateway("timeout")))
	assert.True(t, apperr.Retryable(apperr.ErrPersistenceRace))
	assert.False(t, apperr.Retryable(apperr.Validation("bad")))
}
