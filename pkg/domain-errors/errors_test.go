package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "policy not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches wrapped inner code", func(t *testing.T) {
		inner := New(CodeForbidden, "department not allowed")
		err := Wrap(fmt.Errorf("transition: %w", inner), CodeInternal, "outer")
		assert.True(t, HasCode(err, CodeForbidden))
		assert.True(t, HasCode(err, CodeInternal))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestErrorsIsMatchesCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("ctx: %w", New(CodeLedger, "no unpaid bill"))
	require.ErrorIs(t, err, New(CodeLedger, "no unpaid bill"))
	assert.NotErrorIs(t, err, New(CodeLedger, "other"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load policy")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load policy: connection reset", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusUnprocessableEntity,
		CodeInvalidTransition: http.StatusConflict,
		CodeLedger:            http.StatusUnprocessableEntity,
		CodeNotFound:          http.StatusNotFound,
		CodeForbidden:         http.StatusForbidden,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(code), "code %s", code)
	}
}
