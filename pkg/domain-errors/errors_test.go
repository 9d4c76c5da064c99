package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	t.Run("matches code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeValidation, "bad"))
		assert.True(t, Is(err, CodeValidation))
		assert.False(t, Is(err, CodeInternal))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, Is(errors.New("boom"), CodeInternal))
	})

	t.Run("wrapped cause stays reachable", func(t *testing.T) {
		cause := errors.New("db down")
		err := Wrap(cause, CodePersistence, "failed to save")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeDuplicateIdentity: http.StatusConflict,
		CodeNotFound:          http.StatusNotFound,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeRateLimited:       http.StatusTooManyRequests,
		CodePersistence:       http.StatusInternalServerError,
		CodeSigning:           http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
