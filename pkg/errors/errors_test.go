package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageIncludesInternal(t *testing.T) {
	base := New("TEST", "something failed", http.StatusBadRequest)
	require.Equal(t, "something failed", base.Error())

	wrapped := base.WithInternal(errors.New("boom"))
	require.Equal(t, "something failed: boom", wrapped.Error())
	require.Equal(t, base.Code, wrapped.Code)

	// WithInternal must not mutate the shared sentinel.
	require.Nil(t, base.Internal)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	appErr := FromError(ErrSessionNotFound)
	require.Equal(t, ErrSessionNotFound, appErr)

	generic := FromError(errors.New("database offline"))
	require.Equal(t, ErrInternalServer.Code, generic.Code)
	require.Equal(t, http.StatusInternalServerError, generic.StatusCode)
	require.EqualError(t, generic.Internal, "database offline")
}

func TestWrapKeepsOriginal(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(cause, "Failed to create session")

	require.True(t, errors.Is(wrapped, cause))
	require.Equal(t, http.StatusInternalServerError, wrapped.StatusCode)
}

func TestNewForbiddenCarriesMessage(t *testing.T) {
	err := NewForbidden("Only the host can reveal results")
	require.Equal(t, http.StatusForbidden, err.StatusCode)
	require.Equal(t, "Only the host can reveal results", err.Message)
}
