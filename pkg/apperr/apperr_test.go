package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{Internal, "internal"},
		{BadRequest, "bad_request"},
		{NotFound, "not_found"},
		{Forbidden, "forbidden"},
		{Conflict, "conflict"},
		{Validation, "validation_failed"},
		{Unavailable, "storage_unavailable"},
		{Kind(99), "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.kind.String())
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(NotFound, "character not found")
	assert.Equal(t, "character not found", err.Error())

	err = Invalid("quest.name", "must not be empty")
	assert.Equal(t, "quest.name: must not be empty", err.Error())

	err = Newf(BadRequest, "limit must be between %d and %d", 1, 100)
	assert.Equal(t, "limit must be between 1 and 100", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Conflict, KindOf(New(Conflict, "already set")))
	assert.Equal(t, Internal, KindOf(errors.New("plain error")))
	assert.Equal(t, Internal, KindOf(nil))

	// Kind survives wrapping through fmt.
	wrapped := fmt.Errorf("saving character: %w", New(Forbidden, "not the owner"))
	assert.Equal(t, Forbidden, KindOf(wrapped))
}

func TestFieldOf(t *testing.T) {
	assert.Equal(t, "player_state.identity.name", FieldOf(Invalid("player_state.identity.name", "too long")))
	assert.Empty(t, FieldOf(New(NotFound, "missing")))
	assert.Empty(t, FieldOf(errors.New("plain error")))
}

func TestIsKind(t *testing.T) {
	err := New(Unavailable, "redis down")
	assert.True(t, IsKind(err, Unavailable))
	assert.False(t, IsKind(err, NotFound))
	assert.False(t, IsKind(nil, Unavailable))
	assert.True(t, IsKind(nil, Internal))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(Unavailable, cause, "storage request failed")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, Unavailable, KindOf(err))
	assert.Equal(t, "storage request failed", err.Error())
}
