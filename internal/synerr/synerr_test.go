package synerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKindMatchesWrappedError(t *testing.T) {
	err := New(KindIO, "read file", errors.New("disk full"))
	assert.True(t, IsKind(err, KindIO))
	assert.False(t, IsKind(err, KindGateway))
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := New(KindInvariant, "lookup tracked file", errors.New("not found"))
	assert.Contains(t, err.Error(), "lookup tracked file")
	assert.Contains(t, err.Error(), "not found")
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindGateway, "pull", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
