package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["settings"],
  "properties": {
    "settings": {"type": "object"}
  }
}`

func TestValidatorAcceptsValidDocument(t *testing.T) {
	v, err := NewValidatorFromBytes([]byte(testSchema))
	require.NoError(t, err)

	res, err := v.ValidateBytes([]byte(`{"settings": {"size_warning_mb": "10"}}`))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidatorRejectsMissingRequiredField(t *testing.T) {
	v, err := NewValidatorFromBytes([]byte(testSchema))
	require.NoError(t, err)

	res, err := v.ValidateBytes([]byte(`{}`))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}
