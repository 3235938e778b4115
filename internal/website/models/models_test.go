package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "uptime/pkg/domain-errors"
)

func TestValidateURL(t *testing.T) {
	t.Run("accepts http and https", func(t *testing.T) {
		for _, raw := range []string{"http://example.com", "https://example.com/health?x=1", "  https://a.b  "} {
			got, err := ValidateURL(raw)
			require.NoError(t, err, raw)
			assert.NotEmpty(t, got)
		}
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := ValidateURL(" ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
		assert.Equal(t, "URL is required", err.Error())
	})

	t.Run("rejects other forms", func(t *testing.T) {
		for _, raw := range []string{"example.com", "ftp://example.com", "/relative", "http://", "::"} {
			_, err := ValidateURL(raw)
			require.Error(t, err, raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), raw)
		}
	})
}
