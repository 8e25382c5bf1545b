package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRoomCode(t *testing.T) {
	t.Run("generates valid codes", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 100; i++ {
			code, err := GenerateRoomCode(nil)
			assert.NoError(t, err, "expected no error generating code")
			assert.Len(t, code, codeLength, "expected code of length %d", codeLength)
			for _, ch := range code {
				assert.True(t, strings.ContainsRune(codeAlphabet, ch), "expected code character %q to be in alphabet", ch)
			}
			seen[code] = struct{}{}
		}
		assert.Len(t, seen, 100, "expected generated codes to be unique")
	})

	t.Run("retries taken codes", func(t *testing.T) {
		var probes int
		code, err := GenerateRoomCode(func(string) bool {
			probes++
			return probes < 3
		})
		assert.NoError(t, err, "expected a free code after retries")
		assert.NotEmpty(t, code, "expected non-empty code")
		assert.Equal(t, 3, probes, "expected two taken probes before a free one")
	})

	t.Run("fails when code space is exhausted", func(t *testing.T) {
		code, err := GenerateRoomCode(func(string) bool { return true })
		assert.ErrorIs(t, err, ErrCodeSpaceExhausted, "expected exhaustion error when every code is taken")
		assert.Empty(t, code, "expected empty code on exhaustion")
	})
}
