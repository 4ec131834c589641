package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.True(t, IsHash(string(hash)))
	require.NoError(t, ComparePassword(hash, "correct horse"))
	require.Error(t, ComparePassword(hash, "wrong horse"))
}

func TestComparePasswordIgnoresCharactersPastLimit(t *testing.T) {
	hash, err := HashPassword("abcdefghijklmnopqr")
	require.NoError(t, err)
	require.NoError(t, ComparePassword(hash, "abcdefghijklmnopqr-and-more"))
}

func TestIsHashRejectsPlaintext(t *testing.T) {
	require.False(t, IsHash("5551234567"))
	require.False(t, IsHash("$2nothash"))
}
