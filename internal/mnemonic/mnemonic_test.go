package mnemonic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	phrase, err := New()
	require.NoError(t, err)

	// 256 bits of entropy encodes to exactly 24 words.
	assert.Len(t, strings.Fields(phrase), 24)
	assert.True(t, IsWellFormed(phrase))
}

func TestNew_Unique(t *testing.T) {
	first, err := New()
	require.NoError(t, err)
	second, err := New()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
		want   bool
	}{
		{name: "empty", phrase: "", want: false},
		{name: "not on the wordlist", phrase: "definitely not a bip39 phrase at all", want: false},
		{name: "wrong word count", phrase: "abandon abandon abandon", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWellFormed(tt.phrase))
		})
	}
}
