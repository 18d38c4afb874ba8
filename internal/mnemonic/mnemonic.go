// Package mnemonic generates human-transcribable recovery phrases.
package mnemonic

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// EntropyBits is the entropy encoded by a generated phrase. 256 bits maps
// to 24 BIP-39 words.
const EntropyBits = 256

// New returns a fresh 24-word BIP-39 mnemonic encoding 256 bits of entropy.
func New() (string, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to encode mnemonic: %w", err)
	}

	return phrase, nil
}

// IsWellFormed reports whether the phrase is a valid BIP-39 mnemonic.
// The vault accepts caller-supplied phrases as opaque passphrases; this is
// offered for callers that want to enforce the wordlist up front.
func IsWellFormed(phrase string) bool {
	return bip39.IsMnemonicValid(phrase)
}
