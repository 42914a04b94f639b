// ABOUTME: Identity key normalization for relay queries.
// ABOUTME: Accepts 64-char hex keys or bech32 npub strings and returns lowercase hex.
package relay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// ErrInvalidIdentity is returned when an identity is neither hex nor npub.
var ErrInvalidIdentity = errors.New("invalid identity key")

const npubPrefix = "npub"

// NormalizeIdentity returns the lowercase 64-char hex form of an identity.
func NormalizeIdentity(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}

	if len(s) == 64 {
		if _, err := hex.DecodeString(s); err == nil {
			return strings.ToLower(s), nil
		}
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, npubPrefix+"1") {
		return decodeNpub(lower)
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, raw)
}

func decodeNpub(s string) (string, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if hrp != npubPrefix {
		return "", fmt.Errorf("%w: unexpected prefix %q", ErrInvalidIdentity, hrp)
	}
	key, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(key) != 32 {
		return "", fmt.Errorf("%w: key is %d bytes", ErrInvalidIdentity, len(key))
	}
	return hex.EncodeToString(key), nil
}

// EncodeNpub renders a hex identity as an npub string for display.
func EncodeNpub(hexKey string) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, hexKey)
	}
	data, err := bech32.ConvertBits(key, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	return bech32.Encode(npubPrefix, data)
}
