// ABOUTME: Tests for identity key normalization.
// ABOUTME: Checks hex and npub inputs against a known key pair.
package relay

import (
	"errors"
	"strings"
	"testing"
)

const (
	testHex  = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"
	testNpub = "npub10elfcs4fr0l0r8af98jlmgdh9c8tcxjvz9qkw038js35mp4dma8qzvjptg"
)

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "hex", input: testHex, want: testHex},
		{name: "upper hex", input: strings.ToUpper(testHex), want: testHex},
		{name: "padded hex", input: "  " + testHex + "\n", want: testHex},
		{name: "npub", input: testNpub, want: testHex},
		{name: "empty", input: "", wantErr: true},
		{name: "short hex", input: testHex[:60], wantErr: true},
		{name: "non hex", input: strings.Repeat("z", 64), wantErr: true},
		{name: "bad checksum", input: testNpub[:len(testNpub)-1] + "q", wantErr: true},
		{name: "wrong prefix", input: "nsec1abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeIdentity(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIdentity) {
					t.Errorf("expected ErrInvalidIdentity, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeIdentity failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeIdentity = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeNpub(t *testing.T) {
	got, err := EncodeNpub(testHex)
	if err != nil {
		t.Fatalf("EncodeNpub failed: %v", err)
	}
	if got != testNpub {
		t.Errorf("EncodeNpub = %s, want %s", got, testNpub)
	}

	if _, err := EncodeNpub("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}
