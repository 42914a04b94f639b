// ABOUTME: Event id and signature checks: sha256 over the canonical serialization, schnorr over the id.
// ABOUTME: Discovery drops any relay event whose id or signature does not hold.
package relay

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var (
	// ErrBadID means the event id is not the hash of its content.
	ErrBadID = errors.New("event id does not match content")
	// ErrBadSignature means the signature does not verify under the pubkey.
	ErrBadSignature = errors.New("event signature is invalid")
)

// Serialize returns the canonical form hashed into the event id:
// [0,<pubkey>,<created_at>,<kind>,<tags>,<content>] with no whitespace.
func (e Event) Serialize() []byte {
	var b bytes.Buffer
	b.WriteString(`[0,`)
	writeString(&b, e.PubKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(e.Kind))
	b.WriteString(`,[`)
	for i, tag := range e.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(&b, v)
		}
		b.WriteByte(']')
	}
	b.WriteString(`],`)
	writeString(&b, e.Content)
	b.WriteByte(']')
	return b.Bytes()
}

// Hash returns the sha256 of the canonical serialization.
func (e Event) Hash() [32]byte {
	return sha256.Sum256(e.Serialize())
}

// Verify checks the id and then the schnorr signature against PubKey.
func (e Event) Verify() error {
	h := e.Hash()
	if e.ID != hex.EncodeToString(h[:]) {
		return ErrBadID
	}

	pkBytes, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrBadSignature, err)
	}
	pk, err := schnorr.ParsePubKey(pkBytes)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrBadSignature, err)
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sig.Verify(h[:], pk) {
		return ErrBadSignature
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString quotes s with the minimal escaping the id hash expects:
// no HTML escaping and only control characters and quote/backslash escaped.
func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
