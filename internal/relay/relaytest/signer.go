// ABOUTME: Deterministic event signer for tests that need events a real relay client would accept.
// ABOUTME: Derives a key from a one-byte seed and fills in pubkey, id and schnorr signature.
package relaytest

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/harperreed/workoutfeed/internal/relay"
)

// Signer signs events with a fixed key.
type Signer struct {
	priv   *btcec.PrivateKey
	pubKey string
}

// NewSigner returns a signer whose private key is 32 copies of seed.
// seed must not be zero.
func NewSigner(seed byte) *Signer {
	priv, pub := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return &Signer{priv: priv, pubKey: hex.EncodeToString(schnorr.SerializePubKey(pub))}
}

// PubKey returns the hex x-only public key, usable as an identity.
func (s *Signer) PubKey() string {
	return s.pubKey
}

// Sign sets the event's pubkey, id and signature.
func (s *Signer) Sign(ev relay.Event) relay.Event {
	ev.PubKey = s.pubKey
	h := ev.Hash()
	ev.ID = hex.EncodeToString(h[:])
	sig, err := schnorr.Sign(s.priv, h[:])
	if err != nil {
		panic("relaytest: sign event: " + err.Error())
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return ev
}
