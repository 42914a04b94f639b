// ABOUTME: Tests for event id hashing and schnorr signature verification.
// ABOUTME: Signs with a fixed test key, then forges and tampers to check rejection.
package relay_test

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/harperreed/workoutfeed/internal/relay"
	"github.com/harperreed/workoutfeed/internal/relay/relaytest"
	"github.com/stretchr/testify/require"
)

func TestSerializeCanonicalForm(t *testing.T) {
	ev := relay.Event{
		PubKey:    "ab",
		CreatedAt: 1700000000,
		Kind:      relay.KindWorkout,
		Tags:      [][]string{{"exercise", "running"}, {"distance", "5", "km"}},
		Content:   "line\n\"quoted\" \\ <b>&\t\x01",
	}
	want := `[0,"ab",1700000000,1301,[["exercise","running"],["distance","5","km"]],"line\n\"quoted\" \\ <b>&\t\u0001"]`
	require.Equal(t, want, string(ev.Serialize()))

	empty := relay.Event{PubKey: "ab", CreatedAt: 1, Kind: 1}
	require.Equal(t, `[0,"ab",1,1,[],""]`, string(empty.Serialize()))
}

func TestVerifySignedEvent(t *testing.T) {
	signer := relaytest.NewSigner(7)
	ev := signer.Sign(relay.Event{
		CreatedAt: 1700000000,
		Kind:      relay.KindWorkout,
		Tags:      [][]string{{"exercise", "running"}},
		Content:   "morning run",
	})
	require.Len(t, ev.ID, 64)
	require.Len(t, ev.Sig, 128)
	require.NoError(t, ev.Verify())
}

func TestVerifyRejectsTamperedEvent(t *testing.T) {
	signer := relaytest.NewSigner(7)
	good := signer.Sign(relay.Event{CreatedAt: 1700000000, Kind: relay.KindWorkout, Content: "5k"})

	tampered := good
	tampered.Content = "50k"
	require.ErrorIs(t, tampered.Verify(), relay.ErrBadID)

	retagged := good
	retagged.Tags = [][]string{{"exercise", "cycling"}}
	require.ErrorIs(t, retagged.Verify(), relay.ErrBadID)
}

func TestVerifyRejectsForgedAuthor(t *testing.T) {
	victim := relaytest.NewSigner(7)
	forger := relaytest.NewSigner(9)

	// Claims the victim's key but is signed by someone else.
	forged := forger.Sign(relay.Event{CreatedAt: 1700000000, Kind: relay.KindWorkout, Content: "fake"})
	forged.PubKey = victim.PubKey()
	h := forged.Hash()
	forged.ID = hex.EncodeToString(h[:])
	err := forged.Verify()
	require.True(t, errors.Is(err, relay.ErrBadSignature), "got %v", err)

	unsigned := relay.Event{PubKey: victim.PubKey(), CreatedAt: 1700000000, Kind: relay.KindWorkout}
	h = unsigned.Hash()
	unsigned.ID = hex.EncodeToString(h[:])
	require.ErrorIs(t, unsigned.Verify(), relay.ErrBadSignature)

	badKey := relay.Event{PubKey: "not-hex", CreatedAt: 1, Kind: relay.KindWorkout}
	h = badKey.Hash()
	badKey.ID = hex.EncodeToString(h[:])
	require.ErrorIs(t, badKey.Verify(), relay.ErrBadSignature)
}
