// ABOUTME: Tests for the relay wire codec.
// ABOUTME: Covers REQ/CLOSE encoding, relay message decoding and filter matching.
package relay

import (
	"encoding/json"
	"testing"
)

func TestEncodeReq(t *testing.T) {
	since := int64(1700000000)
	data, err := EncodeReq("sub1", Filter{
		Kinds:   []int{KindWorkout},
		Authors: []string{"abc"},
		Since:   &since,
		Limit:   50,
	})
	if err != nil {
		t.Fatalf("EncodeReq failed: %v", err)
	}

	want := `["REQ","sub1",{"kinds":[1301],"authors":["abc"],"since":1700000000,"limit":50}]`
	if string(data) != want {
		t.Errorf("EncodeReq = %s, want %s", data, want)
	}
}

func TestEncodeClose(t *testing.T) {
	if got := string(EncodeClose("sub1")); got != `["CLOSE","sub1"]` {
		t.Errorf("EncodeClose = %s", got)
	}
}

func TestDecodeMessage(t *testing.T) {
	ev := Event{ID: "e1", PubKey: "pk", CreatedAt: 10, Kind: KindWorkout, Tags: [][]string{{"exercise", "running"}}}
	evData, err := EncodeEvent("s", ev)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	tests := []struct {
		name      string
		input     string
		wantLabel string
		wantSub   string
		wantText  string
		wantEvent bool
		wantErr   bool
	}{
		{name: "event", input: string(evData), wantLabel: LabelEvent, wantSub: "s", wantEvent: true},
		{name: "eose", input: `["EOSE","s"]`, wantLabel: LabelEOSE, wantSub: "s"},
		{name: "notice", input: `["NOTICE","slow down"]`, wantLabel: LabelNotice, wantText: "slow down"},
		{name: "closed", input: `["CLOSED","s","rate-limited: too fast"]`, wantLabel: LabelClosed, wantSub: "s", wantText: "rate-limited: too fast"},
		{name: "unknown label", input: `["AUTH","challenge"]`, wantLabel: "AUTH"},
		{name: "not json", input: `{nope`, wantErr: true},
		{name: "empty", input: `[]`, wantErr: true},
		{name: "short event", input: `["EVENT","s"]`, wantErr: true},
		{name: "bad event payload", input: `["EVENT","s",42]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessage failed: %v", err)
			}
			if msg.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", msg.Label, tt.wantLabel)
			}
			if msg.SubID != tt.wantSub {
				t.Errorf("SubID = %q, want %q", msg.SubID, tt.wantSub)
			}
			if msg.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", msg.Text, tt.wantText)
			}
			if (msg.Event != nil) != tt.wantEvent {
				t.Errorf("Event present = %v, want %v", msg.Event != nil, tt.wantEvent)
			}
			if tt.wantEvent && msg.Event.ID != "e1" {
				t.Errorf("Event.ID = %q, want e1", msg.Event.ID)
			}
		})
	}
}

func TestDecodeClientMessage(t *testing.T) {
	until := int64(99)
	data, err := EncodeReq("abc", Filter{Kinds: []int{KindWorkout}, Until: &until, Limit: 5})
	if err != nil {
		t.Fatalf("EncodeReq failed: %v", err)
	}

	label, sub, filters, err := DecodeClientMessage(data)
	if err != nil {
		t.Fatalf("DecodeClientMessage failed: %v", err)
	}
	if label != LabelReq || sub != "abc" {
		t.Errorf("got %s/%s, want REQ/abc", label, sub)
	}
	if len(filters) != 1 || filters[0].Until == nil || *filters[0].Until != 99 || filters[0].Since != nil {
		t.Errorf("unexpected filters: %+v", filters)
	}
}

func TestFilterMatches(t *testing.T) {
	f := Filter{Kinds: []int{KindWorkout}, Authors: []string{"me"}}

	if !f.Matches(Event{Kind: KindWorkout, PubKey: "me"}) {
		t.Error("expected match")
	}
	if f.Matches(Event{Kind: 1, PubKey: "me"}) {
		t.Error("expected kind mismatch")
	}
	if f.Matches(Event{Kind: KindWorkout, PubKey: "someone"}) {
		t.Error("expected author mismatch")
	}
}

func TestEventTag(t *testing.T) {
	ev := Event{Tags: [][]string{{"d"}, {"exercise", "cycling", "extra"}, {"exercise", "running"}}}

	v, ok := ev.Tag("exercise")
	if !ok || v != "cycling" {
		t.Errorf("Tag = %q/%v, want cycling/true", v, ok)
	}
	if _, ok := ev.Tag("d"); ok {
		t.Error("expected valueless tag to be ignored")
	}
}

func TestEventJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Event{ID: "x", PubKey: "p", CreatedAt: 1, Kind: KindWorkout})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"id", "pubkey", "created_at", "kind", "tags", "content", "sig"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
}
