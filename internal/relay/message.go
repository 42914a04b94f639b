// ABOUTME: Relay wire protocol: events, subscription filters and the JSON array envelopes.
// ABOUTME: Encodes REQ/CLOSE client messages and decodes EVENT/EOSE/NOTICE/CLOSED relay messages.
package relay

import (
	"encoding/json"
	"fmt"
)

// KindWorkout is the record kind for a single workout.
const KindWorkout = 1301

// Relay message labels.
const (
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelEvent  = "EVENT"
	LabelEOSE   = "EOSE"
	LabelNotice = "NOTICE"
	LabelClosed = "CLOSED"
	LabelOK     = "OK"
)

// Event is one raw record as published to a relay.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Tag returns the first value of the first tag with the given name.
func (e Event) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// Filter selects events on a relay. Since and Until are unix seconds.
type Filter struct {
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Matches reports whether an event satisfies the kind and author constraints.
func (f Filter) Matches(ev Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	return true
}

// Message is a decoded relay-to-client message.
type Message struct {
	Label string
	SubID string
	Event *Event
	// Text carries the NOTICE message or the CLOSED reason.
	Text string
}

// EncodeReq builds a ["REQ", subID, filter] message.
func EncodeReq(subID string, f Filter) ([]byte, error) {
	data, err := json.Marshal([]any{LabelReq, subID, f})
	if err != nil {
		return nil, fmt.Errorf("encode REQ: %w", err)
	}
	return data, nil
}

// EncodeClose builds a ["CLOSE", subID] message.
func EncodeClose(subID string) []byte {
	data, _ := json.Marshal([]any{LabelClose, subID})
	return data
}

// EncodeEvent builds a ["EVENT", subID, event] message, as a relay sends it.
func EncodeEvent(subID string, ev Event) ([]byte, error) {
	data, err := json.Marshal([]any{LabelEvent, subID, ev})
	if err != nil {
		return nil, fmt.Errorf("encode EVENT: %w", err)
	}
	return data, nil
}

// EncodeEOSE builds a ["EOSE", subID] message.
func EncodeEOSE(subID string) []byte {
	data, _ := json.Marshal([]any{LabelEOSE, subID})
	return data
}

// DecodeMessage parses one relay-to-client message. Unknown labels decode
// without error so callers can skip them.
func DecodeMessage(data []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if len(parts) == 0 {
		return Message{}, fmt.Errorf("decode message: empty array")
	}

	var msg Message
	if err := json.Unmarshal(parts[0], &msg.Label); err != nil {
		return Message{}, fmt.Errorf("decode label: %w", err)
	}

	switch msg.Label {
	case LabelEvent:
		if len(parts) < 3 {
			return Message{}, fmt.Errorf("decode EVENT: want 3 elements, got %d", len(parts))
		}
		if err := json.Unmarshal(parts[1], &msg.SubID); err != nil {
			return Message{}, fmt.Errorf("decode EVENT subscription: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			return Message{}, fmt.Errorf("decode EVENT payload: %w", err)
		}
		msg.Event = &ev
	case LabelEOSE:
		if len(parts) < 2 {
			return Message{}, fmt.Errorf("decode EOSE: missing subscription")
		}
		if err := json.Unmarshal(parts[1], &msg.SubID); err != nil {
			return Message{}, fmt.Errorf("decode EOSE subscription: %w", err)
		}
	case LabelClosed:
		if len(parts) < 2 {
			return Message{}, fmt.Errorf("decode CLOSED: missing subscription")
		}
		if err := json.Unmarshal(parts[1], &msg.SubID); err != nil {
			return Message{}, fmt.Errorf("decode CLOSED subscription: %w", err)
		}
		if len(parts) > 2 {
			_ = json.Unmarshal(parts[2], &msg.Text)
		}
	case LabelNotice:
		if len(parts) > 1 {
			_ = json.Unmarshal(parts[1], &msg.Text)
		}
	}
	return msg, nil
}

// DecodeClientMessage parses a client-to-relay REQ or CLOSE message.
// It is what a relay reads, and is used by test relays.
func DecodeClientMessage(data []byte) (label, subID string, filters []Filter, err error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", "", nil, fmt.Errorf("decode client message: %w", err)
	}
	if len(parts) < 2 {
		return "", "", nil, fmt.Errorf("decode client message: want at least 2 elements")
	}
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return "", "", nil, fmt.Errorf("decode label: %w", err)
	}
	if err := json.Unmarshal(parts[1], &subID); err != nil {
		return "", "", nil, fmt.Errorf("decode subscription: %w", err)
	}
	for _, raw := range parts[2:] {
		var f Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", "", nil, fmt.Errorf("decode filter: %w", err)
		}
		filters = append(filters, f)
	}
	return label, subID, filters, nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
