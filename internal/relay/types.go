package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Conn is a live transport connection as seen by the relay. Implementations
// are owned by the transport; the registry only keeps references.
//
// Close must not block on network I/O: the registry calls it for superseded
// connections and expects it to only initiate the shutdown.
type Conn interface {
	ID() string
	Forward(ctx context.Context, payload Payload) error
	Close(reason string) error
}

// Timestamp holds the sender-supplied timestamp exactly as the client sent it.
// Clients send either epoch milliseconds or a date string; both are kept
// verbatim so the receiver gets back what the sender produced.
type Timestamp string

// TimestampFromMillis builds a numeric timestamp.
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp(strconv.FormatInt(ms, 10))
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("null"), nil
	}
	return []byte(t), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	*t = Timestamp(data)
	return nil
}

// text renders the timestamp as it reads inside a message key: strings
// unquoted, numbers in shortest decimal form so 100, 100.0 and 1e2 agree.
func (t Timestamp) text() string {
	if t == "" {
		return ""
	}
	if t[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(t), &s); err == nil {
			return s
		}
		return string(t)
	}

	f, err := strconv.ParseFloat(string(t), 64)
	if err != nil {
		return string(t)
	}
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MessageEvent is a "send message" request arriving from a sender's connection.
type MessageEvent struct {
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Text           string    `json:"message"`
	ConversationID string    `json:"conversationId"`
	Timestamp      Timestamp `json:"timestamp"`
	SenderName     string    `json:"senderName"`
	SenderEmail    string    `json:"senderEmail"`
}

// Fingerprint identifies a logical message for duplicate suppression. Its
// Timestamp is the key form from Timestamp.text, not the wire form.
type Fingerprint struct {
	SenderID  string
	Text      string
	Timestamp Timestamp
}

// Fingerprint derives the dedup key of the event.
func (e MessageEvent) Fingerprint() Fingerprint {
	return Fingerprint{
		SenderID:  e.SenderID,
		Text:      e.Text,
		Timestamp: Timestamp(e.Timestamp.text()),
	}
}

// SenderInfo is the denormalized sender block delivered with each message.
type SenderInfo struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Payload is what the receiver's connection gets for a relayed message.
type Payload struct {
	SenderID       string     `json:"senderId"`
	Text           string     `json:"message"`
	ConversationID string     `json:"conversationId"`
	Timestamp      Timestamp  `json:"timestamp"`
	User           SenderInfo `json:"user"`
}

// PayloadFrom copies the event fields verbatim into a forward payload.
func PayloadFrom(e MessageEvent) Payload {
	return Payload{
		SenderID:       e.SenderID,
		Text:           e.Text,
		ConversationID: e.ConversationID,
		Timestamp:      e.Timestamp,
		User: SenderInfo{
			ID:       e.SenderID,
			FullName: e.SenderName,
			Email:    e.SenderEmail,
		},
	}
}

// Outcome is the result of a relay attempt. None of them are errors.
type Outcome string

const (
	OutcomeDelivered     Outcome = "delivered"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeOffline       Outcome = "offline"
	OutcomeForwardFailed Outcome = "forward_failed"
)

// Stats is a point-in-time view of the relay's shared state.
type Stats struct {
	Online   int `json:"online"`
	InFlight int `json:"in_flight"`
}
