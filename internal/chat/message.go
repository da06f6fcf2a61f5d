package chat

import (
	"encoding/json"
	"fmt"
)

// Message kinds.
const (
	KindPrivate = "private"
	KindGroup   = "group"
)

// Message is one chat message. Messages are immutable except for the
// recall and read-receipt fields. The JSON form is the canonical
// serialization in the hot tier and in offline queues.
type Message struct {
	ID        string `json:"id"`
	From      int64  `json:"from"`
	To        int64  `json:"to,omitempty"`
	Group     int64  `json:"group,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"type"`

	Recalled   bool  `json:"recalled,omitempty"`
	RecallTime int64 `json:"recall_time,omitempty"`
	RecallBy   int64 `json:"recall_by,omitempty"`

	Read          bool  `json:"read,omitempty"`
	ReadTimestamp int64 `json:"read_timestamp,omitempty"`
}

// Encode serializes the message to its canonical JSON form.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding message %s: %w", m.ID, err)
	}
	return string(data), nil
}

// DecodeMessage parses a serialized message.
func DecodeMessage(data string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return m, nil
}

// Group metadata mirrored in the hot tier.
type Group struct {
	ID        int64
	Name      string
	CreatorID int64
	CreatedAt int64
}
