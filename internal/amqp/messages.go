package amqp

import (
	"encoding/json"
	"time"
)

// InboundMessage is the JSON payload the external chat-transport listener
// publishes for every text message it sees in the group. It carries exactly
// the fields of the appendMessage ingress call.
type InboundMessage struct {
	MessageID  int64     `json:"message_id"`
	ChatID     int64     `json:"chat_id"`
	AuthorName string    `json:"author_name"`
	AuthorID   int64     `json:"author_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// ToJSON converts the message to JSON bytes
func (m *InboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InboundMessageFromJSON creates a message from JSON bytes
func InboundMessageFromJSON(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
