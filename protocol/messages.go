// Package protocol defines the JSON messages exchanged over the room and bot
// websockets. Every frame is a Message envelope whose Data holds one of the
// payload types below.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the payload carried by a Message.
type Type string

const (
	// Client -> Server (rooms)
	TypeJoinRoom     Type = "join_room"
	TypeStartGame    Type = "start_game"
	TypePlayerAction Type = "player_action"

	// Client -> Server (bots)
	TypeRegisterBot Type = "register_bot"
	TypeEnqueue     Type = "enqueue"
	TypeBotAction   Type = "bot_action"

	// Server -> Client
	TypeAck          Type = "ack"
	TypeError        Type = "error"
	TypeStateUpdate  Type = "state_update"
	TypeRegistered   Type = "registered"
	TypeMatchStarted Type = "match_started"
	TypeMatchUpdate  Type = "match_update"
	TypeTurn         Type = "turn"
	TypeMatchResumed Type = "match_resumed"
	TypeMatchEnded   Type = "match_ended"
)

func (t Type) String() string {
	return string(t)
}

// Message is the websocket envelope. RequestID is echoed on the ack that
// answers a join or register request.
type Message struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(t Type, data any) (*Message, error) {
	msg := &Message{Type: t, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", t, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// NewReply creates a message answering requestID.
func NewReply(t Type, requestID string, data any) (*Message, error) {
	msg, err := NewMessage(t, data)
	if err != nil {
		return nil, err
	}
	msg.RequestID = requestID
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

// Error codes carried by Error payloads.
const (
	CodeInvalidMessage = "invalid_message"
	CodeUnknownType    = "unknown_type"
	CodeNotJoined      = "not_joined"
	CodeRejected       = "rejected"
)
