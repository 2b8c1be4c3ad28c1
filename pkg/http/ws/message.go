package ws

import "encoding/json"

// MessageType constants for the question feed protocol.
const (
	// Server -> Client
	TypeQuestionAdded = "question_added"
	TypeWelcome       = "welcome"
	TypeError         = "error"

	// Client -> Server
	TypePing = "ping"
	TypePong = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// QuestionAddedPayload announces a newly stored question. Answers are never included.
type QuestionAddedPayload struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Question string `json:"question"`
}

type WelcomePayload struct {
	ConnectionID string `json:"connection_id"`
	Category     string `json:"category,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}
