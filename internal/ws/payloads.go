package ws

import "encoding/json"

// Envelope is every frame on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ReadyPayload struct {
	UserID int64 `json:"user_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = b
	}
	return json.Marshal(env)
}
