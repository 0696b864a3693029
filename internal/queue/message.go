package queue

import (
	"encoding/json"
	"errors"

	"docpress/internal/render"
)

// Message is the queue wire format. A message without job_id or
// render_request is malformed and gets dropped by the consumer.
type Message struct {
	JobID         string          `json:"job_id"`
	PackID        string          `json:"pack_id"`
	SessionID     string          `json:"session_id"`
	DocID         string          `json:"doc_id"`
	RenderRequest *render.Request `json:"render_request"`
}

var ErrMalformed = errors.New("malformed queue message")

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, ErrMalformed
	}
	if m.JobID == "" || m.RenderRequest == nil {
		return Message{}, ErrMalformed
	}
	return m, nil
}
