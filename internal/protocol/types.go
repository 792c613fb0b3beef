package protocol

import "encoding/json"

// Envelope types exchanged with the child frame.
const (
	TypeRegister    = "register"
	TypeRegisterAck = "register_ack"
	TypeRest        = "rest"
	TypeFetch       = "fetch"
	TypeResponse    = "response"
	TypeError       = "error"
)

type Envelope struct {
	MsgID     string          `json:"msg_id"`
	TraceID   string          `json:"trace_id,omitempty"`
	Type      string          `json:"type"`
	FrameID   string          `json:"frame_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is the {success, data} wrapper the child frame answers with.
// Data is the payload on success and the error description otherwise.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type RegisterPayload struct {
	FrameID  string            `json:"frame_id"`
	Origin   string            `json:"origin,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type RegisterAckPayload struct {
	FrameID  string `json:"frame_id"`
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
