package transport

import "encoding/json"

// Event types exchanged over the socket.
const (
	EventAddUser     = "addUser"
	EventSendMessage = "sendMessage"
	EventGetMessage  = "getMessage"
	EventError       = "error"
)

// Envelope is the outbound frame: an event name plus its payload.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundEnvelope defers decoding data until the type is known.
type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}
