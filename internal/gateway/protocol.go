package gateway

import "encoding/json"

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Event names pushed to WebSocket clients.
const (
	EventConnectChallenge = "connect.challenge"
	EventAgentRound       = "agent.round"
	EventAgentTool        = "agent.tool"
)

// Frame is the envelope for every WebSocket message. Type discriminates
// between request, response and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error format in response frames. Status carries the HTTP
// status an equivalent REST call would have returned.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int        `json:"minProtocol"`
	MaxProtocol int        `json:"maxProtocol"`
	Client      ClientInfo `json:"client"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform,omitempty"`
}

// HelloOK is the server's reply to a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload int `json:"maxPayload"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &errShape,
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

// ProtocolVersion is the WebSocket protocol version supported by this server.
const ProtocolVersion = 1

// maxPayload bounds request bodies and WebSocket frames.
const maxPayload = 8 * 1024 * 1024
