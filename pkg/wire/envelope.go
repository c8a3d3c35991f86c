// Package wire implements the JSON envelope protocol spoken over each device
// channel, including the chunk envelopes used to carry messages larger than
// one transport frame.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// MaxFramePayload is the practical ceiling, in bytes, for one encoded frame
// over the fragment-limited link. Envelopes that serialize larger than this
// must be pre-split into chunk envelopes before writing.
const MaxFramePayload = 200

// Type discriminates the top-level envelope kind.
type Type string

const (
	// TypeRPC is a remote-procedure request (tools/list or tools/call).
	TypeRPC Type = "mcp"

	// TypeRPCResponse is a reply carrying a result or an error.
	TypeRPCResponse Type = "mcp_response"

	// TypeText is a plain signal, such as the run-start broadcast.
	TypeText Type = "text"

	// TypeChunk is one fragment of a larger message.
	TypeChunk Type = "chunk"
)

// RPC method names.
const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// StopCapability is the reserved zero-argument capability invoked as the
// run-stop bracket signal, resetting remote devices to their rest state.
const StopCapability = "quit"

// Envelope is the decoded form of one application-level message. Which fields
// are populated depends on Type: Payload for rpc kinds, Text for text, and
// ID/Index/Total/Data for chunks.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Text    string          `json:"text,omitempty"`
	ID      string          `json:"id,omitempty"`
	Index   int             `json:"index,omitempty"`
	Total   int             `json:"total,omitempty"`
	Data    string          `json:"data,omitempty"`
}

// chunkWire is the marshaled shape of a chunk envelope. It never omits the
// index so that fragment 0 is explicit on the wire.
type chunkWire struct {
	Type  Type   `json:"type"`
	ID    string `json:"id"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Data  string `json:"data"`
}

// RPCPayload is the payload of a TypeRPC envelope.
type RPCPayload struct {
	Method string    `json:"method"`
	Params RPCParams `json:"params"`
}

// RPCParams carries the capability name and argument mapping of a tools/call.
// Both are empty for tools/list.
type RPCParams struct {
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// RPCResponse is the payload of a TypeRPCResponse envelope.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error half of an RPC response.
type RPCError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// ToolListResult is the result shape of a tools/list response.
type ToolListResult struct {
	Tools []domain.Capability `json:"tools"`
}

// NewToolsList builds a capability discovery request.
func NewToolsList() (Envelope, error) {
	return newRPC(RPCPayload{Method: MethodToolsList, Params: RPCParams{}})
}

// NewToolCall builds a capability invocation request.
func NewToolCall(name string, args map[string]any) (Envelope, error) {
	return newRPC(RPCPayload{Method: MethodToolsCall, Params: RPCParams{Name: name, Arguments: args}})
}

// NewText builds a plain signal envelope.
func NewText(text string) Envelope {
	return Envelope{Type: TypeText, Text: text}
}

func newRPC(p RPCPayload) (Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal rpc payload: %w", err)
	}
	return Envelope{Type: TypeRPC, Payload: raw}, nil
}

// Marshal serializes an envelope for a transport write.
func Marshal(env Envelope) ([]byte, error) {
	if env.Type == TypeChunk {
		return json.Marshal(chunkWire{
			Type:  TypeChunk,
			ID:    env.ID,
			Index: env.Index,
			Total: env.Total,
			Data:  env.Data,
		})
	}
	return json.Marshal(env)
}

// Parse decodes one frame or reassembled message into an envelope. It rejects
// frames with an unknown or missing type discriminator.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeRPC, TypeRPCResponse, TypeText, TypeChunk:
	default:
		return Envelope{}, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return env, nil
}

// ParseRPC decodes the payload of a TypeRPC envelope.
func ParseRPC(env Envelope) (RPCPayload, error) {
	if env.Type != TypeRPC {
		return RPCPayload{}, fmt.Errorf("envelope type %q is not %q", env.Type, TypeRPC)
	}
	var p RPCPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return RPCPayload{}, fmt.Errorf("decode rpc payload: %w", err)
	}
	return p, nil
}

// ParseResponse decodes the payload of a TypeRPCResponse envelope.
func ParseResponse(env Envelope) (RPCResponse, error) {
	if env.Type != TypeRPCResponse {
		return RPCResponse{}, fmt.Errorf("envelope type %q is not %q", env.Type, TypeRPCResponse)
	}
	var r RPCResponse
	if err := json.Unmarshal(env.Payload, &r); err != nil {
		return RPCResponse{}, fmt.Errorf("decode rpc response: %w", err)
	}
	return r, nil
}
