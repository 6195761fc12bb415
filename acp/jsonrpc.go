package acp

import (
	"encoding/json"
	"sync/atomic"
)

// jsonRPCVersion is sent on every message.
const jsonRPCVersion = "2.0"

// Methods the client sends.
const (
	methodInitialize  = "initialize"
	methodNewSession  = "newSession"
	methodLoadSession = "loadSession"
	methodPrompt      = "prompt"
	methodCancel      = "cancel"
)

// Methods the agent sends.
const (
	methodSessionUpdate     = "sessionUpdate"
	methodRequestPermission = "requestPermission"
)

// Standard JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// jsonRPCMessage is the superset envelope used to classify inbound
// traffic: a response carries an ID and a result or error, a request
// carries an ID and a method, a notification carries only a method.
type jsonRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m *jsonRPCMessage) isResponse() bool {
	return m.ID != nil && m.Method == ""
}

func (m *jsonRPCMessage) isRequest() bool {
	return m.ID != nil && m.Method != ""
}

func (m *jsonRPCMessage) isNotification() bool {
	return m.ID == nil && m.Method != ""
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

func newRequest(id int64, method string, params any) jsonRPCRequest {
	return jsonRPCRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params}
}

func newNotification(method string, params any) jsonRPCNotification {
	return jsonRPCNotification{JSONRPC: jsonRPCVersion, Method: method, Params: params}
}

func newResponse(id int64, result any) jsonRPCResponse {
	return jsonRPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func newErrorResponse(id int64, code int, message string) jsonRPCResponse {
	return jsonRPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// idGenerator hands out monotonically increasing request IDs.
type idGenerator struct {
	next atomic.Int64
}

func (g *idGenerator) Next() int64 {
	return g.next.Add(1)
}
