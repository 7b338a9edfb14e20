package rpc

import (
	"encoding/json"
	"sort"

	"github.com/crowcoin/crowd/version"
)

// JSON-RPC error codes returned in the error object of a response.
const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rawRequest is an incoming JSON-RPC 1.0 request envelope.
type rawRequest struct {
	ID     interface{}       `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rawResponse is an outgoing JSON-RPC 1.0 response envelope. Exactly one of
// Result and Error carries the outcome.
type rawResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     interface{}     `json:"id"`
}

type commandHandler func(s *Server, params []json.RawMessage) (interface{}, *Error)

var handlers = map[string]commandHandler{
	"ping":    handlePing,
	"uptime":  handleUptime,
	"getinfo": handleGetInfo,
	"stop":    handleStop,
}

func init() {
	handlers["help"] = handleHelp
}

func handlePing(s *Server, params []json.RawMessage) (interface{}, *Error) {
	return nil, nil
}

func handleUptime(s *Server, params []json.RawMessage) (interface{}, *Error) {
	return int64(s.Uptime().Seconds()), nil
}

// infoResult is the reply of the getinfo command.
type infoResult struct {
	Version        string `json:"version"`
	Network        string `json:"network"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	WorkQueueDepth int    `json:"workQueueDepth"`
	WorkerCount    int    `json:"workerCount"`
}

func handleGetInfo(s *Server, params []json.RawMessage) (interface{}, *Error) {
	network := ""
	if s.cfg.ActiveNetParams != nil {
		network = s.cfg.ActiveNetParams.Name
	}
	return &infoResult{
		Version:        version.Version(),
		Network:        network,
		UptimeSeconds:  int64(s.Uptime().Seconds()),
		WorkQueueDepth: s.httpServer.WorkQueueDepth(),
		WorkerCount:    s.httpServer.WorkerCount(),
	}, nil
}

func handleStop(s *Server, params []json.RawMessage) (interface{}, *Error) {
	log.Infof("RPC stop command received, requesting shutdown")
	s.requestShutdown()
	return "crowd stopping", nil
}

func handleHelp(s *Server, params []json.RawMessage) (interface{}, *Error) {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods, nil
}
