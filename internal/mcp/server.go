package mcp

import (
	"context"
	"encoding/json"

	"github.com/rtkai/icm/internal/embedding"
	"github.com/rtkai/icm/internal/storage"
)

// serverVersion is reported in the initialize response's serverInfo.
const serverVersion = "0.1.0"

// Server holds the stores and optional embedding capability the tool
// dispatcher is built on, plus the usage instructions surfaced to
// clients on initialize.
type Server struct {
	memories     storage.MemoryStore
	memoirs      storage.MemoirStore
	embedder     embedding.Embedder // nil when no embedding capability is configured
	instructions string
	recallLimit  int
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithEmbedder attaches an optional embedding capability. Passing nil is
// equivalent to omitting the option.
func WithEmbedder(e embedding.Embedder) ServerOption {
	return func(s *Server) {
		s.embedder = e
	}
}

// WithInstructions overrides the usage instructions returned from
// initialize.
func WithInstructions(text string) ServerOption {
	return func(s *Server) {
		s.instructions = text
	}
}

// WithDefaultRecallLimit sets the fallback result count icm_recall uses
// when the caller omits "limit".
func WithDefaultRecallLimit(n int) ServerOption {
	return func(s *Server) {
		s.recallLimit = n
	}
}

// NewServer constructs a Server over the given stores.
func NewServer(memories storage.MemoryStore, memoirs storage.MemoirStore, opts ...ServerOption) *Server {
	s := &Server{
		memories:    memories,
		memoirs:     memoirs,
		recallLimit: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleLine parses and dispatches one line of JSON-RPC input, returning
// the encoded response line to write back, or nil for a notification that
// warrants no response. A malformed line produces a parse-error response
// addressed to a null id rather than terminating the server.
func (s *Server) HandleLine(ctx context.Context, line []byte) []byte {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return encode(errResponse(nil, ErrCodeParseError, "parse error: "+err.Error()))
	}
	if req.ID == nil {
		// Notification: no response is written, per the JSON-RPC spec.
		return nil
	}

	resp := s.dispatch(ctx, req)
	return encode(resp)
}

func encode(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// json.Marshal on our own Response type cannot realistically fail;
		// fall back to a minimal internal-error line rather than panicking.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return b
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return okResponse(req.ID, s.handleInitialize())
	case "ping":
		return okResponse(req.ID, map[string]interface{}{})
	case "tools/list":
		return okResponse(req.ID, s.handleToolsList())
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize() InitializeResult {
	return InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    Capabilities{Tools: ToolsCapability{}},
		ServerInfo:      ServerInfo{Name: "icm", Version: serverVersion},
		Instructions:    s.instructions,
	}
}

func (s *Server) handleToolsList() ToolsListResult {
	return ToolsListResult{Tools: toolDefinitions(s.embedder != nil)}
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return errResponse(req.ID, ErrCodeInvalidParams, "invalid params")
	}
	var params ToolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return errResponse(req.ID, ErrCodeInvalidParams, "invalid params: "+err.Error())
	}
	if params.Name == "" {
		return errResponse(req.ID, ErrCodeInvalidParams, "missing tool name")
	}

	handler, ok := s.toolHandlers()[params.Name]
	if !ok {
		return errResponse(req.ID, ErrCodeInvalidParams, "unknown tool: "+params.Name)
	}

	result := handler(ctx, params.Arguments)
	return okResponse(req.ID, result)
}
