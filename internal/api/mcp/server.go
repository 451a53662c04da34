package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/Zereker/docstore/internal/docstore"
	"github.com/Zereker/docstore/pkg/log"
)

const protocolVersion = "2025-06-18"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Server answers MCP requests for one repository.
type Server struct {
	logger  *slog.Logger
	handler *Handler
	info    serverInfo
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Name    string
	Version string
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NewServer creates a new MCP server
func NewServer(repo *docstore.Repository, config ServerConfig) *Server {
	return &Server{
		logger:  log.Logger("mcp"),
		handler: NewHandler(repo),
		info:    serverInfo{Name: config.Name, Version: config.Version},
	}
}

// request is a JSON-RPC request or, when ID is absent, a notification.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the tools/call result. Content repeats StructuredContent
// as JSON text for clients that only read text blocks.
type ToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// RunStdio serves MCP over the process's stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads newline delimited JSON-RPC messages from r and answers
// requests on w until r is exhausted or ctx is done. Notifications get no
// answer.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("serving", "name", s.info.Name, "version", s.info.Version)

	reader := bufio.NewReader(r)
	enc := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return errors.Wrap(readErr, "read request")
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			if resp := s.handle(ctx, line); resp != nil {
				if err := enc.Encode(resp); err != nil {
					s.logger.Error("write response", "error", err)
				}
			}
		}

		if readErr != nil {
			s.logger.Info("input closed")
			return nil
		}
	}
}

// handle answers one message; nil means nothing is written back.
func (s *Server) handle(ctx context.Context, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return failure(nil, &Error{Code: codeParseError, Message: "parse error", Data: err.Error()})
	}

	if len(req.ID) == 0 {
		s.logger.Debug("notification", "method", req.Method)
		return nil
	}
	if req.Method == "" {
		return failure(req.ID, &Error{Code: codeInvalidRequest, Message: "method is required"})
	}

	result, rpcErr := s.dispatch(ctx, req)
	if rpcErr != nil {
		return failure(req.ID, rpcErr)
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		}, nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return toolsListResult{Tools: DocstoreTools}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		return nil, &Error{Code: codeMethodNotFound, Message: "method not found", Data: req.Method}
	}
}

// callTool runs a tool. Caller mistakes (unknown tool, bad arguments,
// records or queries the store rejects) are JSON-RPC errors; failures while
// executing are reported inside the result with isError set.
func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &Error{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
	}

	s.logger.Info("tools/call", "tool", params.Name)

	result, err := s.handler.Call(ctx, params.Name, params.Arguments)
	switch {
	case err == nil:
		return toolResult(result, false), nil
	case isCallerError(err):
		return nil, &Error{Code: codeInvalidParams, Message: err.Error(), Data: params.Name}
	default:
		s.logger.Error("tool failed", "tool", params.Name, "error", err)
		res := toolResult(result, true)
		res.Content = append(res.Content, ContentBlock{Type: "text", Text: err.Error()})
		return res, nil
	}
}

func isCallerError(err error) bool {
	var batchErr *docstore.BatchError
	if errors.As(err, &batchErr) {
		return false
	}
	return errors.Is(err, errUnknownTool) ||
		errors.Is(err, errBadArguments) ||
		errors.Is(err, docstore.ErrValidation) ||
		errors.Is(err, docstore.ErrInvalidQuery)
}

func toolResult(result any, isError bool) ToolResult {
	res := ToolResult{StructuredContent: result, IsError: isError}
	if result == nil {
		return res
	}
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte(err.Error())
	}
	res.Content = []ContentBlock{{Type: "text", Text: string(data)}}
	return res
}

func failure(id json.RawMessage, e *Error) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: e}
}
