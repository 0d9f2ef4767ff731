// ABOUTME: Stdio transport: one JSON-RPC object per line on stdin/stdout.
// ABOUTME: Credentials are read once at process start; no per-request header channel exists.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/gateway"
)

// ErrDownstream marks an unrecoverable transport failure (exit code 2).
var ErrDownstream = errors.New("unrecoverable downstream error")

// StdioConfig holds configuration for the stdio transport.
type StdioConfig struct {
	Adapter     *gateway.Adapter
	Logger      *slog.Logger
	In          io.Reader
	Out         io.Writer
	Credentials gateway.Credentials
}

// StdioServer serves the MCP method set over newline-delimited JSON-RPC.
// It shares the adapter (registry and auth pipeline) with the HTTP server.
type StdioServer struct {
	adapter *gateway.Adapter
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	creds   gateway.Credentials

	writeMu sync.Mutex
}

// NewStdioServer creates the stdio protocol adapter.
func NewStdioServer(cfg StdioConfig) (*StdioServer, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if cfg.In == nil || cfg.Out == nil {
		return nil, errors.New("in and out streams are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mcp-stdio")
	}

	return &StdioServer{
		adapter: cfg.Adapter,
		logger:  logger,
		in:      cfg.In,
		out:     cfg.Out,
		creds:   cfg.Credentials,
	}, nil
}

// Run reads requests line by line until EOF or context cancellation. Each
// line gets exactly one response line, in input order. A clean EOF returns
// nil; output failures return ErrDownstream.
func (s *StdioServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRequestBodySize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if err := s.writeLine(resp); err != nil {
			return fmt.Errorf("%w: writing response: %v", ErrDownstream, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading stdin: %v", ErrDownstream, err)
	}
	return nil // EOF: clean shutdown
}

// handleLine parses and dispatches one request line.
func (s *StdioServer) handleLine(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		// Unparseable lines get a parse error with a null id.
		return errorResponse(nil, JSONRPCParseError, "invalid JSON", nil)
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	s.logger.Debug("stdio request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": protocolVersion,
				"capabilities": map[string]any{
					"tools": map[string]any{},
				},
				"serverInfo": map[string]any{
					"name":    serverName,
					"version": serverVersion,
				},
			},
		}
	case "ping":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}
	case "tools/list":
		schemas := s.adapter.Registry().Schemas()
		list := make([]toolInfo, len(schemas))
		for i, schema := range schemas {
			list[i] = toolInfo{
				Name:        schema.Name,
				Description: schema.Description,
				InputSchema: schema.InputSchema,
			}
		}
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": list}}
	case "tools/call":
		return s.handleCall(ctx, req)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleCall dispatches tools/call with the process-wide credentials.
func (s *StdioServer) handleCall(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required", nil)
	}

	result, _, err := s.adapter.CallTool(ctx, s.creds, params.Name, params.Arguments)
	if err != nil {
		we := classifyError(err)
		data := we.Data
		if we.RetryAfter > 0 && data == nil {
			data = map[string]any{"retry_after_seconds": strconv.Itoa(int(we.RetryAfter / time.Second))}
		}
		return errorResponse(req.ID, we.Code, we.Message, data)
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// writeLine serializes one response as a single output line.
func (s *StdioServer) writeLine(resp JSONRPCResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.out.Write(append(payload, '\n'))
	return err
}

func errorResponse(id json.RawMessage, code int, message string, data any) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
}
