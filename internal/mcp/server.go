// ABOUTME: MCP-compatible HTTP server exposing the JSON-RPC 2.0 method set.
// ABOUTME: Single POST /mcp endpoint plus health and status side endpoints.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/fortunamind/persistent-gateway/internal/gateway"
)

// protocolVersion is the MCP protocol revision this server speaks.
const protocolVersion = "2024-11-05"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// requestTimeout bounds one inbound request end to end.
const requestTimeout = 30 * time.Second

// serverName and serverVersion identify the gateway in initialize responses.
const (
	serverName    = "fortunamind-persistent-gateway"
	serverVersion = "1.0.0"
)

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Header names for credential extraction.
const (
	headerUserEmail       = "X-User-Email"
	headerSubscriptionKey = "X-Subscription-Key"
	headerUpstreamKey     = "X-Upstream-Api-Key"
	headerUpstreamSecret  = "X-Upstream-Api-Secret"
	headerWarning         = "X-Gateway-Warning"
)

// SecurityProfile selects CORS and input stringency.
type SecurityProfile string

const (
	ProfileStrict   SecurityProfile = "strict"
	ProfileModerate SecurityProfile = "moderate"
)

// Config holds configuration for the HTTP server.
type Config struct {
	Adapter        *gateway.Adapter
	Logger         *slog.Logger
	Profile        SecurityProfile
	AllowedOrigins []string // used by the strict profile
	StartedAt      time.Time
}

// Server exposes the MCP method set over HTTP. It shares its adapter (and
// thus tool registry and auth pipeline) with the stdio transport.
type Server struct {
	adapter        *gateway.Adapter
	logger         *slog.Logger
	profile        SecurityProfile
	allowedOrigins []string
	startedAt      time.Time
}

// NewServer creates the HTTP protocol adapter.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("adapter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mcp")
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileModerate
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}

	return &Server{
		adapter:        cfg.Adapter,
		logger:         logger,
		profile:        cfg.Profile,
		allowedOrigins: cfg.AllowedOrigins,
		startedAt:      cfg.StartedAt,
	}, nil
}

// Handler builds the full HTTP handler with routing and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	var c *cors.Cors
	if s.profile == ProfileStrict {
		c = cors.New(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{
				"Content-Type", headerUserEmail, headerSubscriptionKey,
				headerUpstreamKey, headerUpstreamSecret,
			},
		})
	} else {
		// Development profile: permissive, including credentials headers.
		c = cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"*"},
		})
	}
	return c.Handler(mux)
}

// handleMCP processes one JSON-RPC message per POST body.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	// Per-request deadline; client disconnection cancels the parent context
	// and aborts in-flight work.
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	r = r.WithContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeError(w, http.StatusRequestEntityTooLarge, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, http.StatusOK, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	s.logger.Debug("mcp request", "method", req.Method)

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "ping":
		s.writeResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req)
	default:
		s.writeError(w, http.StatusOK, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize answers the MCP handshake. Idempotent, never requires auth.
func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	s.writeResult(w, req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	})
}

// toolInfo is one entry in a tools/list response.
type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// handleToolsList returns the registry snapshot.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	schemas := s.adapter.Registry().Schemas()
	list := make([]toolInfo, len(schemas))
	for i, schema := range schemas {
		list[i] = toolInfo{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: schema.InputSchema,
		}
	}
	s.writeResult(w, req.ID, map[string]any{"tools": list})
}

// callToolParams are the params for tools/call. The optional auth object is
// the body-level fallback for clients that cannot set headers.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Auth      *bodyAuth       `json:"auth,omitempty"`
}

type bodyAuth struct {
	Email             string `json:"email"`
	SubscriptionKey   string `json:"subscription_key"`
	UpstreamAPIKey    string `json:"upstream_api_key,omitempty"`
	UpstreamAPISecret string `json:"upstream_api_secret,omitempty"`
}

// handleToolsCall runs the authenticated tool pipeline.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	if params.Name == "" {
		s.writeError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	creds := s.extractCredentials(r, params.Auth)
	if creds.Email == "" || creds.SubscriptionKey == "" {
		// HTTP 400 rather than 401/403 so intermediaries do not trigger
		// their own auth handling on a JSON-RPC-level condition.
		s.writeError(w, http.StatusBadRequest, req.ID, CodeMissingCredentials, "missing credentials", nil)
		return
	}

	result, warnings, err := s.adapter.CallTool(r.Context(), creds, params.Name, params.Arguments)
	for _, warning := range warnings {
		w.Header().Add(headerWarning, warning)
	}
	if err != nil {
		we := classifyError(err)
		status := http.StatusOK
		if we.Code == CodeRateLimited {
			status = http.StatusTooManyRequests
			w.Header().Set("Retry-After", strconv.Itoa(int(we.RetryAfter.Seconds()+0.5)))
		}
		s.writeError(w, status, req.ID, we.Code, we.Message, we.Data)
		return
	}

	s.writeResult(w, req.ID, result)
}

// extractCredentials applies the extraction order: header, then body auth.
func (s *Server) extractCredentials(r *http.Request, body *bodyAuth) gateway.Credentials {
	creds := gateway.Credentials{
		Email:             strings.TrimSpace(r.Header.Get(headerUserEmail)),
		SubscriptionKey:   strings.TrimSpace(r.Header.Get(headerSubscriptionKey)),
		UpstreamAPIKey:    r.Header.Get(headerUpstreamKey),
		UpstreamAPISecret: r.Header.Get(headerUpstreamSecret),
	}
	if creds.Email == "" && creds.SubscriptionKey == "" && body != nil {
		creds.Email = strings.TrimSpace(body.Email)
		creds.SubscriptionKey = strings.TrimSpace(body.SubscriptionKey)
		creds.UpstreamAPIKey = body.UpstreamAPIKey
		creds.UpstreamAPISecret = body.UpstreamAPISecret
	}
	return creds
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall, _ := s.adapter.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         overall,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleStatus is the extended diagnostics endpoint.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	overall, components := s.adapter.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"overall":    overall,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// writeResult sends a successful JSON-RPC response.
func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// writeError sends a JSON-RPC error response with the given HTTP status.
func (s *Server) writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
