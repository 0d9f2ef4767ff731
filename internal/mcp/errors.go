// ABOUTME: JSON-RPC 2.0 error codes and the mapping from internal errors to the wire taxonomy.
// ABOUTME: Standard codes from -32600 down, application codes from -32001 down.

package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/gateway"
	"github.com/fortunamind/persistent-gateway/internal/store"
	"github.com/fortunamind/persistent-gateway/internal/tools"
)

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Application error codes
const (
	CodeMissingCredentials = -32001
	CodeUnauthorized       = -32002
	CodeRateLimited        = -32003
	CodeNotFound           = -32004
	CodeConflict           = -32005
	CodeUnavailable        = -32006
	CodeTimeout            = -32007
)

// wireError is a classified error ready for the JSON-RPC envelope.
type wireError struct {
	Code       int
	Message    string
	Data       any
	RetryAfter time.Duration // > 0 only for rate limiting
}

// classifyError maps pipeline and tool errors onto the wire taxonomy.
// Internal errors never leak detail to the client.
func classifyError(err error) wireError {
	var (
		unauthorized *gateway.UnauthorizedError
		rateLimited  *gateway.RateLimitedError
		invalid      *tools.InvalidParametersError
		denied       *tools.PermissionDeniedError
	)

	switch {
	case errors.Is(err, gateway.ErrMissingCredentials):
		return wireError{Code: CodeMissingCredentials, Message: "missing credentials"}

	case errors.As(err, &unauthorized):
		msg := "unauthorized: invalid subscription"
		if unauthorized.Retryable() {
			msg = "unauthorized: subscription registry unavailable"
			return wireError{Code: CodeUnavailable, Message: msg}
		}
		return wireError{
			Code:    CodeUnauthorized,
			Message: msg,
			Data:    map[string]any{"reason": string(unauthorized.Reason)},
		}

	case errors.As(err, &rateLimited):
		return wireError{
			Code:       CodeRateLimited,
			Message:    "rate limit exceeded",
			RetryAfter: rateLimited.RetryAfter,
			Data: map[string]any{
				"retry_after_seconds": int(rateLimited.RetryAfter.Seconds() + 0.5),
				"window":              rateLimited.Window,
			},
		}

	case errors.Is(err, tools.ErrUnknownTool):
		return wireError{Code: JSONRPCMethodNotFound, Message: "unknown tool"}

	case errors.As(err, &invalid):
		data := map[string]any{"message": invalid.Message}
		if invalid.Path != "" {
			data["path"] = invalid.Path
		}
		return wireError{Code: JSONRPCInvalidParams, Message: invalid.Error(), Data: data}

	case errors.As(err, &denied):
		return wireError{
			Code:    CodeUnauthorized,
			Message: denied.Error(),
			Data:    map[string]any{"reason": "insufficient_tier"},
		}

	case errors.Is(err, store.ErrNotFound):
		return wireError{Code: CodeNotFound, Message: "not found"}

	case errors.Is(err, store.ErrConflict):
		return wireError{Code: CodeConflict, Message: "conflict"}

	case errors.Is(err, store.ErrUnavailable):
		return wireError{Code: CodeUnavailable, Message: "storage unavailable"}

	case errors.Is(err, context.DeadlineExceeded):
		return wireError{Code: CodeTimeout, Message: "request timed out"}

	default:
		return wireError{Code: JSONRPCInternalError, Message: "internal error"}
	}
}
