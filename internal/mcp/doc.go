// Package mcp implements the Model Context Protocol adapter for the gateway.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package exposes the gateway's tools to external AI clients (desktop
// assistants, web apps) over JSON-RPC 2.0 on two transports that share one
// tool registry and one authentication pipeline:
//
//   - Server: HTTP transport with a single POST /mcp endpoint plus
//     GET /health and GET /status side endpoints
//   - StdioServer: one JSON object per line on stdin/stdout
//
// # Method Set
//
// Both transports speak the same minimal method set:
//
//   - initialize: handshake, idempotent, never requires auth
//   - tools/list: registry snapshot
//   - tools/call: authenticated tool execution
//   - ping: liveness
//
// # Authentication
//
// HTTP requests carry credentials in headers:
//
//	X-User-Email: user@example.com
//	X-Subscription-Key: fm_sub_<token>
//	X-Upstream-Api-Key: <opaque>      (optional)
//	X-Upstream-Api-Secret: <opaque>   (optional)
//
// Clients that cannot set headers may place the same fields in
// params.auth on tools/call. Missing credentials yield HTTP 400 with a
// JSON-RPC error body (code -32001), never 401/403, so proxies do not
// engage their own auth handling.
//
// The stdio transport reads credentials from the environment once at
// process start; there is no per-request credential channel.
//
// # Error Codes
//
// Standard JSON-RPC codes plus application codes:
//
//	-32001 missing credentials
//	-32002 unauthorized
//	-32003 rate limited (HTTP 429 + Retry-After on the HTTP transport)
//	-32004 not found
//	-32005 conflict
//	-32006 unavailable (retryable)
//	-32007 timeout (retryable)
package mcp
