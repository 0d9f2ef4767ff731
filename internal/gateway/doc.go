// Package gateway composes identity, subscription validation, rate limiting,
// and the tool registry into the authenticated call pipeline.
//
// Every tools/call passes through the same six stages:
//
//	extract credentials -> validate subscription -> derive user handle ->
//	rate limit -> build auth context -> dispatch tool
//
// Each stage returns either a value or a typed error; any failure
// short-circuits before storage is touched or an upstream call is made.
// Both transports share a single Adapter.
package gateway
