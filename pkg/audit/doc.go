// Package audit provides structured audit logging for the facade's HTTP
// surface: every /mcp and /admin request is recorded as a typed event
// (actor, target, outcome, duration) independent of the request/response
// logging the ambient logger already does.
package audit
