// Package ws streams sandbox executions over WebSocket. Each client frame
// is a typed JSON message; console output captured during an execution is
// forwarded as out-of-band console_log frames correlated by request id.
package ws
