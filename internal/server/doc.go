// Package server wires configuration, the worker pool, HTTP and WebSocket
// handlers, and middleware into one runnable service.
package server
