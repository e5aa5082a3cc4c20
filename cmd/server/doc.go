// Package main is the entry point for the script sandbox server.
//
// The server compiles untrusted author-supplied scripts, executes them
// against caller-provided contexts inside capability-limited runtimes, and
// exposes the results over a REST API and WebSocket streams.
//
// The server provides:
//   - REST API for execution, batching, validation, and cache control
//   - WebSocket streaming for results and console output
//   - Per-worker compilation caches with FIFO eviction
//   - Prometheus metrics and rate limiting
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML file via -config
//   - Defaults for development
//
// Usage:
//
//	./server -port 8090
//	./server -config config.toml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
