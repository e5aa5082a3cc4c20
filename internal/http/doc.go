// Package http exposes the sandbox over a JSON API. Script failures are
// returned as data with a 200 status; non-200 statuses are reserved for
// malformed requests and service-level failures.
package http
