// Package worker runs sandbox executions off the caller's control path.
//
// A Worker is a single goroutine owning its own compilation cache, metrics,
// and execution host. Callers communicate with it by message passing:
// a Request in, exactly one Response out, correlated by id. Only payload
// types cross the boundary; compiled programs and capability surfaces never
// do. Console output is emitted as out-of-band CONSOLE_LOG notifications in
// addition to the response's console field.
//
// A Pool routes requests round-robin across several workers, each with an
// independent cache/metrics pair, merges metrics on introspection, and
// respawns a worker whose loop dies.
package worker
