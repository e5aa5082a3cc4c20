// Package sandbox compiles and executes author-supplied scripts against a
// capability-limited JavaScript environment.
//
// The pipeline has three parts: a bounded FIFO compilation cache keyed by
// exact source text, a surface builder that installs the closed set of
// symbols a script may reference (the "me" context accessor, the helper
// library, author-defined extensions), and an execution host that runs the
// compiled program in a fresh goja runtime under a wall-clock deadline.
//
// Isolation is structural: a fresh runtime carries only ECMAScript builtins
// plus the installed surface, so a script referencing anything else fails
// with an ordinary ReferenceError. Scripts cannot reach the host process,
// the network, or storage because no such symbol exists in the runtime.
package sandbox
