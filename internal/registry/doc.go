// Package registry owns the authoritative collection of tasks. All reads
// return copies and all writes flow through a single mutator path,
// so callers never share mutable task state. Changes are written through to a
// SQLite store and reloaded on startup.
package registry
