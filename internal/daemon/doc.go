// Package daemon coordinates the long-running Quill process.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon exposes job submission and queue maintenance helpers, serves a
// read-only HTTP status API when configured, and emits dependency health
// summaries.
//
// Keep orchestration logic here: individual pipeline stages should live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
