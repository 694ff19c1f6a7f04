// Package queue persists transcription jobs in SQLite and owns their
// lifecycle transitions. Workers claim jobs atomically by status, stamp
// heartbeats while processing, and stale or interrupted work is rolled back
// to the start of its stage on recovery.
package queue
