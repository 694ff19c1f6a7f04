// Package transcribe converts planned audio segments into text.
//
// Segments run concurrently under a bounded semaphore against the
// speech-to-text backend, with per-segment retries for transient
// failures. Results keep their plan order regardless of completion
// order and are joined into a single raw transcript file.
package transcribe
