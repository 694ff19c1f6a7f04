// Package workflow advances queued transcription jobs through the configured
// processing stages.
//
// The Manager runs a pool of interchangeable workers. Each worker claims the
// oldest claimable job in any stage-start status, runs the matching handler
// (acquisition, extraction, segmentation, transcription, formatting,
// delivery), and persists the resulting transition. Claims are atomic, so a
// stage execution has exactly one owner even with several workers polling the
// same queue.
//
// The manager also stamps heartbeats while a stage runs, rolls interrupted or
// stale work back to its stage start, honors cooperative cancellation between
// stages, cleans up terminal workspaces, and emits completion and failure
// notifications.
package workflow
