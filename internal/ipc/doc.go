// Package ipc carries the control protocol between the quill CLI and the
// daemon. The daemon listens on a Unix socket and serves JSON-RPC; the
// client side dials with a short timeout so commands fail fast when no
// daemon is running.
//
// Request and response types here are the wire contract. Queue rows and
// workflow status are converted into these lightweight shapes before they
// cross the socket, so internal model changes stay invisible to older
// clients as long as the DTOs keep their fields.
package ipc
