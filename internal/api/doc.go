// Package api defines the transport DTOs shared by the daemon's HTTP
// status endpoints and the IPC control socket, plus converters from the
// internal queue and workflow types.
package api
