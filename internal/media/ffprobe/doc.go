// Package ffprobe wraps ffprobe execution and exposes typed accessors over
// its JSON output. The extraction and segmentation stages use it to confirm
// an audio stream exists and to read authoritative durations.
package ffprobe
