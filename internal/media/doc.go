// Package media owns ffmpeg invocation for the pipeline: extracting a mono
// 16-bit PCM track from acquired containers and stream-copy cutting of WAV
// segments. The Extractor stage validates its output with ffprobe and removes
// the source container once the audio is safely on disk.
package media
