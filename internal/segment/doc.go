// Package segment plans and cuts transcription-sized windows out of the
// extracted audio. Planning is pure arithmetic over the recording duration;
// cutting is ffmpeg stream copy, skipped entirely when a recording fits in a
// single window.
package segment
