package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExtractAudio transcodes the audio track of a media container into a mono
// PCM WAV at the given sample rate. Video, subtitle, and data streams are
// dropped.
func ExtractAudio(ctx context.Context, binary, src, dest string, sampleRate int) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(src) == "" {
		return errors.New("extract audio: empty source path")
	}
	if strings.TrimSpace(dest) == "" {
		return errors.New("extract audio: empty destination path")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg audio extraction: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// CutSegment copies a time window out of a WAV file without re-encoding.
func CutSegment(ctx context.Context, binary, src, dest string, offsetSeconds, durationSeconds float64) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(src) == "" {
		return errors.New("cut segment: empty source path")
	}
	if strings.TrimSpace(dest) == "" {
		return errors.New("cut segment: empty destination path")
	}
	if durationSeconds <= 0 {
		return errors.New("cut segment: duration must be positive")
	}
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(offsetSeconds),
		"-t", formatSeconds(durationSeconds),
		"-i", src,
		"-c", "copy",
		dest,
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg segment cut: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
