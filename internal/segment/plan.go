package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Segment is one contiguous window of the extracted audio, measured in whole
// samples at the configured rate so windows land exactly on sample
// boundaries.
type Segment struct {
	Index       int    `json:"index"`
	StartSample int64  `json:"start_sample"`
	NumSamples  int64  `json:"num_samples"`
	SampleRate  int    `json:"sample_rate"`
	Path        string `json:"path"`
}

// OffsetSeconds returns the segment start converted back to seconds.
func (s Segment) OffsetSeconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.StartSample) / float64(s.SampleRate)
}

// DurationSeconds returns the segment length converted back to seconds.
func (s Segment) DurationSeconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.NumSamples) / float64(s.SampleRate)
}

// Plan divides a recording into contiguous sample-aligned segments of at
// most segmentSeconds each. Segments cover the full recording with no gaps
// or overlap; the final segment absorbs the remainder and is never empty.
// The same inputs always produce the same plan.
func Plan(durationSeconds float64, segmentSeconds, sampleRate int) ([]Segment, error) {
	if durationSeconds <= 0 {
		return nil, errors.New("segment plan: duration must be positive")
	}
	if segmentSeconds <= 0 {
		return nil, errors.New("segment plan: segment length must be positive")
	}
	if sampleRate <= 0 {
		return nil, errors.New("segment plan: sample rate must be positive")
	}

	totalSamples := int64(math.Round(durationSeconds * float64(sampleRate)))
	if totalSamples < 1 {
		totalSamples = 1
	}
	window := int64(segmentSeconds) * int64(sampleRate)

	count := int((totalSamples + window - 1) / window)
	if count < 1 {
		count = 1
	}

	segments := make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * window
		length := window
		if remaining := totalSamples - start; remaining < length {
			length = remaining
		}
		segments = append(segments, Segment{
			Index:       i,
			StartSample: start,
			NumSamples:  length,
			SampleRate:  sampleRate,
		})
	}
	return segments, nil
}

// EncodePlan serializes a segment plan for queue persistence.
func EncodePlan(segments []Segment) (string, error) {
	data, err := json.Marshal(segments)
	if err != nil {
		return "", fmt.Errorf("encode segment plan: %w", err)
	}
	return string(data), nil
}

// DecodePlan parses a persisted segment plan.
func DecodePlan(raw string) ([]Segment, error) {
	if raw == "" {
		return nil, errors.New("segment plan is empty")
	}
	var segments []Segment
	if err := json.Unmarshal([]byte(raw), &segments); err != nil {
		return nil, fmt.Errorf("decode segment plan: %w", err)
	}
	if len(segments) == 0 {
		return nil, errors.New("segment plan has no segments")
	}
	return segments, nil
}
