package segment

import (
	"math"
	"testing"
)

const testRate = 16000

func TestPlanCoversDurationWithoutGaps(t *testing.T) {
	cases := []struct {
		name      string
		duration  float64
		window    int
		wantCount int
		wantLast  int64
	}{
		{name: "exact multiple", duration: 3600, window: 1800, wantCount: 2, wantLast: 1800 * testRate},
		{name: "remainder", duration: 4000, window: 1800, wantCount: 3, wantLast: 400 * testRate},
		{name: "single window", duration: 120, window: 1800, wantCount: 1, wantLast: 120 * testRate},
		{name: "just over", duration: 1800.5, window: 1800, wantCount: 2, wantLast: testRate / 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segments, err := Plan(tc.duration, tc.window, testRate)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if len(segments) != tc.wantCount {
				t.Fatalf("expected %d segments, got %d", tc.wantCount, len(segments))
			}

			var covered int64
			for i, seg := range segments {
				if seg.Index != i {
					t.Fatalf("segment %d has index %d", i, seg.Index)
				}
				if seg.StartSample != covered {
					t.Fatalf("segment %d starts at %d, expected %d", i, seg.StartSample, covered)
				}
				if seg.NumSamples <= 0 {
					t.Fatalf("segment %d is empty", i)
				}
				covered += seg.NumSamples
			}

			totalSamples := int64(math.Round(tc.duration * testRate))
			if covered != totalSamples {
				t.Fatalf("segments cover %d samples, expected %d", covered, totalSamples)
			}

			last := segments[len(segments)-1]
			if last.NumSamples != tc.wantLast {
				t.Fatalf("last segment has %d samples, expected %d", last.NumSamples, tc.wantLast)
			}
		})
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	first, err := Plan(5432.1, 1800, testRate)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	second, err := Plan(5432.1, 1800, testRate)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("plans differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("segment %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSegmentSecondsConversion(t *testing.T) {
	seg := Segment{StartSample: 28800000, NumSamples: 8000, SampleRate: testRate}
	if offset := seg.OffsetSeconds(); offset != 1800 {
		t.Fatalf("OffsetSeconds = %v", offset)
	}
	if duration := seg.DurationSeconds(); duration != 0.5 {
		t.Fatalf("DurationSeconds = %v", duration)
	}
}

func TestPlanRejectsInvalidInput(t *testing.T) {
	if _, err := Plan(0, 1800, testRate); err == nil {
		t.Fatal("expected error for zero duration")
	}
	if _, err := Plan(-5, 1800, testRate); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := Plan(100, 0, testRate); err == nil {
		t.Fatal("expected error for zero window")
	}
	if _, err := Plan(100, 1800, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestPlanRoundTripsThroughEncoding(t *testing.T) {
	segments, err := Plan(4000, 1800, testRate)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	segments[0].Path = "/tmp/segment-0000.wav"

	encoded, err := EncodePlan(segments)
	if err != nil {
		t.Fatalf("EncodePlan: %v", err)
	}
	decoded, err := DecodePlan(encoded)
	if err != nil {
		t.Fatalf("DecodePlan: %v", err)
	}
	if len(decoded) != len(segments) {
		t.Fatalf("decoded %d segments, expected %d", len(decoded), len(segments))
	}
	if decoded[0].Path != "/tmp/segment-0000.wav" {
		t.Fatalf("path not preserved: %q", decoded[0].Path)
	}
}

func TestDecodePlanRejectsEmpty(t *testing.T) {
	if _, err := DecodePlan(""); err == nil {
		t.Fatal("expected error for empty plan")
	}
	if _, err := DecodePlan("[]"); err == nil {
		t.Fatal("expected error for zero-length plan")
	}
}
