package ffprobe

import "testing"

func TestResultAccessors(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{Index: 0, CodecType: "audio", CodecName: "pcm_s16le", SampleRate: "16000", Channels: 1, Duration: "12.5"},
		},
		Format: Format{Duration: "12.480000", FormatName: "wav"},
	}

	if count := result.AudioStreamCount(); count != 1 {
		t.Fatalf("AudioStreamCount = %d", count)
	}
	if duration := result.DurationSeconds(); duration != 12.48 {
		t.Fatalf("DurationSeconds = %v", duration)
	}
	if rate := result.SampleRate(); rate != 16000 {
		t.Fatalf("SampleRate = %d", rate)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "42.25"}},
	}
	if duration := result.DurationSeconds(); duration != 42.25 {
		t.Fatalf("DurationSeconds = %v", duration)
	}
}

func TestParseFloatRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "N/A", "-3", "abc"} {
		if parsed := parseFloat(value); parsed != 0 {
			t.Fatalf("parseFloat(%q) = %v", value, parsed)
		}
	}
}
