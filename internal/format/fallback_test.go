package format

import (
	"strings"
	"testing"
)

func TestGroupSentencesBuildsParagraphs(t *testing.T) {
	input := "One. Two. Three. Four. Five. Six. Seven. Eight. Nine."
	got := GroupSentences(input)

	paragraphs := strings.Split(got, "\n\n")
	if len(paragraphs) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d: %q", len(paragraphs), got)
	}
	if paragraphs[0] != "One. Two. Three. Four." {
		t.Fatalf("unexpected first paragraph %q", paragraphs[0])
	}
	if paragraphs[2] != "Nine." {
		t.Fatalf("unexpected final paragraph %q", paragraphs[2])
	}
}

func TestGroupSentencesKeepsEveryWord(t *testing.T) {
	input := "Alpha beta. Gamma delta! Epsilon zeta? Eta theta. Iota kappa."
	got := GroupSentences(input)

	for _, word := range strings.Fields(input) {
		if !strings.Contains(got, strings.Trim(word, ".!?")) {
			t.Fatalf("word %q lost during grouping", word)
		}
	}
}

func TestGroupSentencesNormalizesWhitespace(t *testing.T) {
	got := GroupSentences("Hello   world.\n\n  Second    sentence.")
	if strings.Contains(got, "  ") {
		t.Fatalf("whitespace not normalized: %q", got)
	}
}

func TestGroupSentencesHandlesNoPunctuation(t *testing.T) {
	input := "a run on transcript with no punctuation at all"
	if got := GroupSentences(input); got != input {
		t.Fatalf("unpunctuated text should pass through, got %q", got)
	}
}

func TestGroupSentencesEmptyInput(t *testing.T) {
	if got := GroupSentences("   "); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
