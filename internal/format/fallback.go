package format

import (
	"regexp"
	"strings"
)

const sentencesPerParagraph = 4

var (
	spaceRun    = regexp.MustCompile(`[ \t\x{00A0}]+`)
	newlineRun  = regexp.MustCompile(`\s*\n\s*`)
	sentenceEnd = regexp.MustCompile(`([.!?])\s+`)
)

// GroupSentences is the local fallback formatter: it normalizes
// whitespace, splits the text on sentence-ending punctuation, and groups
// a few sentences per paragraph.
func GroupSentences(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n")

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return text
	}

	var paragraphs []string
	var paragraph []string
	for _, sentence := range sentences {
		paragraph = append(paragraph, sentence)
		if len(paragraph) >= sentencesPerParagraph {
			paragraphs = append(paragraphs, strings.Join(paragraph, " "))
			paragraph = nil
		}
	}
	if len(paragraph) > 0 {
		paragraphs = append(paragraphs, strings.Join(paragraph, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}

func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}
