// Package format runs the optional readability pass over raw
// transcripts. A chat model adds punctuation and paragraph breaks; a
// local sentence-grouping fallback keeps delivery readable when the
// model is unavailable or mangles the text.
package format
