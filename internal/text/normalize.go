// Package text provides text normalization for synthesis input.
//
// The voice-cloning model is sensitive to typographic punctuation, emoji and
// irregular whitespace, so request text is folded into a plain form before it
// reaches the engine.
package text

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Regex patterns, compiled once per Normalizer.
const (
	emojiRegexPattern      = `[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{1F1E6}-\x{1F1FF}]+`
	whitespaceRegexPattern = `\s+`
	terminalRegexPattern   = `[.!?;:,'")\]}…]$`
)

// Normalizer folds request text into the plain form the engine expects.
type Normalizer struct {
	emojiPattern      *regexp.Regexp
	whitespacePattern *regexp.Regexp
	terminalPattern   *regexp.Regexp
	typographic       *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns and replacers.
func NewNormalizer() *Normalizer {
	typographic := strings.NewReplacer(
		"–", "-", // en dash
		"—", "-", // em dash
		"‑", "-", // non-breaking hyphen
		"“", `"`, // left double quote
		"”", `"`, // right double quote
		"‘", "'", // left single quote
		"’", "'", // right single quote
		"´", "'", // acute accent
		"`", "'",
		"…", "...", // ellipsis
	)

	return &Normalizer{
		emojiPattern:      regexp.MustCompile(emojiRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		terminalPattern:   regexp.MustCompile(terminalRegexPattern),
		typographic:       typographic,
	}
}

// Normalize applies NFKD normalization, folds typographic punctuation,
// strips emoji, collapses whitespace and guarantees terminal punctuation.
// The transform is pure: identical input always yields identical output.
func (n *Normalizer) Normalize(text string) string {
	normalized := norm.NFKD.String(text)
	normalized = n.typographic.Replace(normalized)
	normalized = n.emojiPattern.ReplaceAllString(normalized, "")
	normalized = n.whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)

	if normalized != "" && !n.terminalPattern.MatchString(normalized) {
		normalized += "."
	}

	return normalized
}
