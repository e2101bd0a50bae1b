// Package normalizer cleans raw PDF text before chunking and extraction.
package normalizer

import (
	"regexp"
	"strings"
)

var (
	invisibleRe = regexp.MustCompile("[\u200b\u200c\u200d\u2060\ufeff\u00ad]")
	spaceRunRe  = regexp.MustCompile(`[ \t\f\v\x{00a0}\x{2009}\x{202f}]+`)
	hyphenRe    = regexp.MustCompile(`(\p{L})-\n(\p{L})`)
	schemeRe    = regexp.MustCompile(`(?i)\b(https?) ?: ?/ ?/ ?`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)

	unicodeHyphens = strings.NewReplacer("\u2010", "-", "\u2011", "-")
)

// Normalize de-hyphenates words wrapped across lines, repairs split URL
// schemes, collapses whitespace runs and reduces blank-line runs to a single
// paragraph break ("\n\n"). Single newlines inside a paragraph are kept so
// that headings stay on their own line. The result is idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	t := strings.ReplaceAll(raw, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	t = invisibleRe.ReplaceAllString(t, "")
	t = unicodeHyphens.Replace(t)
	t = spaceRunRe.ReplaceAllString(t, " ")

	lines := strings.Split(t, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	t = strings.Join(lines, "\n")

	// single-letter fragments ("a-\nb-\nc") need more than one pass
	for {
		joined := hyphenRe.ReplaceAllString(t, "$1$2")
		if joined == t {
			break
		}
		t = joined
	}

	t = schemeRe.ReplaceAllString(t, "$1://")
	t = blankRunRe.ReplaceAllString(t, "\n\n")
	return strings.Trim(t, "\n ")
}

// Paragraphs splits normalized text on paragraph breaks and drops empty blocks.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Flatten joins the lines of a paragraph into a single line.
func Flatten(paragraph string) string {
	return strings.Join(strings.Fields(paragraph), " ")
}
