// Package textclean normalizes text extracted from PDFs and office files
// before it is tokenized.
package textclean

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// markupRegex matches HTML/XML tags left over from scraped pages.
	markupRegex = regexp.MustCompile(`(?s)<[a-zA-Z/!][^<>]*>`)

	// hyphenBreakRegex matches a word broken across lines with a hyphen.
	hyphenBreakRegex = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{Ll})`)

	// pageMarkerRegex matches lines that hold only a page number marker.
	pageMarkerRegex = regexp.MustCompile(`(?im)^[ \t]*(?:page[ \t]+\d+(?:[ \t]+of[ \t]+\d+)?|-[ \t]*\d+[ \t]*-|\d+)[ \t]*$`)

	// spaceRunRegex matches runs of horizontal whitespace.
	spaceRunRegex = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)

	// blankLinesRegex matches three or more line breaks.
	blankLinesRegex = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// StripMarkup removes HTML/XML tags.
func StripMarkup(text string) string {
	return markupRegex.ReplaceAllString(text, "")
}

// StripControl drops control characters other than newlines and tabs and
// normalizes line endings to \n.
func StripControl(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == unicode.ReplacementChar, unicode.IsControl(r):
			return -1
		}
		return r
	}, text)
}

// JoinHyphenated rejoins words split across lines by end-of-line hyphens.
func JoinHyphenated(text string) string {
	return hyphenBreakRegex.ReplaceAllString(text, "$1$2")
}

// StripPageMarkers removes lines that only carry page numbers.
func StripPageMarkers(text string) string {
	return pageMarkerRegex.ReplaceAllString(text, "")
}

// CollapseWhitespace squeezes horizontal whitespace and keeps at most one
// blank line between paragraphs.
func CollapseWhitespace(text string) string {
	text = spaceRunRegex.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	return blankLinesRegex.ReplaceAllString(text, "\n\n")
}

// IsBlank reports whether nothing but whitespace and markup remains.
func IsBlank(text string) bool {
	return strings.TrimSpace(StripMarkup(text)) == ""
}

// Clean performs full normalization.
// This is the main function to use on extracted text.
func Clean(text string) string {
	text = StripControl(text)
	text = StripMarkup(text)
	text = JoinHyphenated(text)
	text = StripPageMarkers(text)
	text = CollapseWhitespace(text)
	return strings.TrimSpace(text)
}
