package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no tags", input: "G.O.Ms.No. 12", expected: "G.O.Ms.No. 12"},
		{name: "simple tags", input: "<p>Order</p>", expected: "Order"},
		{name: "tag with attributes", input: `<a href="x.pdf">Gazette</a>`, expected: "Gazette"},
		{name: "comparison is kept", input: "area < 5 acres", expected: "area < 5 acres"},
		{name: "comment", input: "a<!-- note -->b", expected: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripMarkup(tt.input))
		})
	}
}

func TestStripControl(t *testing.T) {
	assert.Equal(t, "a\nb\nc\td", StripControl("a\r\nb\rc\td"))
	assert.Equal(t, "ab", StripControl("a\x00\x07b"))
	assert.Equal(t, "ab", StripControl("a�b"))
}

func TestJoinHyphenated(t *testing.T) {
	assert.Equal(t, "acquisition of land", JoinHyphenated("acqui-\nsition of land"))
	assert.Equal(t, "acquisition", JoinHyphenated("acqui- \n  sition"))
	// Hyphen before an uppercase word is a real hyphen or a list.
	assert.Equal(t, "Andhra-\nPradesh", JoinHyphenated("Andhra-\nPradesh"))
}

func TestStripPageMarkers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "page of", input: "text\nPage 3 of 10\nmore", expected: "text\n\nmore"},
		{name: "bare number", input: "text\n  12 \nmore", expected: "text\n\nmore"},
		{name: "dashed", input: "text\n- 4 -\nmore", expected: "text\n\nmore"},
		{name: "number inside a line stays", input: "Section 12 applies", expected: "Section 12 applies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripPageMarkers(tt.input))
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", CollapseWhitespace("a \t  b\n\n\n\n  c"))
	assert.Equal(t, "a\nb", CollapseWhitespace("a  \n  b"))
	assert.Equal(t, "x y", CollapseWhitespace("x y"))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \n<br/> "))
	assert.False(t, IsBlank("<b>Order</b>"))
}

func TestClean(t *testing.T) {
	input := "<html><body>GOVERNMENT OF ANDHRA PRADESH\r\n\r\n\r\n\r\nThe land acqui-\nsition\x00 proceedings\n\nPage 1 of 2\n\n  are   closed.</body></html>"

	expected := "GOVERNMENT OF ANDHRA PRADESH\n\nThe land acquisition proceedings\n\nare closed."

	assert.Equal(t, expected, Clean(input))
}
