package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSummaryPrompt(t *testing.T) {
	p := BuildSummaryPrompt("Section 144 CrPC order")

	assert.Contains(t, p, "```Section 144 CrPC order```")
	assert.Contains(t, p, "three paragraphs")
	assert.Contains(t, p, "FULL SUMMARY:")
}

func TestBuildOutlierPrompt(t *testing.T) {
	p := BuildOutlierPrompt("OUTLIER: annexure")

	assert.Contains(t, p, "```OUTLIER: annexure```")
	assert.Contains(t, p, "CONCISE SUMMARY:")
}

func TestBuildCombinePrompt(t *testing.T) {
	p := BuildCombinePrompt("first\n\nsecond", "")

	assert.Contains(t, p, "Summaries of the most important passages:\n```first\n\nsecond```")
	assert.Contains(t, p, "Summaries of outlying passages:\n``````")
	assert.Contains(t, p, "VERBOSE SUMMARY:")
}

func TestBuildKeywordPrompt(t *testing.T) {
	short := BuildKeywordPrompt("text", false)
	long := BuildKeywordPrompt("text", true)

	assert.Contains(t, short, "up to 5 unique terms")
	assert.Contains(t, long, "up to 2 unique terms")
	assert.Contains(t, long, "```text```")
}

func TestBuildRefineMessages(t *testing.T) {
	msgs := BuildRefineMessages([]string{"Article 338", `Quoted "term"`})

	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, `["Article 338", "Quoted \"term\""]`, msgs[1].Content)
}

func TestStripPreamble(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{name: "plain", reply: "The order quashes the notice.", want: "The order quashes the notice."},
		{name: "preamble line", reply: "Here is the summary of the passage:\n\nThe order quashes the notice.", want: "The order quashes the notice."},
		{name: "inline list", reply: `Here are the keywords: ["Article 21"]`, want: `["Article 21"]`},
		{name: "preamble only", reply: "Sure!", want: ""},
		{name: "whitespace", reply: "  \n text \n", want: "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripPreamble(tt.reply))
		})
	}
}

func TestHasMeaningfulContent(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected bool
	}{
		{name: "summary", reply: "The High Court set aside the eviction order under Section 10.", expected: true},
		{name: "too short", reply: "OK", expected: false},
		{name: "empty", reply: "   ", expected: false},
		{name: "refusal", reply: "I cannot summarize this passage because it is empty.", expected: false},
		{name: "missing passage", reply: "Please provide the passage you would like summarized.", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasMeaningfulContent(tt.reply))
		})
	}
}
