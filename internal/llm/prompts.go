package llm

import (
	"fmt"
	"strings"
)

// Term budgets for per-passage keyword prompts. Long documents contribute
// fewer terms per passage because they have more passages.
const (
	ShortDocumentTerms = 5
	LongDocumentTerms  = 2
)

const analystRole = "You are an experienced legal analyst with a deep understanding of Indian law."

const keywordRole = "You are an expert Indian legal analyst with extensive experience in legal document review and keyword extraction."

// BuildSummaryPrompt asks for a detailed multi-paragraph summary of one
// representative passage.
func BuildSummaryPrompt(passage string) string {
	var sb strings.Builder
	sb.WriteString(analystRole)
	sb.WriteString(" Read the passage from an Indian legal document enclosed in triple backticks and write a comprehensive summary of its key points, implications and nuances.\n\n")
	sb.WriteString("First read the whole passage to understand its objective and purpose. Then write a summary that:\n")
	sb.WriteString("1. Is at least three paragraphs long.\n")
	sb.WriteString("2. Explains the salient features discussed in the passage.\n")
	sb.WriteString("3. Highlights significant legal principles, rules or legislation.\n")
	sb.WriteString("4. Addresses potential implications or applications of the passage.\n")
	sb.WriteString("5. Backs each point with the associated law or legislation when the text mentions it.\n")
	sb.WriteString("6. Gives a precise and thorough overview of the content and context.\n\n")
	writePassage(&sb, "Passage", passage)
	sb.WriteString("FULL SUMMARY:\n")
	return sb.String()
}

// BuildOutlierPrompt asks for a short summary of a passage that did not
// belong to any cluster.
func BuildOutlierPrompt(passage string) string {
	var sb strings.Builder
	sb.WriteString(analystRole)
	sb.WriteString(" Read the passage from an Indian legal document enclosed in triple backticks and write a concise summary of its essential points, without clutter.\n\n")
	sb.WriteString("Your summary should:\n")
	sb.WriteString("1. Be one to two paragraphs long.\n")
	sb.WriteString("2. Explain the main points of the passage.\n")
	sb.WriteString("3. Highlight significant legal principles or rules.\n")
	sb.WriteString("4. Address potential implications or applications.\n")
	sb.WriteString("5. Back each point with the associated law or legislation when the text mentions it.\n\n")
	writePassage(&sb, "Passage", passage)
	sb.WriteString("CONCISE SUMMARY:\n")
	return sb.String()
}

// BuildCombinePrompt merges passage summaries and outlier summaries into
// one document summary.
func BuildCombinePrompt(summaries, outliers string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert legal analyst specializing in Indian law. You are given summaries derived from one Indian legal document, enclosed in triple backticks: summaries of its most important passages and summaries of outlying passages. Synthesize them into a single cohesive and detailed summary of the whole document.\n\n")
	sb.WriteString("Your final summary should:\n")
	sb.WriteString("- Integrate all key points into one narrative.\n")
	sb.WriteString("- Explain the main legal principles, rules and implications.\n")
	sb.WriteString("- Highlight recurring themes and significant details.\n")
	sb.WriteString("- Back each point with the associated law or legislation when it is mentioned.\n")
	sb.WriteString("- Avoid repeating information.\n")
	sb.WriteString("- End with exactly one conclusion.\n\n")
	writePassage(&sb, "Summaries of the most important passages", summaries)
	writePassage(&sb, "Summaries of outlying passages", outliers)
	sb.WriteString("VERBOSE SUMMARY:\n")
	return sb.String()
}

// BuildKeywordPrompt asks for a JSON list of legal keywords for one passage.
// Passages of long documents ask for fewer terms.
func BuildKeywordPrompt(passage string, longDocument bool) string {
	limit := ShortDocumentTerms
	if longDocument {
		limit = LongDocumentTerms
	}

	var sb strings.Builder
	sb.WriteString(keywordRole)
	sb.WriteString(" Extract the most relevant keywords from the passage of an Indian legal document enclosed in triple backticks. Focus on legal topics, statutes, case law and legal principles.\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("1. Read the whole passage before choosing terms.\n")
	sb.WriteString("2. Prefer terms with a legal meaning; a generic term must be paired with a legal one.\n")
	sb.WriteString(fmt.Sprintf("3. Return a list of up to %d unique terms, each in double quotes, like [\"term one\", \"term two\"].\n", limit))
	sb.WriteString("4. Output only the list. No introduction, no explanation.\n\n")
	writePassage(&sb, "Passage", passage)
	sb.WriteString("Extracted Keywords:\n")
	return sb.String()
}

// BuildRefineMessages asks the model to de-duplicate a merged keyword list.
func BuildRefineMessages(keywords []string) []Message {
	var sb strings.Builder
	sb.WriteString(keywordRole)
	sb.WriteString(" You are given keywords extracted from different passages of one legal document. Refine the list:\n")
	sb.WriteString("1. Remove redundant or repetitive terms and keep the most specific legal terms.\n")
	sb.WriteString("2. Keep distinct legal references apart, for example \"Article 338\" and \"Article 366\".\n")
	sb.WriteString("3. For near-identical terms such as \"The Gazette of India\" and \"THE GAZETTE OF INDIA EXTRAORDINARY\" keep one.\n")
	sb.WriteString("4. Do not add terms that are not in the input.\n")
	sb.WriteString("5. Return only a list of double-quoted terms and nothing else.\n")

	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = fmt.Sprintf("%q", k)
	}

	return []Message{
		{Role: RoleSystem, Content: sb.String()},
		{Role: RoleUser, Content: "[" + strings.Join(quoted, ", ") + "]"},
	}
}

func writePassage(sb *strings.Builder, label, text string) {
	sb.WriteString(label)
	sb.WriteString(":\n```")
	sb.WriteString(text)
	sb.WriteString("```\n\n")
}

// preambles are openers small models put in front of the requested output.
var preambles = []string{
	"here is the summary",
	"here is a summary",
	"here's the summary",
	"here's a summary",
	"here are the keywords",
	"here is the list",
	"here is the refined list",
	"sure,",
	"sure!",
	"certainly",
}

// StripPreamble removes a leading "Here is the summary:" style line.
func StripPreamble(reply string) string {
	reply = strings.TrimSpace(reply)
	first, rest, found := strings.Cut(reply, "\n")
	lower := strings.ToLower(strings.TrimSpace(first))
	for _, p := range preambles {
		if strings.HasPrefix(lower, p) {
			if !found {
				// A one-line reply with a preamble keeps what follows the colon.
				if _, after, ok := strings.Cut(first, ":"); ok {
					return strings.TrimSpace(after)
				}
				return ""
			}
			return strings.TrimSpace(rest)
		}
	}
	return reply
}

// refusals mark replies that carry no content about the document.
var refusals = []string{
	"i cannot",
	"i can't",
	"i am unable",
	"i'm unable",
	"as an ai",
	"no passage was provided",
	"the passage is empty",
	"please provide the passage",
}

// HasMeaningfulContent reports whether a reply is worth keeping.
func HasMeaningfulContent(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	if len(trimmed) < 20 {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, r := range refusals {
		if strings.HasPrefix(lower, r) {
			return false
		}
	}
	return true
}
