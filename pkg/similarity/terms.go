// Package similarity provides density-based clustering of chunk embeddings,
// representative selection, clustering quality metrics and term-level text
// similarity.
package similarity

import (
	"strings"
)

// DedupeTerms collapses near-duplicate phrases and returns one representative per group.
// Uses Jaccard similarity on the terms of each phrase.
// Phrases should be sorted by preference - the first one in each group is kept.
func DedupeTerms(phrases []string, similarityThreshold float64) []string {
	if len(phrases) <= 1 {
		return phrases
	}

	termSets := make([]map[string]bool, len(phrases))
	for i, p := range phrases {
		termSets[i] = TermSet(p)
	}

	grouped := make([]bool, len(phrases))
	result := make([]string, 0, len(phrases))

	for i := 0; i < len(phrases); i++ {
		if grouped[i] {
			continue
		}

		// This phrase represents its group
		result = append(result, phrases[i])
		grouped[i] = true

		for j := i + 1; j < len(phrases); j++ {
			if grouped[j] {
				continue
			}
			// Phrases without terms (numbers, punctuation) only match exactly
			if len(termSets[i]) == 0 || len(termSets[j]) == 0 {
				if strings.EqualFold(strings.TrimSpace(phrases[i]), strings.TrimSpace(phrases[j])) {
					grouped[j] = true
				}
				continue
			}
			if JaccardSimilarity(termSets[i], termSets[j]) >= similarityThreshold {
				grouped[j] = true
			}
		}
	}

	return result
}

// IsSimilarToAny checks if a phrase is similar to any existing phrase.
// Returns true if similarity to any existing phrase reaches the threshold.
func IsSimilarToAny(phrase string, existing []string, similarityThreshold float64) bool {
	if len(existing) == 0 {
		return false
	}

	terms := TermSet(phrase)
	if len(terms) == 0 {
		return false
	}

	for _, e := range existing {
		if JaccardSimilarity(terms, TermSet(e)) >= similarityThreshold {
			return true
		}
	}

	return false
}

// TermSet extracts meaningful terms from text for similarity comparison.
func TermSet(text string) map[string]bool {
	terms := make(map[string]bool)
	addTerms(terms, text)
	return terms
}

// stopWords are skipped by addTerms.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"this": true, "that": true, "these": true, "those": true,
	"and": true, "or": true, "but": true, "if": true, "then": true,
	"for": true, "from": true, "with": true, "about": true, "into": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "by": true,
	"it": true, "its": true, "which": true, "who": true, "what": true,
	"when": true, "where": true, "how": true, "why": true,
	"under": true, "said": true, "such": true, "any": true,
}

// addTerms tokenizes text and adds meaningful terms to the set.
func addTerms(terms map[string]bool, text string) {
	// Simple tokenization: split on non-alphanumeric, filter short words.
	// Section and article numbers are kept even when short ("21", "338").
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})

	for _, word := range words {
		if stopWords[word] {
			continue
		}
		if len(word) >= 3 || isNumber(word) {
			terms[word] = true
		}
	}
}

func isNumber(word string) bool {
	for _, r := range word {
		if r < '0' || r > '9' {
			return false
		}
	}
	return word != ""
}

// JaccardSimilarity calculates the Jaccard similarity between two term sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func JaccardSimilarity(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
