package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type RRFSuite struct {
	suite.Suite
}

func TestRRFSuite(t *testing.T) {
	suite.Run(t, new(RRFSuite))
}

func expectedRRFContribution(listIndex int, rank int) float64 {
	weight := 1.0
	if listIndex < 2 {
		weight = 2.0
	}

	rankBonus := 0.0
	if rank == 0 {
		rankBonus = 0.05
	} else if rank <= 2 {
		rankBonus = 0.02
	}

	return weight/(60.0+float64(rank)+1.0) + rankBonus
}

func findResult(result []ScoredID, id int64) (ScoredID, bool) {
	for _, item := range result {
		if item.ID == id {
			return item, true
		}
	}
	return ScoredID{}, false
}

func (s *RRFSuite) TestRRF_EmptyInput_ReturnsEmptyResult() {
	assert.Empty(s.T(), RRF())
}

func (s *RRFSuite) TestRRF_SingleList_ContributionsAndSorting() {
	result := RRF([]ScoredID{
		{Source: SourceContent, ID: 1},
		{Source: SourceContent, ID: 2},
	})

	assert.Len(s.T(), result, 2)
	assert.Greater(s.T(), result[0].Score, result[1].Score)

	first, ok := findResult(result, 1)
	assert.True(s.T(), ok)
	assert.InDelta(s.T(), expectedRRFContribution(0, 0), first.Score, 1e-12)

	second, ok := findResult(result, 2)
	assert.True(s.T(), ok)
	assert.InDelta(s.T(), expectedRRFContribution(0, 1), second.Score, 1e-12)
}

func (s *RRFSuite) TestRRF_TwoLists_DeduplicateByDocumentAndAccumulateScore() {
	result := RRF(
		[]ScoredID{
			{Source: SourceContent, ID: 1},
			{Source: SourceContent, ID: 2},
		},
		[]ScoredID{
			{Source: SourceSummary, ID: 1},
			{Source: SourceSummary, ID: 3},
		},
	)

	assert.Len(s.T(), result, 3)

	doc1, ok := findResult(result, 1)
	assert.True(s.T(), ok)
	assert.InDelta(s.T(), expectedRRFContribution(0, 0)+expectedRRFContribution(1, 0), doc1.Score, 1e-12)
	assert.Equal(s.T(), SourceContent, doc1.Source)

	doc2, ok := findResult(result, 2)
	assert.True(s.T(), ok)
	assert.InDelta(s.T(), expectedRRFContribution(0, 1), doc2.Score, 1e-12)

	doc3, ok := findResult(result, 3)
	assert.True(s.T(), ok)
	assert.InDelta(s.T(), expectedRRFContribution(1, 1), doc3.Score, 1e-12)
	assert.Equal(s.T(), SourceSummary, doc3.Source)
}

func (s *RRFSuite) TestRRF_ThirdList_UsesSingleWeight() {
	result := RRF(
		[]ScoredID{{Source: SourceContent, ID: 1}},
		[]ScoredID{{Source: SourceSummary, ID: 2}},
		[]ScoredID{{Source: SourceKeyword, ID: 1}},
	)

	assert.Len(s.T(), result, 2)

	doc1, ok := findResult(result, 1)
	assert.True(s.T(), ok)
	assert.InDelta(s.T(),
		expectedRRFContribution(0, 0)+expectedRRFContribution(2, 0),
		doc1.Score,
		1e-12,
	)
}

func (s *RRFSuite) TestRRF_RankBonusByRank() {
	result := RRF([]ScoredID{
		{Source: SourceKeyword, ID: 1},
		{Source: SourceKeyword, ID: 2},
		{Source: SourceKeyword, ID: 3},
		{Source: SourceKeyword, ID: 4},
	})

	tests := []struct {
		name     string
		rank     int
		expected float64
	}{
		{name: "rank 0", rank: 0, expected: expectedRRFContribution(0, 0)},
		{name: "rank 1", rank: 1, expected: expectedRRFContribution(0, 1)},
		{name: "rank 2", rank: 2, expected: expectedRRFContribution(0, 2)},
		{name: "rank 3", rank: 3, expected: expectedRRFContribution(0, 3)},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			item, found := findResult(result, int64(tt.rank+1))
			assert.True(s.T(), found)
			assert.InDelta(s.T(), tt.expected, item.Score, 1e-12)
		})
	}

	for i := 0; i < len(result)-1; i++ {
		assert.Greater(s.T(), result[i].Score, result[i+1].Score)
	}
}
