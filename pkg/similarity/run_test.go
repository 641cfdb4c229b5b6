package similarity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// RunSuite covers the end-to-end selector contract.
type RunSuite struct {
	suite.Suite
	cfg Config
}

func (s *RunSuite) SetupTest() {
	s.cfg = DefaultConfig()
}

func TestRunSuite(t *testing.T) {
	suite.Run(t, new(RunSuite))
}

func (s *RunSuite) TestNearIdenticalChunksCollapse() {
	res := Run(s.cfg, []string{"a", "b", "c"}, nearIdentical)

	s.Equal(OK, res.Kind)
	s.Equal([]string{"b"}, res.Representatives)
	s.Empty(res.Outliers)
	s.Equal([]int{0, 0, 0}, res.Assignment.Labels)
	s.Equal(Degenerate, res.Evaluation.Kind, "one label leaves metrics undefined")
	s.Nil(res.Evaluation.Silhouette)
}

func (s *RunSuite) TestUnrelatedChunksAreOutliers() {
	res := Run(s.cfg, []string{"a", "b", "c"}, farApart)

	s.Equal(Degenerate, res.Kind)
	s.ErrorIs(res.Reason, ErrAllNoise)
	s.Empty(res.Representatives)
	s.Equal([]string{"OUTLIER: a", "OUTLIER: b", "OUTLIER: c"}, res.Outliers)
	s.NoError(res.Err())
}

func (s *RunSuite) TestPairWithStrays() {
	res := Run(s.cfg, []string{"A", "A'", "B", "C"}, pairWithNoise)

	s.Equal(OK, res.Kind)
	s.Equal([]string{"A"}, res.Representatives)
	s.Equal([]string{"OUTLIER: B", "OUTLIER: C"}, res.Outliers)
	s.True(res.Evaluation.IsOK())
	s.NotNil(res.Evaluation.Silhouette)
}

func (s *RunSuite) TestSeparatedGroups() {
	chunks := []string{"g1a", "g1b", "g1c", "g2a", "g2b", "g2c"}

	res := Run(s.cfg, chunks, twoGroups)

	s.Equal(OK, res.Kind)
	s.Equal([]string{"g1a", "g2a"}, res.Representatives)
	s.Empty(res.Outliers)
	s.Require().True(res.Evaluation.IsOK())
	s.Greater(*res.Evaluation.Silhouette, 0.9)
}

func (s *RunSuite) TestLabelsAlignWithChunks() {
	chunks := []string{"a", "b", "c", "d", "e", "f"}

	res := Run(s.cfg, chunks, nestedPairs)

	s.Len(res.Assignment.Labels, len(chunks))
	s.Len(res.Representatives, len(res.Assignment.Clusters()))
	s.Len(res.Outliers, res.Assignment.NoiseCount())
	for _, rep := range res.Representatives {
		s.Contains(chunks, rep)
	}
}

func (s *RunSuite) TestFloat32Embeddings() {
	rows := [][]float32{{1, 0, 0}, {0.99, 0.01, 0}, {0.98, 0.02, 0}}

	res := Run(s.cfg, []string{"a", "b", "c"}, rows)

	s.Equal(OK, res.Kind)
	s.Equal([]string{"b"}, res.Representatives)
}

func (s *RunSuite) TestDeterministic() {
	chunks := []string{"a", "b", "c", "d", "e", "f"}

	first := Run(s.cfg, chunks, nestedPairs)
	second := Run(s.cfg, chunks, nestedPairs)

	s.Equal(first.Representatives, second.Representatives)
	s.Equal(first.Outliers, second.Outliers)
	s.Equal(first.Assignment.Labels, second.Assignment.Labels)
}

func (s *RunSuite) TestFailures() {
	tests := []struct {
		name   string
		chunks []string
		rows   [][]float64
		want   error
	}{
		{name: "empty", chunks: nil, rows: nil, want: ErrEmptyInput},
		{name: "count mismatch", chunks: []string{"a"}, rows: nearIdentical, want: ErrLengthMismatch},
		{name: "ragged", chunks: []string{"a", "b"}, rows: [][]float64{{1, 2}, {1}}, want: ErrRaggedInput},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			res := Run(s.cfg, tt.chunks, tt.rows)

			s.Equal(Failed, res.Kind)
			s.ErrorIs(res.Err(), tt.want)
			s.Nil(res.Representatives)
			s.Nil(res.Outliers)
		})
	}
}

func (s *RunSuite) TestInvalidConfig() {
	s.cfg.MinClusterSize = 0

	res := Run(s.cfg, []string{"a", "b", "c"}, nearIdentical)

	s.Equal(Failed, res.Kind)
	s.ErrorIs(res.Err(), ErrInvalidConfig)
	s.Nil(res.Representatives)
}

func (s *RunSuite) TestRunContext() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := RunContext(ctx, s.cfg, []string{"a", "b", "c"}, nearIdentical)

	s.Equal(OK, res.Kind)
	s.Equal([]string{"b"}, res.Representatives)
}

func (s *RunSuite) TestRunContextCanceled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := RunContext(ctx, s.cfg, []string{"a", "b", "c"}, nearIdentical)

	s.Equal(Failed, res.Kind)
	s.ErrorIs(res.Err(), context.Canceled)
}
