package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/docenrich/pkg/models"
)

type RunStoreSuite struct {
	suite.Suite
	store *Store
	runs  *RunStore
}

func TestRunStoreSuite(t *testing.T) {
	suite.Run(t, new(RunStoreSuite))
}

func (s *RunStoreSuite) SetupTest() {
	store, err := NewStore(context.Background(), Config{Path: ":memory:"})
	s.Require().NoError(err)
	s.store = store
	s.runs = NewRunStore(store)
}

func (s *RunStoreSuite) TearDownTest() {
	s.store.Close()
}

func (s *RunStoreSuite) record(collection, docID string, outcome models.RunOutcome, epoch int64, took time.Duration) *models.RunRecord {
	r := models.NewRunRecord(collection, docID, outcome, took)
	r.CreatedAtEpoch = epoch
	_, err := s.runs.RecordRun(context.Background(), r)
	s.Require().NoError(err)
	return r
}

func (s *RunStoreSuite) TestRecordRun_RoundTrip() {
	ctx := context.Background()
	r := models.NewRunRecord("eastgodavaris", "WP-1", models.RunOK, 1500*time.Millisecond)
	r.Chunks, r.Level, r.Clusters, r.Outliers = 9, 2, 3, 1
	sil, dbi := 0.42, 0.9
	r.SetMetrics(&sil, &dbi, nil)

	id, err := s.runs.RecordRun(ctx, r)
	s.Require().NoError(err)
	s.Equal(id, r.ID)

	got, err := s.runs.RecentRuns(ctx, "", 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(r, got[0])
	s.False(got[0].CalinskiHarabasz.Valid)
	s.Equal(int64(1500), got[0].DurationMs)
}

func (s *RunStoreSuite) TestRecordRun_Reason() {
	r := models.NewRunRecord("c", "d", models.RunFailed, 0)
	r.SetReason(errors.New("no text"))

	_, err := s.runs.RecordRun(context.Background(), r)
	s.Require().NoError(err)

	got, err := s.runs.RecentRuns(context.Background(), "c", 1)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("no text", got[0].Reason.String)
}

func (s *RunStoreSuite) TestRecordRun_Nil() {
	_, err := s.runs.RecordRun(context.Background(), nil)
	s.Error(err)
}

func (s *RunStoreSuite) TestRecentRuns_NewestFirstAndFiltered() {
	s.record("a", "1", models.RunOK, 100, 0)
	s.record("b", "2", models.RunOK, 200, 0)
	s.record("a", "3", models.RunSkipped, 300, 0)

	all, err := s.runs.RecentRuns(context.Background(), "", 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("3", all[0].DocID)
	s.Equal("1", all[2].DocID)

	onlyA, err := s.runs.RecentRuns(context.Background(), "a", 1)
	s.Require().NoError(err)
	s.Require().Len(onlyA, 1)
	s.Equal("3", onlyA[0].DocID)
}

func (s *RunStoreSuite) TestStats() {
	s.record("a", "1", models.RunOK, 1, 100*time.Millisecond)
	s.record("a", "2", models.RunFailed, 2, 300*time.Millisecond)
	s.record("a", "3", models.RunDegenerate, 3, 200*time.Millisecond)
	s.record("b", "4", models.RunSkipped, 4, 0)

	stats, err := s.runs.Stats(context.Background())
	s.Require().NoError(err)
	s.Require().Len(stats, 2)

	s.Equal(models.CollectionStats{
		Collection: "a", Total: 3, OK: 1, Failed: 1, Degenerate: 1, AvgDurationMs: 200,
	}, *stats[0])
	s.Equal(models.CollectionStats{Collection: "b", Total: 1, Skipped: 1}, *stats[1])
}

func (s *RunStoreSuite) TestStats_Empty() {
	stats, err := s.runs.Stats(context.Background())
	s.Require().NoError(err)
	s.Empty(stats)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50, 1000))
	assert.Equal(t, 10, clampLimit(10, 50, 1000))
	assert.Equal(t, 1000, clampLimit(5000, 50, 1000))
}

func TestScanRun_Error(t *testing.T) {
	_, err := scanRun(failingScanner{})
	require.Error(t, err)
}

type failingScanner struct{}

func (failingScanner) Scan(...any) error { return errors.New("scan failed") }
