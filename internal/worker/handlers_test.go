package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/thebtf/docenrich/internal/config"
	"github.com/thebtf/docenrich/internal/pipeline"
	"github.com/thebtf/docenrich/internal/search"
	"github.com/thebtf/docenrich/pkg/models"
	"github.com/thebtf/docenrich/pkg/similarity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errNotFound = errors.New("not found")

type fakeDocuments struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	created []*models.Document
}

func (f *fakeDocuments) GetDocument(_ context.Context, collection, externalID string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[collection+"/"+externalID]; ok {
		return d, nil
	}
	return nil, errNotFound
}

func (f *fakeDocuments) CreateDocument(_ context.Context, doc *models.Document) (*models.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := doc.Collection + "/" + doc.ExternalID
	if d, ok := f.docs[key]; ok {
		return d, false, nil
	}
	doc.ID = int64(len(f.docs) + 1)
	f.docs[key] = doc
	f.created = append(f.created, doc)
	return doc, true, nil
}

type fakeJournal struct {
	collection string
	limit      int
}

func (f *fakeJournal) RecentRuns(_ context.Context, collection string, limit int) ([]*models.RunRecord, error) {
	f.collection, f.limit = collection, limit
	return []*models.RunRecord{models.NewRunRecord("sc", "ext-1", models.RunOK, time.Second)}, nil
}

func (f *fakeJournal) Stats(context.Context) ([]*models.CollectionStats, error) {
	return []*models.CollectionStats{{Collection: "sc", Total: 3, OK: 2, Failed: 1}}, nil
}

type fakeSearcher struct{ params search.SearchParams }

func (f *fakeSearcher) Search(_ context.Context, p search.SearchParams) (*search.SearchResponse, error) {
	f.params = p
	if strings.TrimSpace(p.Query) == "" {
		return nil, search.ErrEmptyQuery
	}
	return &search.SearchResponse{
		Query:      p.Query,
		Results:    []search.SearchResult{{DocID: 1, Title: "Order", Score: 0.5}},
		TotalCount: 1,
	}, nil
}

type fakeProcessor struct {
	mu          sync.Mutex
	processed   []*models.Document
	collections []string
	release     chan struct{}
	fail        bool
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, collection string, doc *models.Document) (*pipeline.DocumentResult, error) {
	f.mu.Lock()
	f.processed = append(f.processed, doc)
	f.mu.Unlock()
	res := &pipeline.DocumentResult{Collection: collection, DocID: doc.ID, ExternalID: doc.ExternalID, Outcome: models.RunOK}
	if f.fail {
		res.Outcome = models.RunFailed
		return res, errors.New("extract: no text")
	}
	return res, nil
}

func (f *fakeProcessor) ProcessCollection(ctx context.Context, collection string, _ pipeline.BatchOptions) (*pipeline.CollectionResult, error) {
	f.mu.Lock()
	f.collections = append(f.collections, collection)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &pipeline.CollectionResult{Collection: collection}, nil
}

func (f *fakeProcessor) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

type testEnv struct {
	svc       *Service
	docs      *fakeDocuments
	journal   *fakeJournal
	searcher  *fakeSearcher
	processor *fakeProcessor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		docs:      &fakeDocuments{docs: map[string]*models.Document{}},
		journal:   &fakeJournal{},
		searcher:  &fakeSearcher{},
		processor: &fakeProcessor{},
	}
	cfg := config.Default()
	env.svc = New("test-version", cfg, Deps{
		Documents:  env.docs,
		Journal:    env.journal,
		Searcher:   env.searcher,
		Processor:  env.processor,
		IsNotFound: func(err error) bool { return errors.Is(err, errNotFound) },
	})
	env.svc.ready.Store(true)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.svc.Shutdown(ctx)
	})
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.svc.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandleHealth_ReturnsVersion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", resp["status"])
	assert.Equal(t, "test-version", resp["version"])
}

func TestHandleVersion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/version", "")

	assert.Equal(t, "test-version", decode[map[string]string](t, rec)["version"])
}

func TestHandleReady(t *testing.T) {
	env := newTestEnv(t)

	env.svc.ready.Store(false)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/ready", "").Code)

	env.svc.ready.Store(true)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/ready", "").Code)
}

func TestRequireReadyMiddleware(t *testing.T) {
	env := newTestEnv(t)
	env.svc.ready.Store(false)

	rec := env.do(http.MethodGet, "/api/stats", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStats(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/stats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	cols, ok := resp["collections"].([]any)
	require.True(t, ok)
	require.Len(t, cols, 1)
	assert.Equal(t, "sc", cols[0].(map[string]any)["collection"])
}

func TestHandleRuns(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantLimit  int
		wantColl   string
	}{
		{name: "defaults", target: "/api/runs", wantStatus: http.StatusOK, wantLimit: 50},
		{name: "filtered", target: "/api/runs?collection=sc&limit=5", wantStatus: http.StatusOK, wantLimit: 5, wantColl: "sc"},
		{name: "bad limit", target: "/api/runs?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "negative limit", target: "/api/runs?limit=-1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(http.MethodGet, tt.target, "")

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantLimit, env.journal.limit)
			assert.Equal(t, tt.wantColl, env.journal.collection)
			runs := decode[[]map[string]any](t, rec)
			require.Len(t, runs, 1)
			assert.Equal(t, "ok", runs[0]["outcome"])
			assert.NotContains(t, runs[0], "silhouette")
		})
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/search?query=land+acquisition&collection=sc&limit=3", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, search.SearchParams{Query: "land acquisition", Collection: "sc", Limit: 3}, env.searcher.params)
	resp := decode[search.SearchResponse](t, rec)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestHandleSearch_RequiresQuery(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/search", "").Code)
}

func TestHandleCluster(t *testing.T) {
	env := newTestEnv(t)
	body := `{
		"config": {"method": "leaf", "min_cluster_size": 2, "min_samples": 1},
		"chunks": ["a1", "a2", "a3", "b1", "b2", "b3"],
		"embeddings": [[1,0,0],[0.99,0.01,0],[0.98,0.02,0],[0,1,0],[0.01,0.99,0],[0.02,0.98,0]]
	}`

	rec := env.do(http.MethodPost, "/api/cluster", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	labels, ok := resp["labels"].([]any)
	require.True(t, ok)
	assert.Len(t, labels, 6)
	assert.Contains(t, []any{"ok", "degenerate"}, resp["outcome"])
}

func TestHandleCluster_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := map[string]string{
		"not json":        `{`,
		"empty":           `{"chunks": [], "embeddings": []}`,
		"length mismatch": `{"chunks": ["a"], "embeddings": [[1], [2]]}`,
		"bad config":      `{"config": {"min_cluster_size": "two"}, "chunks": ["a"], "embeddings": [[1]]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/cluster", body).Code)
		})
	}
}

func TestHandleCluster_PartialConfigKeepsDefaults(t *testing.T) {
	env := newTestEnv(t)
	body := `{
		"config": {"min_cluster_size": 2},
		"chunks": ["a", "b", "c"],
		"embeddings": [[10,0,0],[0,10,0],[0,0,10]]
	}`

	rec := env.do(http.MethodPost, "/api/cluster", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "degenerate", resp["outcome"])
	assert.Empty(t, resp["representatives"])
	assert.Equal(t, []any{"OUTLIER: a", "OUTLIER: b", "OUTLIER: c"}, resp["outliers"])
}

func TestClusterConfig_MergesOverDefaults(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		raw  string
		want func(c *similarity.Config)
	}{
		{name: "absent", raw: "", want: func(*similarity.Config) {}},
		{name: "null", raw: "null", want: func(*similarity.Config) {}},
		{name: "one field", raw: `{"min_cluster_size": 3}`, want: func(c *similarity.Config) { c.MinClusterSize = 3 }},
		{name: "explicit zero", raw: `{"noise_distance": 0}`, want: func(c *similarity.Config) { c.NoiseDistance = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := similarity.DefaultConfig()
			tt.want(&want)

			got, err := env.svc.clusterConfig(json.RawMessage(tt.raw))

			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := env.svc.clusterConfig(json.RawMessage(`{"min_cluster_size": "two"}`))
	assert.Error(t, err)
}

func TestHandleCluster_FailedOutcomeIsReported(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/cluster", `{"chunks": ["a", "b"], "embeddings": [[1, 2], [3]]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "failed", resp["outcome"])
	assert.NotEmpty(t, resp["reason"])
}

func TestHandleProcessDocument(t *testing.T) {
	env := newTestEnv(t)
	env.docs.docs["sc/ext-9"] = &models.Document{ID: 9, Collection: "sc", ExternalID: "ext-9"}

	rec := env.do(http.MethodPost, "/api/documents/sc/ext-9/process", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", resp["outcome"])
	assert.EqualValues(t, 9, resp["doc_id"])
	assert.Equal(t, 1, env.processor.processedCount())
}

func TestHandleProcessDocument_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/documents/sc/missing/process", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleProcessDocument_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.processor.fail = true
	env.docs.docs["sc/x"] = &models.Document{ID: 1, Collection: "sc", ExternalID: "x"}

	rec := env.do(http.MethodPost, "/api/documents/sc/x/process", "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "failed", resp["outcome"])
	assert.Contains(t, resp["error"], "no text")
}

func TestHandleProcessCollection_RunsOncePerCollection(t *testing.T) {
	env := newTestEnv(t)
	env.processor.release = make(chan struct{})

	first := env.do(http.MethodPost, "/api/collections/sc/process?limit=10", "")
	second := env.do(http.MethodPost, "/api/collections/sc/process", "")

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, env.svc.runningJobs(), "sc")

	close(env.processor.release)
	require.Eventually(t, func() bool { return len(env.svc.runningJobs()) == 0 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/api/collections/sc/process", "").Code)
}

func TestHandleProcessCollection_BadLimit(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/collections/sc/process?limit=x", "").Code)
}

func TestHandleInboxFile_RegistersAndProcesses(t *testing.T) {
	env := newTestEnv(t)

	env.svc.HandleInboxFile("/tmp/inbox/Judgment 12.pdf")
	env.svc.HandleInboxFile("/tmp/inbox/Judgment 12.pdf")

	require.Eventually(t, func() bool { return env.processor.processedCount() == 2 }, time.Second, 5*time.Millisecond)
	env.docs.mu.Lock()
	defer env.docs.mu.Unlock()
	require.Len(t, env.docs.created, 1)
	doc := env.docs.created[0]
	assert.Equal(t, InboxCollection, doc.Collection)
	assert.Equal(t, "Judgment 12", doc.Title)
	assert.Equal(t, "/tmp/inbox/Judgment 12.pdf", doc.SourceURL())
	assert.Equal(t, inboxID("/tmp/inbox/Judgment 12.pdf"), doc.ExternalID)
}

func TestServeAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, env.svc.Serve(ln))

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.svc.Shutdown(ctx))
	assert.False(t, env.svc.ready.Load())
	http.DefaultClient.CloseIdleConnections()
}
