package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeServer answers /embeddings with [len(text), index, 1, 1] per input and
// returns the data entries in reverse order.
type fakeServer struct {
	srv      *httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	inputs   [][]string
	lastDims int
}

func (f *fakeServer) seen() ([][]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs, f.lastDims
}

func newFakeServer() *fakeServer {
	f := &fakeServer{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		f.requests.Add(1)
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.inputs = append(f.inputs, req.Input)
		f.lastDims = req.Dimensions
		f.mu.Unlock()

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), float32(i), 1, 1}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	return f
}

type ClientSuite struct {
	suite.Suite
	fake *fakeServer
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.fake = newFakeServer()
}

func (s *ClientSuite) TearDownTest() {
	s.fake.srv.Close()
}

func (s *ClientSuite) newClient(cfg Config) *Client {
	cfg.BaseURL = s.fake.srv.URL + "/v1/"
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-large"
	}
	c, err := New(cfg)
	s.Require().NoError(err)
	return c
}

func (s *ClientSuite) TestEmbed_OrderedByIndex() {
	c := s.newClient(Config{})

	vs, err := c.Embed(context.Background(), []string{"a", "bbb", "cc"})

	s.Require().NoError(err)
	s.Equal([][]float32{{1, 0, 1, 1}, {3, 1, 1, 1}, {2, 2, 1, 1}}, vs)
}

func (s *ClientSuite) TestEmbed_TruncatesToDimensions() {
	c := s.newClient(Config{Dimensions: 2})

	vs, err := c.Embed(context.Background(), []string{"abcd"})

	s.Require().NoError(err)
	s.Equal([][]float32{{4, 0}}, vs)
	_, dims := s.fake.seen()
	s.Equal(2, dims)
	s.Equal(2, c.Dimensions())
}

func (s *ClientSuite) TestEmbed_Batches() {
	c := s.newClient(Config{BatchSize: 2})

	vs, err := c.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})

	s.Require().NoError(err)
	s.Len(vs, 5)
	s.Equal(int32(3), s.fake.requests.Load())
	inputs, _ := s.fake.seen()
	s.Equal([][]string{{"a", "b"}, {"c", "d"}, {"e"}}, inputs)
	// indexes restart in each batch
	s.Equal(float32(0), vs[4][1])
}

func (s *ClientSuite) TestEmbed_DuplicatesSentOnce() {
	c := s.newClient(Config{})

	vs, err := c.Embed(context.Background(), []string{"same", "other", "same"})

	s.Require().NoError(err)
	inputs, _ := s.fake.seen()
	s.Equal([][]string{{"same", "other"}}, inputs)
	s.Equal(vs[0], vs[2])
}

func (s *ClientSuite) TestEmbed_Cache() {
	c := s.newClient(Config{CacheSize: 16})

	_, err := c.Embed(context.Background(), []string{"x", "y"})
	s.Require().NoError(err)
	vs, err := c.Embed(context.Background(), []string{"y", "z"})
	s.Require().NoError(err)

	inputs, _ := s.fake.seen()
	s.Equal([][]string{{"x", "y"}, {"z"}}, inputs)
	s.Equal([]float32{1, 1, 1, 1}, vs[0], "cached vector keeps its original batch index")
	s.Equal(Stats{Hits: 1, Misses: 3, Requests: 2}, c.Stats())
}

func (s *ClientSuite) TestEmbed_CachedVectorsAreCopies() {
	c := s.newClient(Config{CacheSize: 4})

	first, err := c.EmbedOne(context.Background(), "x")
	s.Require().NoError(err)
	first[0] = 99

	again, err := c.EmbedOne(context.Background(), "x")
	s.Require().NoError(err)
	s.Equal(float32(1), again[0])
}

func (s *ClientSuite) TestEmbed_Empty() {
	c := s.newClient(Config{})

	_, err := c.Embed(context.Background(), nil)

	s.ErrorIs(err, ErrEmptyInput)
}

func TestEmbed_MismatchedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestEmbed_DuplicateIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Model: "m", Attempts: 3})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"a"})

	assert.ErrorContains(t, err, "status 401")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestMean(t *testing.T) {
	assert.Equal(t, []float32{2, 3}, Mean([][]float32{{1, 2}, {3, 4}}))
	assert.Equal(t, []float32{5}, Mean([][]float32{{5}}))
	assert.Nil(t, Mean(nil))
	assert.Nil(t, Mean([][]float32{{1, 2}, {1}}))
}
