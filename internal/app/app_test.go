package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/docenrich/internal/config"
	"github.com/thebtf/docenrich/pkg/similarity"
)

func TestClusterConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ClusterMethod = "eom"
	cfg.ClusterMinSize = 4
	cfg.ClusterMinSamples = 2

	c := ClusterConfig(cfg)

	assert.Equal(t, similarity.MethodEOM, c.Method)
	assert.Equal(t, 4, c.MinClusterSize)
	assert.Equal(t, 2, c.MinSamples)
	assert.Equal(t, cfg.ClusterNoiseDistance, c.NoiseDistance)
}

func TestClusterConfig_KeepsDefaultsForZeroValues(t *testing.T) {
	c := ClusterConfig(&config.Config{})

	assert.Equal(t, similarity.DefaultConfig(), c)
}

func TestChunkOptions(t *testing.T) {
	opts := ChunkOptions(config.Default())

	assert.Equal(t, 2536, opts.SingleChunkTokens)
	assert.Equal(t, 11264, opts.MediumDocTokens)
	assert.Equal(t, 768, opts.MediumSize)
	assert.Equal(t, 512, opts.LargeOverlap)
}

func TestVectorCollections(t *testing.T) {
	cols := VectorCollections(config.Default())

	assert.Equal(t, "contentColA", cols.Content)
	assert.Equal(t, "summaryColA", cols.Summary)
	assert.Equal(t, "keywordColA", cols.Keyword)
}

func TestBuild_RequiresDSN(t *testing.T) {
	_, err := Build(context.Background(), &config.Config{}, nil, false)

	assert.ErrorContains(t, err, "DOCENRICH_DATABASE_DSN")
}

func TestLoadCollections(t *testing.T) {
	reg, err := loadCollections("")
	require.NoError(t, err)
	assert.Equal(t, "C01", reg.Code("eastgodavaris"))

	bad := filepath.Join(t.TempDir(), "collections.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("collections:\n  - name: x\n    code: nope\n"), 0o644))
	_, err = loadCollections(bad)
	assert.ErrorContains(t, err, "collections file")
}
