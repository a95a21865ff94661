package knowledge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestEngine(t *testing.T, chunkSize, overlap int) *Engine {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "kb.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(EngineConfig{Store: store, ChunkSize: chunkSize, Overlap: overlap, Logger: testLogger()})
}

func TestIndexName(t *testing.T) {
	name := IndexName("CEI", "CSDC")
	parts := strings.Split(name, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "cei", parts[0])
	assert.Equal(t, "csdc", parts[1])
	assert.Len(t, parts[2], 32)

	// hash is over the original, not the lowercased, name
	assert.NotEqual(t, IndexName("CEI", "CSDC"), IndexName("cei", "CSDC"))
	assert.Equal(t, IndexName("dth", "CSDC"), IndexName("dth", "csdc"))
}

func TestChunkText_Overlap(t *testing.T) {
	e := newTestEngine(t, 4, 1)
	chunks := e.chunkText("a b c d e f g h i j", "doc")
	require.Len(t, chunks, 3)
	assert.Equal(t, "a b c d", chunks[0].Content)
	assert.Equal(t, "d e f g", chunks[1].Content)
	assert.Equal(t, "g h i j", chunks[2].Content)
	assert.Equal(t, 2, chunks[2].ChunkIndex)

	assert.Nil(t, e.chunkText("   ", "doc"))
}

func TestEngine_AddAndSearchScopedToIndex(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 8, 0)
	cei := IndexName("cei", "CSDC")
	dth := IndexName("dth", "CSDC")

	_, err := e.AddDocument(ctx, cei, "cei.md", "text/markdown",
		"The Customer Engagement Incentive funds partner migrations. Incentive payments follow milestones.")
	require.NoError(t, err)
	_, err = e.AddDocument(ctx, dth, "dth.md", "text/markdown",
		"Data Transfer Hub copies objects between S3 buckets across regions and partitions.")
	require.NoError(t, err)

	docs, err := e.Search(ctx, cei, "what is the incentive?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Contains(t, docs[0].PageContent, "Incentive")
	assert.Equal(t, "cei.md", docs[0].Metadata["source"])

	docs, err = e.Search(ctx, cei, "S3 buckets", 3)
	require.NoError(t, err)
	assert.Empty(t, docs, "dth content must not leak into the cei index")

	docs, err = e.Search(ctx, dth, "S3 buckets", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}

func TestEngine_SearchHonorsK(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 3, 0)
	idx := IndexName("cei", "CSDC")
	_, err := e.AddDocument(ctx, idx, "a", "text/plain", strings.Repeat("partner incentive program ", 10))
	require.NoError(t, err)

	docs, err := e.Search(ctx, idx, "incentive", 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestEngine_ReAddReplaces(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 50, 0)
	idx := IndexName("cei", "CSDC")

	for i := 0; i < 2; i++ {
		_, err := e.AddDocument(ctx, idx, "same", "text/plain", "incentive details")
		require.NoError(t, err)
	}
	docs, err := e.ListDocuments(ctx, idx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	hits, err := e.Search(ctx, idx, "incentive", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestEngine_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 50, 0)
	idx := IndexName("dth", "CSDC")

	doc, err := e.AddDocument(ctx, idx, "dth", "text/plain", "transfer hub")
	require.NoError(t, err)
	require.NoError(t, e.DeleteDocument(ctx, idx, doc.ID))

	hits, err := e.Search(ctx, idx, "transfer", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Error(t, e.DeleteDocument(ctx, idx, doc.ID))
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"what" OR "is" OR "cei"`, ftsQuery(`What is "CEI"? is`))
	assert.Equal(t, "", ftsQuery(" ?! "))
	assert.Equal(t, `"跨境"`, ftsQuery("跨境"))
}
