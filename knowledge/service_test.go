package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding provider unavailable")
	}
	vectors := make([][]float32, len(inputs))
	for i := range inputs {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

// memoryIndex is an in-process VectorIndex. Payloads go through a JSON
// round-trip so value types match what the real store hands back.
type memoryIndex struct {
	points      map[string]VectorPoint
	failUpserts bool
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{points: make(map[string]VectorPoint)}
}

func (m *memoryIndex) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	return nil
}

func (m *memoryIndex) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	if m.failUpserts {
		return errors.New("vector store unavailable")
	}
	for _, point := range points {
		raw, err := json.Marshal(point.Payload)
		if err != nil {
			return err
		}
		var normalized map[string]any
		if err := json.Unmarshal(raw, &normalized); err != nil {
			return err
		}
		point.Payload = normalized
		m.points[point.ID] = point
	}
	return nil
}

func (m *memoryIndex) Delete(ctx context.Context, collection string, pointIDs []string) error {
	for _, id := range pointIDs {
		delete(m.points, id)
	}
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]VectorHit, error) {
	hits := make([]VectorHit, 0, len(m.points))
	for id, point := range m.points {
		var score float64
		for i := range vector {
			if i < len(point.Vector) {
				score += float64(vector[i]) * float64(point.Vector[i])
			}
		}
		hits = append(hits, VectorHit{ID: id, Score: score, Payload: point.Payload})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func newTestKnowledge(t *testing.T, embedder Embedder, index VectorIndex) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	service, err := NewService(db, embedder, index, Config{
		ChunkSize:    50,
		ChunkOverlap: 10,
		Collection:   "test_chunks",
		VectorSize:   2,
		SearchLimit:  10,
	})
	require.NoError(t, err)
	require.NoError(t, service.AutoMigrate())
	return service
}

const sampleContent = "Groundwater recharge in the district improved after percolation tanks " +
	"and check dams were commissioned. Rainwater harvesting on public buildings added further recharge."

func TestIngestIndexesChunksAndVectors(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{
		OwnerID: 1,
		Title:   "Recharge report",
		Content: sampleContent,
	})
	require.NoError(t, err)
	assert.Equal(t, IngestStatusIndexed, result.Status)
	assert.Greater(t, result.ChunkCount, 1)

	var chunkRows int64
	require.NoError(t, s.db.Model(&Chunk{}).Count(&chunkRows).Error)
	assert.Equal(t, int64(result.ChunkCount), chunkRows)
	assert.Len(t, index.points, result.ChunkCount)
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	s := newTestKnowledge(t, &fakeEmbedder{}, newMemoryIndex())

	_, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Empty", Content: "  \n "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestReingestReplacesChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)

	again, err := s.Reingest(context.Background(), result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, again.ChunkCount)

	var chunkRows int64
	require.NoError(t, s.db.Model(&Chunk{}).Count(&chunkRows).Error)
	assert.Equal(t, int64(result.ChunkCount), chunkRows, "reingest must not duplicate chunks")
	assert.Len(t, index.points, result.ChunkCount, "stale vector points must be removed")
}

func TestFailedReingestKeepsOldChunksSearchable(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)
	require.Len(t, index.points, result.ChunkCount)

	index.failUpserts = true
	_, err = s.Reingest(context.Background(), result.DocumentID)
	require.Error(t, err)

	// The rollback must restore the old chunk rows with their vector points
	// intact, not leave a half-indexed document behind.
	var chunkRows int64
	require.NoError(t, s.db.Model(&Chunk{}).Count(&chunkRows).Error)
	assert.Equal(t, int64(result.ChunkCount), chunkRows)
	assert.Len(t, index.points, result.ChunkCount, "old vector points must survive a failed re-ingest")

	var pending int64
	require.NoError(t, s.db.Model(&Chunk{}).Where("needs_reindex = ?", true).Count(&pending).Error)
	assert.Zero(t, pending)

	index.failUpserts = false
	results, err := s.Search(context.Background(), "recharge measures", SearchFilters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, results[0].Lexical)
}

func TestIngestDegradedWhenEmbedderDown(t *testing.T) {
	embedder := &fakeEmbedder{fail: true}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)
	assert.Equal(t, IngestStatusDegraded, result.Status)
	assert.Empty(t, index.points)

	var pending int64
	require.NoError(t, s.db.Model(&Chunk{}).Where("needs_reindex = ?", true).Count(&pending).Error)
	assert.Equal(t, int64(result.ChunkCount), pending)
}

func TestLocalOnlyDocumentNeverEmbedded(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{
		OwnerID:   1,
		Title:     "Private aadhaar scan",
		Content:   sampleContent,
		LocalOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, IngestStatusLocalOnly, result.Status)
	assert.Zero(t, embedder.calls)
	assert.Empty(t, index.points)

	// And it must never surface in search, semantic or lexical.
	results, err := s.Search(context.Background(), "recharge check dams", SearchFilters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSemantic(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	_, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "recharge measures", SearchFilters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, results[0].Lexical)
	assert.Equal(t, "Report", results[0].Title)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchLexicalFallbackWhenEmbedderDown(t *testing.T) {
	embedder := &fakeEmbedder{fail: true}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	_, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "percolation tanks recharge", SearchFilters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, results[0].Lexical)
}

func TestSearchFiltersExcludeMismatches(t *testing.T) {
	s := newTestKnowledge(t, &fakeEmbedder{}, newMemoryIndex())

	_, err := s.Ingest(context.Background(), DocumentInput{
		OwnerID:  1,
		Title:    "Scheme note",
		Category: CategoryScheme,
		Content:  sampleContent,
	})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "recharge", SearchFilters{Category: CategoryLegal}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReindexPendingRecoversDegradedChunks(t *testing.T) {
	embedder := &fakeEmbedder{fail: true}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)

	embedder.fail = false
	count, err := s.ReindexPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.ChunkCount, count)
	assert.Len(t, index.points, result.ChunkCount)

	var pending int64
	require.NoError(t, s.db.Model(&Chunk{}).Where("needs_reindex = ?", true).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestDeleteDocumentCascades(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{
		OwnerID:   1,
		Title:     "Report",
		ObjectKey: "documents/1/abc.pdf",
		Content:   sampleContent,
	})
	require.NoError(t, err)

	objectKey, err := s.DeleteDocument(context.Background(), result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "documents/1/abc.pdf", objectKey)
	assert.Empty(t, index.points)

	var chunkRows int64
	require.NoError(t, s.db.Model(&Chunk{}).Count(&chunkRows).Error)
	assert.Zero(t, chunkRows)
}

func TestUpdateDocumentReindexesOnContentChange(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newMemoryIndex()
	s := newTestKnowledge(t, embedder, index)

	result, err := s.Ingest(context.Background(), DocumentInput{OwnerID: 1, Title: "Report", Content: sampleContent})
	require.NoError(t, err)

	shorter := "A short replacement body."
	updated, err := s.UpdateDocument(context.Background(), result.DocumentID, DocumentUpdate{Content: &shorter})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ChunkCount)
	assert.Len(t, index.points, 1)
	assert.True(t, strings.Contains(updated.Content, "replacement"))
}
