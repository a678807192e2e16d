package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrEmptyContent rejects ingestion of documents with no extractable text.
var ErrEmptyContent = errors.New("knowledge: document has no extractable content")

// Ingest outcome statuses.
const (
	IngestStatusIndexed   = "indexed"
	IngestStatusDegraded  = "degraded"
	IngestStatusLocalOnly = "local_only"
)

const defaultSearchLimit = 10

type Service struct {
	db          *gorm.DB
	embedder    Embedder
	vectors     VectorIndex
	chunker     *chunker
	collection  string
	vectorSize  int
	searchLimit int
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Collection   string
	VectorSize   int
	SearchLimit  int
}

type DocumentInput struct {
	OwnerID   uint64   `json:"owner_id"`
	Title     string   `json:"title"`
	Filename  string   `json:"filename"`
	ObjectKey string   `json:"object_key"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Content   string   `json:"content"`
	LocalOnly bool     `json:"local_only"`
}

type DocumentUpdate struct {
	Title    *string   `json:"title"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
	Content  *string   `json:"content"`
}

type IngestResult struct {
	DocumentID uint64 `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
}

type DocumentRecord struct {
	ID         uint64    `json:"id"`
	OwnerID    uint64    `json:"owner_id"`
	Title      string    `json:"title"`
	Filename   *string   `json:"filename,omitempty"`
	ObjectKey  *string   `json:"object_key,omitempty"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	Content    string    `json:"content,omitempty"`
	LocalOnly  bool      `json:"local_only"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SearchFilters narrow the eligible corpus. Tags intersect: a chunk must
// carry every requested tag.
type SearchFilters struct {
	Category string     `json:"category,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

func NewService(db *gorm.DB, embedder Embedder, vectors VectorIndex, cfg Config) (*Service, error) {
	if db == nil {
		return nil, errors.New("knowledge: database connection is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "gw_documents"
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	return &Service{
		db:          db,
		embedder:    embedder,
		vectors:     vectors,
		chunker:     newChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		collection:  cfg.Collection,
		vectorSize:  cfg.VectorSize,
		searchLimit: cfg.SearchLimit,
	}, nil
}

func NewServiceFromEnv(db *gorm.DB) (*Service, error) {
	embedder, err := NewHTTPEmbedderFromEnv()
	if err != nil {
		return nil, err
	}
	vectors, err := newQdrantClientFromEnv()
	if err != nil {
		return nil, err
	}

	cfg := Config{
		ChunkSize:    readIntEnv("KNOWLEDGE_CHUNK_SIZE", defaultChunkSize),
		ChunkOverlap: readIntEnv("KNOWLEDGE_CHUNK_OVERLAP", defaultChunkOverlap),
		Collection:   strings.TrimSpace(os.Getenv("KNOWLEDGE_COLLECTION")),
		VectorSize:   vectors.vectorSize,
		SearchLimit:  readIntEnv("KNOWLEDGE_SEARCH_LIMIT", defaultSearchLimit),
	}
	return NewService(db, embedder, vectors, cfg)
}

func readIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func (s *Service) AutoMigrate() error {
	if s.db == nil {
		return errors.New("knowledge: database connection is not configured")
	}
	return s.db.AutoMigrate(&Document{}, &Chunk{})
}

// Overlap exposes the configured chunk overlap so callers can reassemble text.
func (s *Service) Overlap() int {
	return s.chunker.overlap
}

// Ingest stores a new document and indexes it. Local-only documents are
// chunked for preview but never touch the vector index.
func (s *Service) Ingest(ctx context.Context, input DocumentInput) (*IngestResult, error) {
	if s.db == nil {
		return nil, errors.New("knowledge: database connection is not configured")
	}

	content := NormalizeText(input.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSpace(input.Filename)
	}
	if title == "" {
		return nil, errors.New("knowledge: title is required")
	}

	category := strings.ToLower(strings.TrimSpace(input.Category))
	tags := normalizeTags(input.Tags)
	if !ValidCategory(category) {
		suggested, suggestedTags := SuggestCategory(input.Filename, title)
		category = suggested
		tags = normalizeTags(append(tags, suggestedTags...))
	}

	doc := Document{
		OwnerID:   input.OwnerID,
		Title:     title,
		Category:  category,
		Tags:      tagsToJSON(tags),
		Content:   content,
		LocalOnly: input.LocalOnly,
	}
	if trimmed := strings.TrimSpace(input.Filename); trimmed != "" {
		doc.Filename = &trimmed
	}
	if trimmed := strings.TrimSpace(input.ObjectKey); trimmed != "" {
		doc.ObjectKey = &trimmed
	}

	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, err
	}

	count, status, err := s.indexDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &IngestResult{DocumentID: doc.ID, ChunkCount: count, Status: status}, nil
}

// Reingest rebuilds the chunks for an existing document from its stored
// content. Running it twice is safe: prior chunks are always replaced.
func (s *Service) Reingest(ctx context.Context, docID uint64) (*IngestResult, error) {
	if s.db == nil {
		return nil, errors.New("knowledge: database connection is not configured")
	}
	var doc Document
	if err := s.db.WithContext(ctx).Take(&doc, "id = ?", docID).Error; err != nil {
		return nil, err
	}
	count, status, err := s.indexDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &IngestResult{DocumentID: doc.ID, ChunkCount: count, Status: status}, nil
}

// indexDocument chunks, embeds, and transactionally replaces the document's
// chunk rows. Either all chunks for the document commit or none do. Vector
// upserts outside the transaction are compensated on row failure, matching
// the replace-then-insert order so a crash leaves no half-indexed document.
func (s *Service) indexDocument(ctx context.Context, doc Document) (int, string, error) {
	segments := s.chunker.split(doc.Content)
	if len(segments) == 0 {
		return 0, "", ErrEmptyContent
	}

	tags := parseTags(doc.Tags)

	var embeddings [][]float32
	degraded := false
	if !doc.LocalOnly {
		if s.embedder == nil || s.vectors == nil {
			degraded = true
		} else {
			texts := make([]string, len(segments))
			for i, segment := range segments {
				texts[i] = segment.Text
			}
			var err error
			embeddings, err = s.embedder.Embed(ctx, texts)
			if err != nil {
				log.Printf("knowledge: embedding unavailable, storing document %d lexical-only: %v", doc.ID, err)
				degraded = true
			} else if len(embeddings) != len(segments) {
				log.Printf("knowledge: embedding count mismatch for document %d (expected %d, got %d)", doc.ID, len(segments), len(embeddings))
				degraded = true
			}
		}
	}

	chunks := make([]Chunk, len(segments))
	vectorIDs := make([]string, len(segments))
	for i, segment := range segments {
		vectorIDs[i] = uuid.NewString()
		chunks[i] = Chunk{
			DocumentID:   doc.ID,
			OwnerID:      doc.OwnerID,
			Seq:          i + 1,
			Text:         segment.Text,
			VectorID:     vectorIDs[i],
			CharCount:    segment.CharCount,
			NeedsReindex: !doc.LocalOnly && degraded,
			Category:     doc.Category,
			Tags:         doc.Tags,
		}
	}

	indexable := !doc.LocalOnly && !degraded
	if indexable {
		if err := s.vectors.EnsureCollection(ctx, s.collection, s.vectorSize); err != nil {
			return 0, "", err
		}
	}

	// Stale vector points are only removed after the new state commits. If the
	// transaction rolls back, the old chunk rows and their points both survive,
	// so a failed re-ingest never strips a document of its searchability.
	var staleVectors []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Chunk{}).
			Where("document_id = ?", doc.ID).
			Pluck("vector_id", &staleVectors).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&Chunk{}).Error; err != nil {
			return err
		}

		if indexable {
			points := make([]VectorPoint, len(chunks))
			for i := range chunks {
				points[i] = VectorPoint{
					ID:      chunks[i].VectorID,
					Vector:  embeddings[i],
					Payload: chunkPayload(doc, chunks[i], tags),
				}
			}
			if err := s.vectors.Upsert(ctx, s.collection, points); err != nil {
				return err
			}
		}

		if err := tx.Create(&chunks).Error; err != nil {
			if indexable {
				if cleanupErr := s.vectors.Delete(ctx, s.collection, vectorIDs); cleanupErr != nil {
					log.Printf("knowledge: cleanup vector points failed: %v", cleanupErr)
				}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}

	if len(staleVectors) > 0 && s.vectors != nil {
		if err := s.vectors.Delete(ctx, s.collection, staleVectors); err != nil {
			log.Printf("knowledge: remove stale vector points for document %d: %v", doc.ID, err)
		}
	}

	status := IngestStatusIndexed
	if doc.LocalOnly {
		status = IngestStatusLocalOnly
	} else if degraded {
		status = IngestStatusDegraded
	}
	return len(chunks), status, nil
}

func chunkPayload(doc Document, chunk Chunk, tags []string) map[string]any {
	payload := map[string]any{
		"document_id": doc.ID,
		"owner_id":    doc.OwnerID,
		"title":       doc.Title,
		"category":    doc.Category,
		"seq":         chunk.Seq,
		"text":        chunk.Text,
		"uploaded":    doc.CreatedAt.Unix(),
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}
	return payload
}

// ReindexPending embeds chunks that were stored in degraded mode and moves
// them back into the vector index. Returns how many chunks were reindexed.
func (s *Service) ReindexPending(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errors.New("knowledge: database connection is not configured")
	}
	if s.embedder == nil || s.vectors == nil {
		return 0, errors.New("knowledge: embedder is not configured")
	}

	var pending []Chunk
	if err := s.db.WithContext(ctx).
		Joins("JOIN gw_documents ON gw_documents.id = gw_document_chunks.document_id").
		Where("gw_document_chunks.needs_reindex = ? AND gw_documents.local_only = ?", true, false).
		Find(&pending).Error; err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, chunk := range pending {
		texts[i] = chunk.Text
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(embeddings) != len(pending) {
		return 0, fmt.Errorf("knowledge: embedding count mismatch (expected %d, got %d)", len(pending), len(embeddings))
	}

	if err := s.vectors.EnsureCollection(ctx, s.collection, s.vectorSize); err != nil {
		return 0, err
	}

	docs := make(map[uint64]Document)
	points := make([]VectorPoint, 0, len(pending))
	ids := make([]uint64, 0, len(pending))
	for i, chunk := range pending {
		doc, ok := docs[chunk.DocumentID]
		if !ok {
			if err := s.db.WithContext(ctx).Take(&doc, "id = ?", chunk.DocumentID).Error; err != nil {
				return 0, err
			}
			docs[chunk.DocumentID] = doc
		}
		points = append(points, VectorPoint{
			ID:      chunk.VectorID,
			Vector:  embeddings[i],
			Payload: chunkPayload(doc, chunk, parseTags(doc.Tags)),
		})
		ids = append(ids, chunk.ID)
	}

	if err := s.vectors.Upsert(ctx, s.collection, points); err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).
		Model(&Chunk{}).
		Where("id IN ?", ids).
		Update("needs_reindex", false).Error; err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Search ranks chunks against a free-text query. Semantic hits come first;
// lexical matches over degraded chunks (or the whole eligible corpus when the
// embedder is down) fill in behind them. Local-only documents never appear.
func (s *Service) Search(ctx context.Context, query string, filters SearchFilters, limit int) ([]SearchResult, error) {
	if s.db == nil {
		return nil, errors.New("knowledge: database connection is not configured")
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	if limit <= 0 || limit > s.searchLimit {
		limit = s.searchLimit
	}

	eligible, err := s.eligibleDocuments(ctx, filters)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return []SearchResult{}, nil
	}

	semantic := s.semanticSearch(ctx, trimmed, filters, eligible, limit)

	lexicalOnly := len(semantic) == 0
	lexical, err := s.lexicalSearch(ctx, trimmed, eligible, lexicalOnly, limit)
	if err != nil {
		return nil, err
	}

	merged := mergeResults(semantic, lexical, limit)
	return merged, nil
}

// eligibleDocuments applies filters in the relational store. The result set
// is also used to validate vector hits, so a stale index entry for a deleted
// or local-only document can never leak into results.
func (s *Service) eligibleDocuments(ctx context.Context, filters SearchFilters) (map[uint64]Document, error) {
	query := s.db.WithContext(ctx).Where("local_only = ?", false)
	if category := strings.ToLower(strings.TrimSpace(filters.Category)); category != "" {
		query = query.Where("category = ?", category)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}

	var docs []Document
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}

	wanted := normalizeTags(filters.Tags)
	eligible := make(map[uint64]Document, len(docs))
	for _, doc := range docs {
		if len(wanted) > 0 && !hasAllTags(parseTags(doc.Tags), wanted) {
			continue
		}
		eligible[doc.ID] = doc
	}
	return eligible, nil
}

func (s *Service) semanticSearch(ctx context.Context, query string, filters SearchFilters, eligible map[uint64]Document, limit int) []SearchResult {
	if s.embedder == nil || s.vectors == nil {
		return nil
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		if err != nil {
			log.Printf("knowledge: query embedding failed, falling back to lexical search: %v", err)
		}
		return nil
	}

	hits, err := s.vectors.Search(ctx, s.collection, embeddings[0], limit*2, searchFilterPayload(filters))
	if err != nil {
		log.Printf("knowledge: vector search failed, falling back to lexical search: %v", err)
		return nil
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		result, ok := hitToResult(hit)
		if !ok {
			continue
		}
		doc, known := eligible[result.DocumentID]
		if !known {
			continue
		}
		result.Uploaded = doc.CreatedAt
		results = append(results, result)
	}
	return results
}

func searchFilterPayload(filters SearchFilters) map[string]any {
	must := make([]map[string]any, 0, 2+len(filters.Tags))
	if category := strings.ToLower(strings.TrimSpace(filters.Category)); category != "" {
		must = append(must, map[string]any{
			"key":   "category",
			"match": map[string]any{"value": category},
		})
	}
	for _, tag := range normalizeTags(filters.Tags) {
		must = append(must, map[string]any{
			"key":   "tags",
			"match": map[string]any{"value": tag},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func hitToResult(hit VectorHit) (SearchResult, bool) {
	result := SearchResult{Score: hit.Score}
	payload := hit.Payload
	if payload == nil {
		return result, false
	}
	if v, ok := payload["document_id"].(float64); ok && v > 0 {
		result.DocumentID = uint64(v)
	}
	if v, ok := payload["title"].(string); ok {
		result.Title = v
	}
	if v, ok := payload["category"].(string); ok {
		result.Category = v
	}
	if v, ok := payload["text"].(string); ok {
		result.Text = v
	}
	if v, ok := payload["seq"].(float64); ok {
		result.Seq = int(v)
	}
	if raw, ok := payload["tags"].([]any); ok {
		result.Tags = toStringSlice(raw)
	}
	if result.DocumentID == 0 || result.Text == "" {
		return result, false
	}
	return result, true
}

// lexicalSearch keyword-matches chunk text in memory. When wholeCorpus is
// false only degraded (needs_reindex) chunks are scanned, since everything
// else is already covered by the vector index.
func (s *Service) lexicalSearch(ctx context.Context, query string, eligible map[uint64]Document, wholeCorpus bool, limit int) ([]SearchResult, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(eligible))
	for id := range eligible {
		ids = append(ids, id)
	}

	scope := s.db.WithContext(ctx).Where("document_id IN ?", ids)
	if !wholeCorpus {
		scope = scope.Where("needs_reindex = ?", true)
	}

	var chunks []Chunk
	if err := scope.Find(&chunks).Error; err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, limit)
	for _, chunk := range chunks {
		score := lexicalScore(chunk.Text, terms)
		if score <= 0 {
			continue
		}
		doc := eligible[chunk.DocumentID]
		results = append(results, SearchResult{
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.ID,
			Title:      doc.Title,
			Category:   chunk.Category,
			Tags:       parseTags(chunk.Tags),
			Seq:        chunk.Seq,
			Text:       chunk.Text,
			Score:      score,
			Lexical:    true,
			Uploaded:   doc.CreatedAt,
		})
	}
	return results, nil
}

func tokenizeQuery(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.Trim(field, ".,!?;:\"'()")
		if len([]rune(cleaned)) < 3 {
			continue
		}
		terms = append(terms, cleaned)
	}
	return terms
}

func lexicalScore(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(len(terms))
}

// mergeResults keeps semantic hits ahead of lexical ones. Within each mode
// higher scores win and score ties go to the most recently uploaded document.
func mergeResults(semantic, lexical []SearchResult, limit int) []SearchResult {
	sortResults(semantic)
	sortResults(lexical)

	seen := make(map[string]struct{}, len(semantic)+len(lexical))
	merged := make([]SearchResult, 0, limit)
	for _, result := range append(semantic, lexical...) {
		key := fmt.Sprintf("%d:%d", result.DocumentID, result.Seq)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, result)
		if len(merged) >= limit {
			break
		}
	}
	return merged
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Uploaded.After(results[j].Uploaded)
	})
}

func (s *Service) ListDocuments(ctx context.Context, ownerID uint64) ([]DocumentRecord, error) {
	if s.db == nil {
		return nil, errors.New("knowledge: database connection is not configured")
	}
	var docs []Document
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}

	counts := make(map[uint64]int)
	if len(docs) > 0 {
		var rows []struct {
			DocumentID uint64
			Count      int
		}
		if err := s.db.WithContext(ctx).
			Model(&Chunk{}).
			Select("document_id, COUNT(*) as count").
			Where("owner_id = ?", ownerID).
			Group("document_id").
			Find(&rows).Error; err == nil {
			for _, row := range rows {
				counts[row.DocumentID] = row.Count
			}
		}
	}

	records := make([]DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, buildDocumentRecord(doc, counts[doc.ID], false))
	}
	return records, nil
}

func (s *Service) GetDocument(ctx context.Context, docID uint64) (*DocumentRecord, error) {
	if s.db == nil {
		return nil, errors.New("knowledge: database connection is not configured")
	}
	var doc Document
	if err := s.db.WithContext(ctx).Take(&doc, "id = ?", docID).Error; err != nil {
		return nil, err
	}
	var count int64
	_ = s.db.WithContext(ctx).
		Model(&Chunk{}).
		Where("document_id = ?", doc.ID).
		Count(&count)
	record := buildDocumentRecord(doc, int(count), true)
	return &record, nil
}

// UpdateDocument edits metadata and, when content changes, reindexes.
func (s *Service) UpdateDocument(ctx context.Context, docID uint64, changes DocumentUpdate) (*DocumentRecord, error) {
	if s.db == nil {
		return nil, errors.New("knowledge: database connection is not configured")
	}

	var doc Document
	if err := s.db.WithContext(ctx).Take(&doc, "id = ?", docID).Error; err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if changes.Title != nil {
		title := strings.TrimSpace(*changes.Title)
		if title == "" {
			return nil, errors.New("knowledge: title cannot be empty")
		}
		doc.Title = title
		updates["title"] = title
	}
	if changes.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*changes.Category))
		if !ValidCategory(category) {
			return nil, fmt.Errorf("knowledge: unknown category %q", category)
		}
		doc.Category = category
		updates["category"] = category
	}
	if changes.Tags != nil {
		doc.Tags = tagsToJSON(normalizeTags(*changes.Tags))
		updates["tags"] = doc.Tags
	}

	contentChanged := false
	if changes.Content != nil {
		content := NormalizeText(*changes.Content)
		if content == "" {
			return nil, ErrEmptyContent
		}
		contentChanged = content != doc.Content
		doc.Content = content
		updates["content"] = content
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := s.db.WithContext(ctx).
			Model(&Document{}).
			Where("id = ?", docID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	needsReindex := contentChanged || changes.Category != nil || changes.Tags != nil
	chunkCount := 0
	if needsReindex {
		count, _, err := s.indexDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		chunkCount = count
	} else {
		var count int64
		_ = s.db.WithContext(ctx).
			Model(&Chunk{}).
			Where("document_id = ?", docID).
			Count(&count)
		chunkCount = int(count)
	}

	record := buildDocumentRecord(doc, chunkCount, true)
	return &record, nil
}

// DeleteDocument removes the document, its chunks, and its vector points.
// The stored object key, if any, is returned so the caller can drop the blob.
func (s *Service) DeleteDocument(ctx context.Context, docID uint64) (string, error) {
	if s.db == nil {
		return "", errors.New("knowledge: database connection is not configured")
	}

	objectKey := ""
	var vectorIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc Document
		if err := tx.Take(&doc, "id = ?", docID).Error; err != nil {
			return err
		}
		if doc.ObjectKey != nil {
			objectKey = *doc.ObjectKey
		}

		if err := tx.Model(&Chunk{}).
			Where("document_id = ?", docID).
			Pluck("vector_id", &vectorIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Document{}, docID).Error
	})
	if err != nil {
		return "", err
	}

	// Point removal waits for the commit so a rolled-back delete keeps the
	// document fully searchable.
	if len(vectorIDs) > 0 && s.vectors != nil {
		if err := s.vectors.Delete(ctx, s.collection, vectorIDs); err != nil {
			log.Printf("knowledge: remove vector points for document %d: %v", docID, err)
		}
	}
	return objectKey, nil
}

func buildDocumentRecord(doc Document, chunkCount int, includeContent bool) DocumentRecord {
	record := DocumentRecord{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		Title:      doc.Title,
		Filename:   doc.Filename,
		ObjectKey:  doc.ObjectKey,
		Category:   doc.Category,
		Tags:       parseTags(doc.Tags),
		LocalOnly:  doc.LocalOnly,
		ChunkCount: chunkCount,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if includeContent {
		record.Content = doc.Content
	}
	return record
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[strings.ToLower(tag)] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[strings.ToLower(tag)]; !ok {
			return false
		}
	}
	return true
}

func tagsToJSON(tags []string) datatypes.JSON {
	normalized := normalizeTags(tags)
	if len(normalized) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, exists := seen[lower]; exists {
			continue
		}
		seen[lower] = struct{}{}
		result = append(result, trimmed)
	}
	sort.Strings(result)
	return result
}

func parseTags(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return normalizeTags(tags)
}

func toStringSlice(values []any) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if str, ok := value.(string); ok {
			trimmed := strings.TrimSpace(str)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
