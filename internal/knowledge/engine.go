// Package knowledge provides the retrieval indexes behind the knowledge-base
// tools: adding documents, chunking them and ranking chunks for a query.
package knowledge

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"palette/internal/domain"
)

// IndexName derives the index identifier for a knowledge base and embedding
// model: "{kb}_{embedding}_{md5(kb)}" with both names lowercased.
func IndexName(kb, embeddingModel string) string {
	sum := md5.Sum([]byte(kb))
	return strings.ToLower(kb) + "_" + strings.ToLower(embeddingModel) + "_" + hex.EncodeToString(sum[:])
}

// Engine manages knowledge indexes and implements domain.Retriever.
type Engine struct {
	store     *Store
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     *Store
	ChunkSize int // words per chunk (default: 512)
	Overlap   int // overlapping words between chunks (default: 50)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
	}
}

// AddDocument chunks content and stores it under indexID. Re-adding identical
// content to the same index replaces the earlier copy.
func (e *Engine) AddDocument(ctx context.Context, indexID, name, mimeType, content string) (*domain.SourceDocument, error) {
	if indexID == "" {
		return nil, fmt.Errorf("index id is required")
	}
	hash := sha256.Sum256([]byte(indexID + "\x00" + content))
	docID := hex.EncodeToString(hash[:8])

	chunks := e.chunkText(content, docID)
	doc := domain.SourceDocument{
		ID:         docID,
		IndexID:    indexID,
		Name:       name,
		MimeType:   mimeType,
		Size:       int64(len(content)),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now(),
	}

	if err := e.store.AddDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	e.logger.Info("document added to knowledge base",
		"index", indexID, "name", name, "chunks", len(chunks), "size", len(content))
	return &doc, nil
}

// Search returns the k best-ranked chunks of indexID for query.
func (e *Engine) Search(ctx context.Context, indexID, query string, k int) ([]domain.Document, error) {
	if k <= 0 {
		k = 3
	}
	hits, err := e.store.Search(ctx, indexID, query, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", indexID, err)
	}
	docs := make([]domain.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, domain.Document{
			PageContent: h.Content,
			Metadata: map[string]any{
				"source":      h.DocName,
				"document_id": h.DocumentID,
				"chunk_index": h.ChunkIndex,
				"index":       indexID,
			},
		})
	}
	return docs, nil
}

func (e *Engine) ListDocuments(ctx context.Context, indexID string) ([]domain.SourceDocument, error) {
	return e.store.ListDocuments(ctx, indexID)
}

func (e *Engine) DeleteDocument(ctx context.Context, indexID, id string) error {
	return e.store.DeleteDocument(ctx, indexID, id)
}

// chunkText splits text into overlapping chunks of approximately chunkSize words.
func (e *Engine) chunkText(text, docID string) []domain.DocumentChunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []domain.DocumentChunk
	step := e.chunkSize - e.overlap

	for i := 0; i < len(words); i += step {
		end := i + e.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, domain.DocumentChunk{
			DocumentID: docID,
			Content:    strings.Join(words[i:end], " "),
			ChunkIndex: len(chunks),
			TokenCount: end - i,
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}
