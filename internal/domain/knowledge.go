package domain

import (
	"context"
	"time"
)

// Document is a retrieved passage with its source metadata.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// Retriever looks up the top-k passages for a query in a named index.
type Retriever interface {
	Search(ctx context.Context, indexID, query string, k int) ([]Document, error)
}

// SourceDocument is a file ingested into a knowledge index.
type SourceDocument struct {
	ID         string    `json:"id"`
	IndexID    string    `json:"index_id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type DocumentChunk struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	TokenCount int    `json:"token_count"`
}
