package tool

import (
	"context"
	"fmt"
	"strings"

	"palette/internal/domain"
)

// RetrieverTool answers questions from one knowledge index. Its structured
// result is the list of matching documents.
type RetrieverTool struct {
	name        string
	description string
	indexID     string
	k           int
	retriever   domain.Retriever
}

type RetrieverConfig struct {
	Name        string
	Description string
	IndexID     string
	K           int
	Retriever   domain.Retriever
}

func NewRetrieverTool(cfg RetrieverConfig) *RetrieverTool {
	if cfg.K <= 0 {
		cfg.K = 3
	}
	return &RetrieverTool{
		name:        cfg.Name,
		description: cfg.Description,
		indexID:     cfg.IndexID,
		k:           cfg.K,
		retriever:   cfg.Retriever,
	}
}

// Descriptions of the two built-in knowledge bases.
const (
	CEIToolName = "CEI Customer Engagement Incentive"
	CEIToolDesc = "This tool can be used to answer questions related to CEI (Customer Engagement Incentive), which is a program " +
		"with AWS's internal partner teams. It offers a set of guidelines to motivate partners to assist AWS in engaging with clients."

	DTHToolName = "DTH Data Transfer Hub"
	DTHToolDesc = "This tool can be used to answer questions related to DTH (i.e., Data Transfer Hub ), which is an AWS solution " +
		"designed to assist users with cross-border (between China and overseas) data transfer for object storage, such as " +
		"transferring data from an S3 bucket in the US region to an S3 bucket in the China region. It also facilitates data " +
		"migration from other cloud platforms like Alibaba Cloud and Tencent Cloud to AWS S3."
)

func (t *RetrieverTool) Name() string        { return t.name }
func (t *RetrieverTool) Description() string { return t.description }
func (t *RetrieverTool) IndexID() string     { return t.indexID }
func (t *RetrieverTool) Parameters() map[string]any {
	return singleInput("query to look up in " + t.name)
}

func (t *RetrieverTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.search(ctx, args)
}

func (t *RetrieverTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	docs, err := t.search(ctx, args)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "No relevant documents found.", nil
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return strings.Join(parts, "\n\n"), nil
}

func (t *RetrieverTool) search(ctx context.Context, args map[string]any) ([]domain.Document, error) {
	query := strings.TrimSpace(ArgsString(args, InputKey))
	if query == "" {
		return nil, fmt.Errorf("missing argument: %s", InputKey)
	}
	docs, err := t.retriever.Search(ctx, t.indexID, query, t.k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", t.indexID, err)
	}
	return docs, nil
}
