package tool

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	arxivDefaultBase = "https://export.arxiv.org/api/query"
	arxivMaxChars    = 4000
)

// ArxivTool searches arXiv through its Atom API.
type ArxivTool struct {
	client     *http.Client
	baseURL    string
	maxResults int
}

func NewArxivTool(client *http.Client, baseURL string, maxResults int) *ArxivTool {
	if client == nil {
		client = &http.Client{Timeout: searchTimeout}
	}
	if baseURL == "" {
		baseURL = arxivDefaultBase
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	return &ArxivTool{client: client, baseURL: baseURL, maxResults: maxResults}
}

func (t *ArxivTool) Name() string { return "arxiv" }
func (t *ArxivTool) Description() string {
	return "A wrapper around Arxiv.org Useful for when you need to answer questions about Physics, Mathematics, " +
		"Computer Science, Quantitative Biology, Quantitative Finance, Statistics, Electrical Engineering, and Economics " +
		"from scientific articles on arxiv.org. Input should be a search query."
}
func (t *ArxivTool) Parameters() map[string]any {
	return singleInput("search query")
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

func (t *ArxivTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(ArgsString(args, InputKey))
	if query == "" {
		return "", fmt.Errorf("missing argument: %s", InputKey)
	}

	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", fmt.Sprint(t.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("arxiv request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arxiv returned HTTP %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, fetchMaxBytes)).Decode(&feed); err != nil {
		return "", fmt.Errorf("parse arxiv feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return "No good Arxiv Result was found", nil
	}

	docs := make([]string, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		names := make([]string, len(e.Authors))
		for i, a := range e.Authors {
			names[i] = a.Name
		}
		published := e.Published
		if len(published) >= 10 {
			published = published[:10]
		}
		docs = append(docs, fmt.Sprintf("Published: %s\nTitle: %s\nAuthors: %s\nSummary: %s",
			published, collapseSpace(e.Title), strings.Join(names, ", "), collapseSpace(e.Summary)))
	}

	out := strings.Join(docs, "\n\n")
	if len(out) > arxivMaxChars {
		out = out[:arxivMaxChars]
	}
	return out, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
