package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	searchTimeout   = 15 * time.Second
	fetchMaxBytes   = 2 * 1024 * 1024
	userAgentString = "Palette/0.1"
	youtubeBase     = "https://www.youtube.com"
)

var videoIDPattern = regexp.MustCompile(`"videoId":"([A-Za-z0-9_-]{11})"`)

// YouTubeSearchTool finds video links by scraping the YouTube results page.
type YouTubeSearchTool struct {
	client     *http.Client
	baseURL    string
	maxResults int
}

func NewYouTubeSearchTool(client *http.Client, maxResults int) *YouTubeSearchTool {
	if client == nil {
		client = &http.Client{Timeout: searchTimeout}
	}
	if maxResults <= 0 {
		maxResults = 2
	}
	return &YouTubeSearchTool{client: client, baseURL: youtubeBase, maxResults: maxResults}
}

func (t *YouTubeSearchTool) Name() string { return "youtube_search" }
func (t *YouTubeSearchTool) Description() string {
	return "search for youtube videos associated with a person. the input to this tool should be a comma separated list, " +
		"the first part contains a person name and the second a number that is the maximum number of video results to return " +
		"aka num_results. the second part is optional"
}
func (t *YouTubeSearchTool) Parameters() map[string]any {
	return singleInput("query[,num_results]")
}

func (t *YouTubeSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, n := parseSearchInput(ArgsString(args, InputKey), t.maxResults)
	if query == "" {
		return "", fmt.Errorf("missing argument: %s", InputKey)
	}

	endpoint := t.baseURL + "/results?search_query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("youtube returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	links := extractVideoLinks(string(body), n)
	if len(links) == 0 {
		return fmt.Sprintf("No videos found for: %s", query), nil
	}
	return "['" + strings.Join(links, "', '") + "']", nil
}

// parseSearchInput splits "query,n". A missing or malformed n yields def.
func parseSearchInput(input string, def int) (string, int) {
	input = strings.Trim(strings.TrimSpace(input), "\"'`")
	query, rest, found := strings.Cut(input, ",")
	query = strings.TrimSpace(query)
	if !found {
		return query, def
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 1 {
		return query, def
	}
	return query, n
}

func extractVideoLinks(page string, n int) []string {
	seen := make(map[string]bool)
	var links []string
	for _, m := range videoIDPattern.FindAllStringSubmatch(page, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		links = append(links, youtubeBase+"/watch?v="+m[1])
		if len(links) == n {
			break
		}
	}
	return links
}
