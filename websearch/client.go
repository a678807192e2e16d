package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultMaxResults = 3

// Result is one external search hit offered as last-resort evidence.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Client queries a Serper-style web search API. An unconfigured client is
// valid: Search degrades to no results so the answer pipeline never depends
// on the key being present.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxResults int
}

func NewClientFromEnv() *Client {
	baseURL := strings.TrimSpace(os.Getenv("WEBSEARCH_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://google.serper.dev/search"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(os.Getenv("WEBSEARCH_API_KEY")),
		maxResults: defaultMaxResults,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Search returns up to maxResults hits. A disabled client or a failing
// provider yields (nil, nil): web evidence is optional by contract and the
// caller falls through to its static fallback.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if !c.Enabled() {
		return nil, nil
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(map[string]string{"q": trimmed}); err != nil {
		return nil, fmt.Errorf("websearch: encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("websearch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("websearch: request failed: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Printf("websearch: provider status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		return nil, nil
	}

	var decoded struct {
		Organic []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			Link    string `json:"link"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		log.Printf("websearch: decode response: %v", err)
		return nil, nil
	}

	results := make([]Result, 0, c.maxResults)
	for _, item := range decoded.Organic {
		title := strings.TrimSpace(item.Title)
		snippet := strings.TrimSpace(item.Snippet)
		if title == "" && snippet == "" {
			continue
		}
		results = append(results, Result{
			Title:   title,
			Snippet: snippet,
			URL:     strings.TrimSpace(item.Link),
		})
		if len(results) >= c.maxResults {
			break
		}
	}
	return results, nil
}
