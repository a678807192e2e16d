package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// VectorPoint is one chunk representation stored in the vector index.
type VectorPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// VectorHit is one scored result from a similarity search.
type VectorHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// VectorIndex abstracts the similarity store so tests can run against an
// in-memory double.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	Upsert(ctx context.Context, collection string, points []VectorPoint) error
	Delete(ctx context.Context, collection string, pointIDs []string) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]VectorHit, error)
}

type qdrantClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	vectorSize int
}

func newQdrantClientFromEnv() (*qdrantClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("QDRANT_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("knowledge: invalid Qdrant URL %q", baseURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("knowledge: parse Qdrant URL: %w", err)
	}

	vectorSize := 0
	if raw := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			vectorSize = parsed
		}
	}

	return &qdrantClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		vectorSize: vectorSize,
	}, nil
}

func (c *qdrantClient) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	body := &bytes.Buffer{}
	if payload != nil {
		if err := json.NewEncoder(body).Encode(payload); err != nil {
			return fmt.Errorf("knowledge: encode qdrant payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("knowledge: create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("knowledge: qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("knowledge: qdrant status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("knowledge: decode qdrant response: %w", err)
		}
	}
	return nil
}

func (c *qdrantClient) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if c == nil {
		return errors.New("knowledge: qdrant client is not configured")
	}
	size := vectorSize
	if size <= 0 {
		size = c.vectorSize
	}
	if size <= 0 {
		return errors.New("knowledge: vector size must be positive")
	}

	payload := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}
	endpoint := fmt.Sprintf("%s/collections/%s", c.baseURL, url.PathEscape(name))
	return c.do(ctx, http.MethodPut, endpoint, payload, nil)
}

func (c *qdrantClient) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	if c == nil {
		return errors.New("knowledge: qdrant client is not configured")
	}
	if len(points) == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("%s/collections/%s/points", c.baseURL, url.PathEscape(collection))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"points": points}, nil)
}

func (c *qdrantClient) Delete(ctx context.Context, collection string, pointIDs []string) error {
	if c == nil {
		return errors.New("knowledge: qdrant client is not configured")
	}
	if len(pointIDs) == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("%s/collections/%s/points", c.baseURL, url.PathEscape(collection))
	return c.do(ctx, http.MethodDelete, endpoint, map[string]any{"points": pointIDs}, nil)
}

func (c *qdrantClient) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]VectorHit, error) {
	if c == nil {
		return nil, errors.New("knowledge: qdrant client is not configured")
	}
	if len(vector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	payload := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		payload["filter"] = filter
	}

	var decoded struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	endpoint := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, url.PathEscape(collection))
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &decoded); err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(decoded.Result))
	for _, item := range decoded.Result {
		hits = append(hits, VectorHit{
			ID:      stringifyPointID(item.ID),
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return hits, nil
}

func stringifyPointID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
