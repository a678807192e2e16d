package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEmbedAttempts = 3
	defaultEmbedBackoff  = 500 * time.Millisecond
)

// Embedder computes similarity representations for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type httpEmbedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	maxBatch   int
	expectDim  int
	attempts   int
	backoff    time.Duration
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewHTTPEmbedderFromEnv builds an embedder against any OpenAI-compatible
// /embeddings endpoint. EMBEDDING_API_KEY falls back to LLM_API_KEY so a
// single-provider deployment only needs one key.
func NewHTTPEmbedderFromEnv() (Embedder, error) {
	apiKey := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	}
	if apiKey == "" {
		return nil, errors.New("knowledge: embedding API key is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL"))
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("knowledge: invalid embedding base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_ID"))
	if modelID == "" {
		modelID = "text-embedding-3-small"
	}

	maxBatch := 16
	if raw := strings.TrimSpace(os.Getenv("EMBEDDING_MAX_BATCH")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			maxBatch = parsed
		}
	}

	expectDim := 0
	if raw := strings.TrimSpace(os.Getenv("EMBEDDING_VECTOR_DIM")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			expectDim = parsed
		}
	}
	if expectDim == 0 {
		if raw := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				expectDim = parsed
			}
		}
	}

	return &httpEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelID:    modelID,
		maxBatch:   maxBatch,
		expectDim:  expectDim,
		attempts:   defaultEmbedAttempts,
		backoff:    defaultEmbedBackoff,
	}, nil
}

func (e *httpEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if e == nil {
		return nil, errors.New("knowledge: embedder is not configured")
	}
	sanitized := make([]string, 0, len(inputs))
	for _, item := range inputs {
		if strings.TrimSpace(item) == "" {
			continue
		}
		sanitized = append(sanitized, item)
	}
	if len(sanitized) == 0 {
		return nil, nil
	}

	maxBatch := e.maxBatch
	if maxBatch <= 0 {
		maxBatch = 16
	}

	var results [][]float32
	for start := 0; start < len(sanitized); start += maxBatch {
		end := start + maxBatch
		if end > len(sanitized) {
			end = len(sanitized)
		}
		vectors, err := e.embedBatchWithRetry(ctx, sanitized[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}
	return results, nil
}

// embedBatchWithRetry retries transient failures with exponential backoff.
// Context cancellation stops the retry loop immediately.
func (e *httpEmbedder) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	attempts := e.attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := e.backoff
	if backoff <= 0 {
		backoff = defaultEmbedBackoff
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		vectors, err := e.embedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *httpEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload := embeddingRequest{
		Model: e.modelID,
		Input: batch,
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("knowledge: encode embedding payload: %w", err)
	}

	endpoint := e.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("knowledge: create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("knowledge: embedding API status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("knowledge: decode embedding response: %w", err)
	}

	if len(decoded.Data) != len(batch) {
		return nil, fmt.Errorf("knowledge: embedding response count mismatch (expected %d, got %d)", len(batch), len(decoded.Data))
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, item := range decoded.Data {
		vector := make([]float32, 0, len(item.Embedding))
		for _, value := range item.Embedding {
			vector = append(vector, float32(value))
		}
		if e.expectDim > 0 && len(vector) != e.expectDim {
			return nil, fmt.Errorf("knowledge: embedding length %d does not match expected %d", len(vector), e.expectDim)
		}
		vectors[i] = vector
	}

	return vectors, nil
}
