package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultLLMBaseURL = "https://api.openai.com/v1"
	defaultLLMModelID = "gpt-4o-mini"

	defaultRenderAttempts = 3
	defaultRenderBackoff  = time.Second
)

const systemPrompt = "You are a groundwater information assistant for Indian states, " +
	"districts, and assessment units. Answer only from the evidence provided. " +
	"Quote numeric values exactly as given, including units and assessment years. " +
	"When evidence is marked as unverified web content, say so. " +
	"If the evidence does not answer the question, say what is missing instead of guessing."

// Renderer turns a composed prompt into the final natural-language answer.
type Renderer interface {
	Render(ctx context.Context, prompt string) (string, error)
}

// ChatClient calls an OpenAI-compatible chat completions endpoint with
// bounded retries on transport errors, rate limits, and provider 5xx.
type ChatClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	attempts   int
	backoff    time.Duration
}

// NewChatClientFromEnv constructs a ChatClient from LLM_API_KEY, LLM_BASE_URL,
// and LLM_MODEL_ID.
func NewChatClientFromEnv() (*ChatClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("answer: LLM_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultLLMBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("answer: invalid LLM base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("LLM_MODEL_ID"))
	if modelID == "" {
		modelID = defaultLLMModelID
	}

	return &ChatClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelID:    modelID,
		attempts:   defaultRenderAttempts,
		backoff:    defaultRenderBackoff,
	}, nil
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string                  `json:"model"`
	Stream   bool                    `json:"stream"`
	Messages []chatCompletionMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

// Render sends the prompt and returns the assistant reply. Transient failures
// are retried with exponential backoff; a retriable error that survives all
// attempts is returned so the caller can fall back to its static answer.
func (c *ChatClient) Render(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", errors.New("answer: chat client is not configured")
	}
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", errors.New("answer: prompt cannot be empty")
	}

	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.backoff
	if backoff <= 0 {
		backoff = defaultRenderBackoff
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		content, retriable, err := c.complete(ctx, trimmed)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retriable {
			return "", err
		}
	}
	return "", lastErr
}

func (c *ChatClient) complete(ctx context.Context, prompt string) (string, bool, error) {
	payload := chatCompletionRequest{
		Model:  c.modelID,
		Stream: false,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return "", false, fmt.Errorf("answer: encode request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", false, fmt.Errorf("answer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("answer: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		retriable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retriable, fmt.Errorf("answer: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", false, fmt.Errorf("answer: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", false, errors.New("answer: response contains no choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", false, errors.New("answer: response contains empty content")
	}
	return content, false, nil
}
