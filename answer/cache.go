package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	answerCacheTTL       = 5 * time.Minute
	answerCacheOpTimeout = 500 * time.Millisecond
)

// answerCache remembers recent answers per session so repeated questions do
// not rerun the tier pipeline. A nil client disables it; every cache error
// is swallowed because caching is never allowed to fail a request.
type answerCache struct {
	client *redis.Client
}

func newAnswerCache(client *redis.Client) *answerCache {
	return &answerCache{client: client}
}

func (c *answerCache) key(sessionID, question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return "answer:recent:" + sessionID + ":" + hex.EncodeToString(sum[:8])
}

func (c *answerCache) Get(ctx context.Context, sessionID, question string) *Answer {
	if c == nil || c.client == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, answerCacheOpTimeout)
	defer cancel()

	raw, err := c.client.Get(opCtx, c.key(sessionID, question)).Bytes()
	if err != nil {
		return nil
	}
	var cached Answer
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	return &cached
}

func (c *answerCache) Set(ctx context.Context, sessionID, question string, answer *Answer) {
	if c == nil || c.client == nil || answer == nil {
		return
	}
	// Fallback answers reflect a transient outage; caching them would keep
	// serving the apology after the renderer recovers.
	if answer.Fallback {
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, answerCacheOpTimeout)
	defer cancel()

	_ = c.client.Set(opCtx, c.key(sessionID, question), raw, answerCacheTTL).Err()
}
