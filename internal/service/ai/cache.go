package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"ctrlr/internal/models"
	"ctrlr/internal/redis"
)

// cachedAssistant keeps summaries in redis keyed by artifact URL and format.
// Cache errors are logged and never fail the request.
type cachedAssistant struct {
	next   Assistant
	client *redis.Client
	ttl    time.Duration
}

// WithSummaryCache wraps next so repeated summaries of the same artifact are served from redis.
func WithSummaryCache(next Assistant, client *redis.Client, ttl time.Duration) Assistant {
	if client == nil {
		return next
	}
	return &cachedAssistant{next: next, client: client, ttl: ttl}
}

func summaryKey(doc Document) string {
	sum := sha256.Sum256([]byte(doc.URL + "|" + doc.TargetFormat))
	return "summary:" + hex.EncodeToString(sum[:16])
}

func (c *cachedAssistant) Summarize(ctx context.Context, doc Document) (string, error) {
	key := summaryKey(doc)
	cached, err := c.client.Get(ctx, key)
	switch {
	case err == nil && cached != "":
		return cached, nil
	case err != nil && !errors.Is(err, redis.ErrCacheMiss):
		logf("load summary cache failed: %v", err)
	}

	summary, err := c.next.Summarize(ctx, doc)
	if err != nil {
		return "", err
	}
	if summary != "" {
		if err := c.client.Set(ctx, key, summary, c.ttl); err != nil {
			logf("store summary cache failed: %v", err)
		}
	}
	return summary, nil
}

func (c *cachedAssistant) Chat(ctx context.Context, doc Document, question string, history []models.ChatTurn) (string, error) {
	return c.next.Chat(ctx, doc, question, history)
}
