package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ctrlr/internal/config"
	"ctrlr/internal/models"
	"ctrlr/internal/redis"
)

// Document identifies a converted file the assistant should talk about.
type Document struct {
	URL          string
	TargetFormat string
	// LocalPath is set when the file is mirrored on this host.
	LocalPath string
}

// Assistant produces summaries and answers about converted files.
type Assistant interface {
	Summarize(ctx context.Context, doc Document) (string, error)
	Chat(ctx context.Context, doc Document, question string, history []models.ChatTurn) (string, error)
}

// TextExtractor produces a plain-text rendition of a stored file.
type TextExtractor interface {
	TextRendition(ctx context.Context, filePath string) (string, error)
}

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNoDocument    = errors.New("document url is required")
)

// New builds the assistant selected in cfg, or returns nil when none is configured.
// rdb and extractor are optional.
func New(ctx context.Context, cfg *config.Config, rdb *redis.Client, extractor TextExtractor) (Assistant, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Assistant.Provider))
	if provider == "" {
		return nil, nil
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		assistant Assistant
		err       error
	)
	switch provider {
	case "remote":
		assistant, err = NewRemote(provCfg)
	default:
		assistant, err = NewService(ctx, provider, cfg.Assistant, provCfg, extractor)
	}
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		assistant = WithSummaryCache(assistant, rdb, cfg.Redis.SummaryTTL())
	}
	return assistant, nil
}
