package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ctrlr/internal/config"
	"ctrlr/internal/models"
)

// Remote forwards summarize and chat calls to an external AI endpoint that
// speaks the same JSON contract as this server.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRemote(cfg config.ProviderConfig) (*Remote, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("remote assistant base_url is required")
	}
	return &Remote{
		baseURL: base,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 90 * time.Second},
	}, nil
}

type remoteRequest struct {
	URL          string            `json:"url"`
	TargetFormat string            `json:"targetFormat"`
	Question     string            `json:"question,omitempty"`
	History      []models.ChatTurn `json:"history,omitempty"`
}

type remoteResponse struct {
	Summary string `json:"summary"`
	Answer  string `json:"answer"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r *Remote) Summarize(ctx context.Context, doc Document) (string, error) {
	if strings.TrimSpace(doc.URL) == "" {
		return "", ErrNoDocument
	}
	resp, err := r.post(ctx, "/summarize", remoteRequest{URL: doc.URL, TargetFormat: doc.TargetFormat})
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (r *Remote) Chat(ctx context.Context, doc Document, question string, history []models.ChatTurn) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	resp, err := r.post(ctx, "/chat", remoteRequest{
		URL:          doc.URL,
		TargetFormat: doc.TargetFormat,
		Question:     question,
		History:      history,
	})
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

func (r *Remote) post(ctx context.Context, path string, payload remoteRequest) (*remoteResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote assistant: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read remote response: %w", err)
	}
	var out remoteResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("remote assistant: %s", msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode remote response: %w", decodeErr)
	}
	return &out, nil
}
