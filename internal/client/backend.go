package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"ctrlr/internal/models"
)

// DefaultBackendURL is used when CTRLR_BACKEND_URL is unset.
const DefaultBackendURL = "http://localhost:3001"

// Backend is the relay as seen by the client.
type Backend interface {
	Convert(ctx context.Context, file File, targetFormat string) (string, error)
	Summarize(ctx context.Context, link, targetFormat string) (string, error)
	Chat(ctx context.Context, link, targetFormat, question string, history []models.ChatTurn) (string, error)
	// ResolveURL turns a relay-relative link into one a browser can open.
	ResolveURL(link string) string
}

// NetworkError is a transport failure talking to the relay.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ErrNoURL is returned when the relay answers without a result link.
var ErrNoURL = errors.New("No URL returned from server.")

// HTTPBackend talks to the relay over HTTP.
type HTTPBackend struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPBackend(baseURL string) *HTTPBackend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBackendURL
	}
	return &HTTPBackend{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Minute}}
}

type relayResponse struct {
	URL     string `json:"url"`
	Summary string `json:"summary"`
	Answer  string `json:"answer"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b *HTTPBackend) Convert(ctx context.Context, file File, targetFormat string) (string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", file.Name)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.WriteField("targetFormat", targetFormat)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	out, err := b.do(req, "upload")
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", ErrNoURL
	}
	return out.URL, nil
}

func (b *HTTPBackend) Summarize(ctx context.Context, link, targetFormat string) (string, error) {
	out, err := b.postJSON(ctx, "/summarize", map[string]any{"url": link, "targetFormat": targetFormat})
	if err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (b *HTTPBackend) Chat(ctx context.Context, link, targetFormat, question string, history []models.ChatTurn) (string, error) {
	if history == nil {
		history = []models.ChatTurn{}
	}
	out, err := b.postJSON(ctx, "/chat", map[string]any{
		"url":          link,
		"targetFormat": targetFormat,
		"question":     question,
		"history":      history,
	})
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (b *HTTPBackend) ResolveURL(link string) string {
	if u, err := url.Parse(link); err == nil && u.IsAbs() {
		return link
	}
	return b.BaseURL + "/" + strings.TrimLeft(link, "/")
}

func (b *HTTPBackend) postJSON(ctx context.Context, path string, payload any) (*relayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, strings.TrimPrefix(path, "/"))
}

func (b *HTTPBackend) do(req *http.Request, op string) (*relayResponse, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	var out relayResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errorMessage(&out, resp.StatusCode))
	}
	return &out, nil
}

// errorMessage prefers the error field, then message, then the status text.
func errorMessage(out *relayResponse, status int) string {
	switch {
	case out.Error != "":
		return out.Error
	case out.Message != "":
		return out.Message
	default:
		return http.StatusText(status)
	}
}
