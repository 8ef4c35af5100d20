// Package convertapi is a small client for the ConvertAPI REST conversion endpoint.
package convertapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"ctrlr/internal/config"
)

// ErrNoOutputURL is returned when a conversion succeeds without a downloadable file.
var ErrNoOutputURL = errors.New("ConvertAPI returned no output URL")

// APIError is a non-2xx response from ConvertAPI.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("convertapi: status %d", e.StatusCode)
	}
	return fmt.Sprintf("convertapi: %s (status %d)", e.Message, e.StatusCode)
}

// Client converts local files through ConvertAPI and returns the hosted result URL.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func New(cfg config.ConvertAPIConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("convertapi secret is required (set CONVERTAPI_SECRET)")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://v2.convertapi.com"
	}
	return &Client{
		baseURL: base,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}, nil
}

type convertResponse struct {
	ConversionCost int `json:"ConversionCost"`
	Files          []struct {
		FileName string `json:"FileName"`
		FileExt  string `json:"FileExt"`
		FileSize int64  `json:"FileSize"`
		// json matching is case-insensitive, so "url" is accepted too
		URL string `json:"Url"`
	} `json:"Files"`
}

type errorResponse struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

// Convert uploads filePath as sourceExt and asks for targetFormat, keeping the
// result stored on ConvertAPI so it can be fetched by URL.
func (c *Client) Convert(ctx context.Context, filePath, sourceExt, targetFormat string) (string, error) {
	if sourceExt == "" || targetFormat == "" {
		return "", fmt.Errorf("bad formats src=%s dst=%s", sourceExt, targetFormat)
	}
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("File", filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.WriteField("StoreFile", "true")
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	endpoint := fmt.Sprintf("%s/convert/%s/to/%s", c.baseURL, url.PathEscape(sourceExt), url.PathEscape(targetFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("convert request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read convert response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil {
			apiErr.Code = er.Code
			apiErr.Message = er.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return "", apiErr
	}

	var out convertResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode convert response: %w", err)
	}
	if len(out.Files) == 0 || out.Files[0].URL == "" {
		return "", ErrNoOutputURL
	}
	return out.Files[0].URL, nil
}
