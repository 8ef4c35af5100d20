package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	ChunkSizeDefault     = 1000
	ChunkSizeMin         = 500
	ChunkSizeMax         = 2000
	ReaderRatePerMinute  = 6
	WebSearchHTTPTimeout = 10 * time.Second
)

type documentContextKey struct{}

func withDocument(ctx context.Context, doc Document) context.Context {
	return context.WithValue(ctx, documentContextKey{}, doc)
}

func documentFromContext(ctx context.Context) (Document, bool) {
	doc, ok := ctx.Value(documentContextKey{}).(Document)
	return doc, ok
}

// chunkText returns the index-th slice of text measured in runes, clamping
// index and size into range.
func chunkText(text string, index, size int) (segment string, idx, total int) {
	if size <= 0 || size > ChunkSizeMax {
		size = ChunkSizeDefault
	}
	if size < ChunkSizeMin {
		size = ChunkSizeMin
	}
	runes := []rune(text)
	total = (len(runes) + size - 1) / size
	if total == 0 {
		return "", 0, 0
	}
	if index < 0 {
		index = 0
	}
	if index >= total {
		index = total - 1
	}
	start := index * size
	end := start + size
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), index, total
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}
	if err := checkPublicHost(parsed.Hostname()); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "ctrlr-websearch/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}

	const maxBodySize = 512 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

var errNonPublicAddress = errors.New("refusing to fetch a non-public address")

// sharedAddressSpace is the carrier-grade NAT range, 100.64.0.0/10.
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func isPublicIP(ip net.IP) bool {
	switch {
	case ip == nil,
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// checkPublicHost rejects hosts that are obviously local before any lookup.
func checkPublicHost(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return errNonPublicAddress
	}
	if ip := net.ParseIP(host); ip != nil && !isPublicIP(ip) {
		return errNonPublicAddress
	}
	return nil
}

// newPublicHTTPClient only connects to public addresses. The check runs on
// the resolved address of every dial, redirects included.
func newPublicHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if !isPublicIP(net.ParseIP(host)) {
				return errNonPublicAddress
			}
			return nil
		},
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConns:        4,
		},
	}
}
