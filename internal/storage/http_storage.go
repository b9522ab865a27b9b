package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxFetchAttempts = 3
	maxRedirects     = 3
)

// ErrRedirectBlocked is returned when a redirect target fails the fetcher's
// URL check. It is never retried.
var ErrRedirectBlocked = errors.New("redirect target not allowed")

// URLCheck vets a URL before the fetcher follows it
type URLCheck func(rawURL string) error

type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPImageFetcher downloads raw image bytes for URL based analysis
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
	backoff  time.Duration
}

// NewHTTPImageFetcher creates an HTTP image fetcher. Responses larger than
// maxBytes are rejected. Every redirect target is passed through
// allowRedirect; nil follows any redirect.
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64, allowRedirect URLCheck) *HTTPImageFetcher {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (limit: %d)", maxRedirects)
				}
				if allowRedirect != nil {
					if err := allowRedirect(req.URL.String()); err != nil {
						return fmt.Errorf("%w: %s: %v", ErrRedirectBlocked, req.URL.Redacted(), err)
					}
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		backoff:  time.Second,
	}
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Image-Analyser/1.0")

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		attempts++
		if attempt > 0 {
			// Linear backoff: 1s, 2s
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch image: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * h.backoff):
			}
		}

		body, retry, err := h.fetchOnce(req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("failed to fetch image after %d attempt(s): %w", attempts, lastErr)
}

// fetchOnce performs a single request. The boolean reports whether the
// failure is transient: network errors and 5xx are, 4xx is not.
func (h *HTTPImageFetcher) fetchOnce(req *http.Request) ([]byte, bool, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, !errors.Is(err, ErrRedirectBlocked), err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(body)) > h.maxBytes {
		return nil, false, fmt.Errorf("image exceeds %d bytes", h.maxBytes)
	}
	if len(body) == 0 {
		return nil, false, fmt.Errorf("empty image body")
	}
	return body, false, nil
}
