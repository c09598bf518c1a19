package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Attempts per request while Discord answers 429
const maxRetries = 3

// do sends one request, waiting out 429s per Retry-After. On success the
// response body is returned read; any other status is an error.
func do(ctx context.Context, client *http.Client, method, url, auth string, body []byte) ([]byte, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryAfter(resp.Header.Get("Retry-After"))):
			}
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, fmt.Errorf("discord returned status %d", resp.StatusCode)
		case readErr != nil:
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		default:
			return data, nil
		}
	}
	return nil, fmt.Errorf("discord rate limited after %d attempts", maxRetries)
}

// retryAfter parses Retry-After seconds (fractional allowed), defaulting to one second
func retryAfter(header string) time.Duration {
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds < 0 {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}
