package net

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// GetText downloads url and returns the response body. Bodies larger than
// maxBytes are rejected when maxBytes is positive.
func GetText(ctx context.Context, c *http.Client, url string, maxBytes int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	resp, err := do(c, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("error reading downloaded content: %w", err)
	}
	if maxBytes > 0 && int64(len(b)) > maxBytes {
		return "", fmt.Errorf("content of %s exceeds %d bytes", url, maxBytes)
	}
	return string(b), nil
}
