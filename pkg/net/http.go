package net

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 512

// ErrorURLNotFound is returned when the remote resource does not exist.
var ErrorURLNotFound = errors.New("URL not found")

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response (status: %d - %s): %s %s", e.StatusCode, e.Status, e.URL, e.Body)
}

// GetJSON retrieves the HTTP content and decodes it into the passed target.
func GetJSON[T any](ctx context.Context, c *http.Client, url string, target *T) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(c, req, target)
}

// PostJSON encodes body, posts it and decodes the response into target.
func PostJSON[T any](ctx context.Context, c *http.Client, url string, body any, target *T) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("error creating HTTP Post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doJSON(c, req, target)
}

func doJSON[T any](c *http.Client, req *http.Request, target *T) error {
	resp, err := do(c, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding content: %w", err)
	}
	return nil
}

func do(c *http.Client, req *http.Request) (*http.Response, error) {
	if c == nil {
		var err error
		if c, err = GetHTTPClient(); err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", clientAgent)

	resp, err := c.Do(req) //nolint:gosec // URL comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("error executing %s request: %w", req.Method, err)
	}
	PrintHTTPResponse(resp)

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrorURLNotFound
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        req.URL.String(),
			Body:       string(body),
		}
	}

	return resp, nil
}
