package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kelsos/safes-dump/internal/logger"
)

// maxErrorBody caps how much of a failed response body ends up in an error message
const maxErrorBody = 512

// FetchWithValidation makes an HTTP request and decodes a JSON response into T.
// A nil httpClient falls back to http.DefaultClient.
func FetchWithValidation[T any](ctx context.Context, httpClient *http.Client, url string, method string, body interface{}) (*T, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	start := time.Now()
	logger.Debug("Starting %s request to %s", method, url)

	var requestBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request body: %w", err)
		}
		requestBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Error("Request to %s failed after %v: %v", url, time.Since(start), err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("Request to %s completed in %v with status %d", url, time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Error("%s: HTTP error %d: %s", url, resp.StatusCode, string(bodyBytes))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Error("%s: Error decoding response: %v", url, err)
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

// HTTPError is returned for any non-200 response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}
