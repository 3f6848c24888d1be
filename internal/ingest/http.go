package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxRecognizerResponse bounds how much of a recognizer reply is read.
const maxRecognizerResponse = 1 << 20

// HTTPRecognizer posts payloads to an external OCR, speech or document text
// service and expects a JSON reply of the form {"text": "..."}.
type HTTPRecognizer struct {
	httpClient  *http.Client
	url         string
	contentType string
}

// NewHTTPRecognizer creates a recognizer for the service at url.
func NewHTTPRecognizer(url, contentType string, timeout time.Duration) *HTTPRecognizer {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPRecognizer{
		url:         url,
		contentType: contentType,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Recognize sends the payload and returns the recognized text.
func (r *HTTPRecognizer) Recognize(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", r.contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecognizerResponse))
	if err != nil {
		return "", fmt.Errorf("failed to read recognizer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognizer error (status %d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse recognizer response: %w", err)
	}
	return out.Text, nil
}
