package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonathan/pain-assessment/internal/types"
)

// StreamPath is the backend route that answers with an event stream.
const StreamPath = "/api/assessment/submit-stream"

// HTTPTransport posts the payload as JSON and returns the streaming response.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the default client. The client should not set a Timeout because
// it would cut the stream; the consumer bounds the attempt through the context.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = c }
}

// NewHTTPTransport targets baseURL, e.g. "http://localhost:8080".
func NewHTTPTransport(baseURL string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open sends the submission request.
func (t *HTTPTransport) Open(ctx context.Context, payload types.SubmissionPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+StreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send submission: %w", err)
	}
	return resp, nil
}
