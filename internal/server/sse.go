package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonathan/pain-assessment/internal/types"
)

// SSEWriter helps write Server-Sent Events. Every event is a single data line carrying
// a JSON object whose "event" field names it.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(ev types.StreamEvent) error {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteStatus sends a progress message
func (s *SSEWriter) WriteStatus(message string) error {
	return s.WriteEvent(types.StreamEvent{Event: types.EventStatus, Message: message})
}

// WriteDelta sends one chunk of summary text
func (s *SSEWriter) WriteDelta(text string) error {
	return s.WriteEvent(types.StreamEvent{Event: types.EventDelta, Text: text})
}

// WriteComplete sends the terminal success event
func (s *SSEWriter) WriteComplete(assessmentID, sessionID, aiSummary string, urgency types.Urgency) {
	s.WriteEvent(types.StreamEvent{ //nolint:errcheck
		Event:                types.EventComplete,
		AssessmentID:         assessmentID,
		SessionID:            sessionID,
		AISummary:            aiSummary,
		SystemRecommendation: urgency,
	})
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent(types.StreamEvent{Event: types.EventError, Message: message}) //nolint:errcheck
}
