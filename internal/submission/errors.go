package submission

import (
	"errors"
	"fmt"
)

// ErrConsumerUsed is returned when Submit is called twice on one Consumer.
var ErrConsumerUsed = errors.New("consumer already used for a submission")

// Messages surfaced in State.Error.
const (
	msgNoResult      = "no result received from summarization service"
	msgTimeout       = "timed out waiting for summary"
	msgServerError   = "Assessment submission failed."
	msgConnection    = "connection to summarization service lost"
	msgUnreachable   = "could not reach summarization service"
	msgEmptyBody     = "summarization service returned no stream"
	msgEventTooLarge = "summarization stream sent an oversized event"
)

// StreamError describes a terminal failure of one submission attempt.
type StreamError struct {
	Phase      Phase
	StatusCode int
	Message    string
	Err        error
}

func (e *StreamError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("submission failed during %s (status %d): %s", e.Phase, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("submission failed during %s: %s: %v", e.Phase, e.Message, e.Err)
	default:
		return fmt.Sprintf("submission failed during %s: %s", e.Phase, e.Message)
	}
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
