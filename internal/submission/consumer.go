// Package submission posts an assessment to the summarization backend and folds the
// returned event stream into a final result.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Phase is the consumer's position in the submission state machine.
type Phase string

// Submission phases. Complete and Failed are terminal.
const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseStreaming  Phase = "streaming"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// State is the consumer's view of one submission attempt.
type State struct {
	Phase        Phase         `json:"phase"`
	Status       string        `json:"status,omitempty"`
	Text         string        `json:"accumulatedText"`
	Urgency      types.Urgency `json:"urgency,omitempty"`
	AssessmentID string        `json:"assessmentId,omitempty"`
	SessionID    string        `json:"sessionId,omitempty"`
	Error        string        `json:"errorMessage,omitempty"`
}

// Transport opens the event stream for a payload.
type Transport interface {
	Open(ctx context.Context, payload types.SubmissionPayload) (*http.Response, error)
}

// Consumer defaults.
const (
	DefaultReadTimeout = 90 * time.Second
	DefaultChunkSize   = 4096
)

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger for skipped events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

// WithReadTimeout bounds the whole attempt from connect to the terminal event.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Consumer) { c.readTimeout = d }
}

// WithChunkSize sets the size of each transport read.
func WithChunkSize(n int) Option {
	return func(c *Consumer) { c.chunkSize = n }
}

// WithMaxEventSize caps a single buffered event.
func WithMaxEventSize(n int) Option {
	return func(c *Consumer) { c.maxEventSize = n }
}

// WithOnUpdate registers an observer called after every applied change, in order.
func WithOnUpdate(fn func(State)) Option {
	return func(c *Consumer) { c.onUpdate = fn }
}

// WithOnComplete registers the finalization callback. It runs at most once.
func WithOnComplete(fn func(State)) Option {
	return func(c *Consumer) { c.onComplete = fn }
}

// Consumer runs one submission attempt. Create a new Consumer per attempt.
type Consumer struct {
	logger       *slog.Logger
	readTimeout  time.Duration
	chunkSize    int
	maxEventSize int
	onUpdate     func(State)
	onComplete   func(State)

	completeOnce sync.Once

	mu       sync.Mutex
	state    State
	used     bool
	released bool
	body     io.ReadCloser
	cancel   context.CancelFunc
}

type outcome struct {
	state State
	err   error
}

// NewConsumer returns an idle Consumer.
func NewConsumer(opts ...Option) *Consumer {
	c := &Consumer{
		logger:       slog.Default(),
		readTimeout:  DefaultReadTimeout,
		chunkSize:    DefaultChunkSize,
		maxEventSize: DefaultMaxEventSize,
		state:        State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit opens the stream through transport and consumes it until a terminal event, end of
// stream, timeout or cancellation. A *StreamError is returned for failures. On cancellation
// the state is left as last observed and the context error is returned.
func (c *Consumer) Submit(ctx context.Context, transport Transport, payload types.SubmissionPayload) (State, error) {
	c.mu.Lock()
	if c.used {
		st := c.state
		c.mu.Unlock()
		return st, ErrConsumerUsed
	}
	c.used = true
	c.state.Phase = PhaseConnecting
	st := c.state
	c.mu.Unlock()
	c.notify(st)

	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	released := c.released
	c.mu.Unlock()
	if released {
		return c.State(), context.Canceled
	}

	// The attempt runs apart from Submit so the deadline holds even when the transport
	// or its body ignores the context.
	done := make(chan outcome, 1)
	go func() {
		st, err := c.attempt(ctx, readCtx, transport, payload)
		done <- outcome{st, err}
	}()

	select {
	case out := <-done:
		return out.state, out.err
	case <-readCtx.Done():
	}
	select {
	case out := <-done:
		return out.state, out.err
	default:
	}
	c.closeBody()
	return c.classify(ctx, readCtx, msgConnection, readCtx.Err())
}

func (c *Consumer) attempt(ctx, readCtx context.Context, transport Transport, payload types.SubmissionPayload) (State, error) {
	resp, err := transport.Open(readCtx, payload)
	if err != nil {
		return c.classify(ctx, readCtx, msgUnreachable, err)
	}
	if resp == nil || resp.Body == nil {
		return c.fail(&StreamError{Message: msgEmptyBody})
	}
	defer resp.Body.Close()
	stop := context.AfterFunc(readCtx, func() { _ = resp.Body.Close() })
	defer stop()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(&StreamError{StatusCode: resp.StatusCode, Message: rejectionMessage(resp)})
	}

	c.mu.Lock()
	released := c.released
	c.body = resp.Body
	c.mu.Unlock()
	if released {
		return c.State(), context.Canceled
	}

	return c.consume(ctx, readCtx, resp.Body)
}

func (c *Consumer) consume(ctx, readCtx context.Context, body io.Reader) (State, error) {
	dec := &eventDecoder{maxSize: c.maxEventSize}
	buf := make([]byte, c.chunkSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			c.markStreaming()
			blocks, decErr := dec.feed(buf[:n])
			for _, block := range blocks {
				if done := c.dispatch(block); done {
					return c.result()
				}
			}
			if decErr != nil {
				return c.fail(&StreamError{Message: msgEventTooLarge, Err: decErr})
			}
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if rest := dec.rest(); rest != nil && c.dispatch(rest) {
				return c.result()
			}
			return c.fail(&StreamError{Message: msgNoResult})
		}
		return c.classify(ctx, readCtx, msgConnection, err)
	}
}

// classify maps a transport error to cancellation, timeout or connection failure.
func (c *Consumer) classify(ctx, readCtx context.Context, message string, err error) (State, error) {
	if ctx.Err() != nil {
		c.Release()
		return c.State(), ctx.Err()
	}
	if c.isReleased() {
		return c.State(), context.Canceled
	}
	if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
		return c.fail(&StreamError{Message: msgTimeout, Err: err})
	}
	return c.fail(&StreamError{Message: message, Err: err})
}

// Release stops the attempt. The stream body is closed, a pending Open is abandoned and no
// further event is applied.
func (c *Consumer) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.closeBody()
}

func (c *Consumer) closeBody() {
	c.mu.Lock()
	body := c.body
	c.mu.Unlock()
	if body != nil {
		_ = body.Close()
	}
}

func (c *Consumer) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Consumer) markStreaming() {
	c.mu.Lock()
	if c.released || c.state.Phase != PhaseConnecting {
		c.mu.Unlock()
		return
	}
	c.state.Phase = PhaseStreaming
	st := c.state
	c.mu.Unlock()
	c.notify(st)
}

// dispatch applies one event block and reports whether consumption should stop.
func (c *Consumer) dispatch(block []byte) bool {
	payload, ok := eventPayload(block)
	if !ok {
		return false
	}
	var ev types.StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.logger.Warn("Consumer.dispatch: skipping malformed event", "error", err, "data", truncate(string(payload), 200))
		return false
	}

	c.mu.Lock()
	if c.released || c.state.Phase.Terminal() {
		c.mu.Unlock()
		return true
	}

	switch ev.Event {
	case types.EventStatus:
		c.state.Status = ev.Message
	case types.EventDelta:
		c.state.Text += ev.Text
	case types.EventComplete:
		if ev.AISummary != "" {
			c.state.Text = ev.AISummary
		}
		if u, ok := types.ParseUrgency(string(ev.SystemRecommendation)); ok {
			c.state.Urgency = u
		} else if ev.SystemRecommendation != "" {
			c.logger.Warn("Consumer.dispatch: unknown urgency", "value", ev.SystemRecommendation)
		}
		c.state.AssessmentID = ev.AssessmentID
		c.state.SessionID = ev.SessionID
		c.state.Phase = PhaseComplete
	case types.EventError:
		msg := ev.Message
		if msg == "" {
			msg = msgServerError
		}
		c.state.Error = msg
		c.state.Phase = PhaseFailed
	default:
		c.mu.Unlock()
		c.logger.Debug("Consumer.dispatch: ignoring unknown event", "event", ev.Event)
		return false
	}
	st := c.state
	c.mu.Unlock()

	c.notify(st)
	if st.Phase == PhaseComplete {
		c.completeOnce.Do(func() {
			if c.onComplete != nil {
				c.onComplete(st)
			}
		})
	}
	return st.Phase.Terminal()
}

// result converts a terminal state into Submit's return values.
func (c *Consumer) result() (State, error) {
	st := c.State()
	if !st.Phase.Terminal() {
		return st, context.Canceled
	}
	return c.resultFor(st)
}

// fail moves to Failed unless the attempt was released or already finished.
func (c *Consumer) fail(e *StreamError) (State, error) {
	c.mu.Lock()
	if c.released {
		st := c.state
		c.mu.Unlock()
		return st, context.Canceled
	}
	if c.state.Phase.Terminal() {
		st := c.state
		c.mu.Unlock()
		return c.resultFor(st)
	}
	e.Phase = c.state.Phase
	c.state.Phase = PhaseFailed
	c.state.Error = e.Message
	st := c.state
	c.mu.Unlock()

	c.notify(st)
	return st, e
}

func (c *Consumer) resultFor(st State) (State, error) {
	if st.Phase == PhaseFailed {
		return st, &StreamError{Phase: PhaseStreaming, Message: st.Error}
	}
	return st, nil
}

func (c *Consumer) notify(st State) {
	if c.onUpdate != nil {
		c.onUpdate(st)
	}
}

// rejectionMessage extracts {"error": "..."} from a non-2xx response body when present.
func rejectionMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return http.StatusText(resp.StatusCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
