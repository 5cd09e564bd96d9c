package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/pain-assessment/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type fakeTransport struct {
	status  int
	body    io.Reader
	err     error
	nilBody bool
	opened  int
}

func (f *fakeTransport) Open(_ context.Context, _ types.SubmissionPayload) (*http.Response, error) {
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	resp := &http.Response{StatusCode: f.status}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if !f.nilBody {
		resp.Body = io.NopCloser(f.body)
	}
	return resp, nil
}

// pipeTransport streams whatever the test writes and aborts the body when ctx ends,
// like a real HTTP body would.
type pipeTransport struct {
	w *io.PipeWriter
	r *io.PipeReader
}

func newPipeTransport() *pipeTransport {
	r, w := io.Pipe()
	return &pipeTransport{r: r, w: w}
}

func (p *pipeTransport) Open(ctx context.Context, _ types.SubmissionPayload) (*http.Response, error) {
	go func() {
		<-ctx.Done()
		p.r.CloseWithError(ctx.Err())
	}()
	return &http.Response{StatusCode: http.StatusOK, Body: p.r}, nil
}

func event(json string) string {
	return "data: " + json + "\n\n"
}

func samplePayload() types.SubmissionPayload {
	return types.SubmissionPayload{SessionID: "session-1", Email: "pat@example.com", FullName: "Pat"}
}

type updates struct {
	mu     sync.Mutex
	states []State
}

func (u *updates) record(s State) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.states = append(u.states, s)
}

func (u *updates) all() []State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]State(nil), u.states...)
}

func TestConsumer_DeltaThenCompleteOverrides(t *testing.T) {
	stream := event(`{"event":"delta","text":"Hello "}`) +
		event(`{"event":"delta","text":"world"}`) +
		event(`{"event":"complete","aiSummary":"Final.","systemRecommendation":"MODERATE_URGENCY","assessmentId":"a-1","sessionId":"session-1"}`)

	var seen updates
	c := NewConsumer(WithOnUpdate(seen.record))
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.NoError(t, err)

	assert.Equal(t, PhaseComplete, st.Phase)
	assert.Equal(t, "Final.", st.Text)
	assert.Equal(t, types.UrgencyModerate, st.Urgency)
	assert.Equal(t, "a-1", st.AssessmentID)
	assert.Equal(t, "session-1", st.SessionID)

	var streamingText string
	for _, s := range seen.all() {
		if s.Phase == PhaseStreaming {
			streamingText = s.Text
		}
	}
	assert.Equal(t, "Hello world", streamingText)
}

func TestConsumer_PhaseSequence(t *testing.T) {
	stream := event(`{"event":"status","message":"Analyzing"}`) + event(`{"event":"complete","aiSummary":"ok"}`)

	var seen updates
	c := NewConsumer(WithOnUpdate(seen.record))
	_, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.NoError(t, err)

	var phases []Phase
	for _, s := range seen.all() {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	assert.Equal(t, []Phase{PhaseConnecting, PhaseStreaming, PhaseComplete}, phases)
	assert.Equal(t, "Analyzing", seen.all()[2].Status)
}

func TestConsumer_EndOfStreamWithoutComplete(t *testing.T) {
	stream := event(`{"event":"status","message":"Analyzing your assessment..."}`)

	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, PhaseStreaming, streamErr.Phase)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, "Analyzing your assessment...", st.Status)
}

func TestConsumer_DuplicateCompleteFinalizesOnce(t *testing.T) {
	stream := event(`{"event":"complete","aiSummary":"first","assessmentId":"a-1"}`) +
		event(`{"event":"complete","aiSummary":"second","assessmentId":"a-2"}`)

	calls := 0
	c := NewConsumer(WithOnComplete(func(State) { calls++ }))
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "first", st.Text)
	assert.Equal(t, "a-1", st.AssessmentID)
}

func TestConsumer_MalformedEventSkipped(t *testing.T) {
	stream := event(`{"event":"delta","text":"A"}`) +
		event(`{"event":"delta","text":`) +
		event(`{"event":"delta","text":"B"}`) +
		event(`{"event":"complete"}`)

	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "AB", st.Text)
}

func TestConsumer_EmptySummaryFallsBackToDeltas(t *testing.T) {
	stream := event(`{"event":"delta","text":"partial summary"}`) +
		event(`{"event":"complete","aiSummary":"","systemRecommendation":"LOW_URGENCY"}`)

	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "partial summary", st.Text)
	assert.Equal(t, types.UrgencyLow, st.Urgency)
}

func TestConsumer_ArbitraryChunkBoundaries(t *testing.T) {
	stream := event(`{"event":"delta","text":"héllo "}`) +
		event(`{"event":"delta","text":"wörld ✓"}`) +
		event(`{"event":"complete","systemRecommendation":"HIGH_URGENCY"}`)

	for _, size := range []int{1, 2, 3, 7, 64} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			c := NewConsumer(WithChunkSize(size))
			st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
			require.NoError(t, err)
			assert.Equal(t, "héllo wörld ✓", st.Text)
			assert.Equal(t, types.UrgencyHigh, st.Urgency)
		})
	}
}

func TestConsumer_SplitAcrossReads(t *testing.T) {
	body := &chunkReader{chunks: []string{
		"data: {\"event\":\"del",
		"ta\",\"text\":\"one\"}\n",
		"\ndata: {\"event\":\"complete\"}\n\n",
	}}
	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: body}, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "one", st.Text)
}

func TestConsumer_CRLFAndCommentsAndTrailingEvent(t *testing.T) {
	stream := ": keep-alive\r\n\r\n" +
		"event: message\r\ndata: {\"event\":\"delta\",\"text\":\"x\"}\r\n\r\n" +
		"data: {\"event\":\"complete\",\"aiSummary\":\"done\"}\n"

	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "done", st.Text)
}

func TestConsumer_ErrorEvent(t *testing.T) {
	stream := event(`{"event":"delta","text":"x"}`) + event(`{"event":"error","message":"Failed to process assessment."}`)

	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, "Failed to process assessment.", st.Error)
}

func TestConsumer_ErrorEventWithoutMessage(t *testing.T) {
	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(event(`{"event":"error"}`))}, samplePayload())
	require.Error(t, err)
	assert.Equal(t, msgServerError, st.Error)
}

func TestConsumer_NonSuccessStatus(t *testing.T) {
	body := strings.NewReader(`{"error":"email is required"}`)
	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{status: http.StatusBadRequest, body: body}, samplePayload())

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, http.StatusBadRequest, streamErr.StatusCode)
	assert.Equal(t, PhaseConnecting, streamErr.Phase)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, "email is required", st.Error)
}

func TestConsumer_MissingBody(t *testing.T) {
	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{nilBody: true}, samplePayload())
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, msgEmptyBody, st.Error)
}

func TestConsumer_TransportError(t *testing.T) {
	c := NewConsumer()
	st, err := c.Submit(context.Background(), &fakeTransport{err: errors.New("connection refused")}, samplePayload())
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, msgUnreachable, st.Error)
}

func TestConsumer_CancellationFreezesState(t *testing.T) {
	pt := newPipeTransport()
	var seen updates
	c := NewConsumer(WithOnUpdate(seen.record))
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		st  State
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := c.Submit(ctx, pt, samplePayload())
		done <- result{st, err}
	}()

	_, err := pt.w.Write([]byte(event(`{"event":"delta","text":"partial"}`)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.State().Text == "partial" }, time.Second, 5*time.Millisecond)

	cancel()
	res := <-done
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.Equal(t, PhaseStreaming, res.st.Phase)
	assert.Equal(t, "partial", res.st.Text)

	count := len(seen.all())
	_, _ = pt.w.Write([]byte(event(`{"event":"delta","text":" more"}`)))
	assert.Equal(t, "partial", c.State().Text)
	assert.Len(t, seen.all(), count)
}

func TestConsumer_ReleaseStopsConsumption(t *testing.T) {
	pt := newPipeTransport()
	c := NewConsumer()

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), pt, samplePayload())
		done <- err
	}()

	_, err := pt.w.Write([]byte(event(`{"event":"status","message":"working"}`)))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.State().Status == "working" }, time.Second, 5*time.Millisecond)

	c.Release()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, PhaseStreaming, c.State().Phase)
}

func TestConsumer_ReadTimeoutFailsClosed(t *testing.T) {
	pt := newPipeTransport()
	c := NewConsumer(WithReadTimeout(50 * time.Millisecond))

	st, err := c.Submit(context.Background(), pt, samplePayload())
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, msgTimeout, st.Error)
}

// stuckBody blocks every Read until the test ends, whatever happens to ctx or Close.
type stuckBody struct {
	unblock chan struct{}
}

func (b *stuckBody) Read([]byte) (int, error) {
	<-b.unblock
	return 0, io.EOF
}

func (b *stuckBody) Close() error { return nil }

// stuckTransport ignores ctx: Open blocks while hold is open, and the body never yields.
type stuckTransport struct {
	hold    chan struct{}
	unblock chan struct{}
	opened  chan struct{}
}

func newStuckTransport(t *testing.T, holdOpen bool) *stuckTransport {
	st := &stuckTransport{unblock: make(chan struct{}), opened: make(chan struct{}, 1)}
	if holdOpen {
		st.hold = st.unblock
	}
	t.Cleanup(func() { close(st.unblock) })
	return st
}

func (s *stuckTransport) Open(context.Context, types.SubmissionPayload) (*http.Response, error) {
	s.opened <- struct{}{}
	if s.hold != nil {
		<-s.hold
	}
	return &http.Response{StatusCode: http.StatusOK, Body: &stuckBody{unblock: s.unblock}}, nil
}

func submitAsync(ctx context.Context, c *Consumer, tr Transport) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, tr, samplePayload())
		done <- err
	}()
	return done
}

func TestConsumer_ReadTimeoutWhenBodyIgnoresContext(t *testing.T) {
	c := NewConsumer(WithReadTimeout(50 * time.Millisecond))
	done := submitAsync(context.Background(), c, newStuckTransport(t, false))

	select {
	case err := <-done:
		var streamErr *StreamError
		require.ErrorAs(t, err, &streamErr)
		assert.Equal(t, msgTimeout, streamErr.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after the read timeout")
	}
	assert.Equal(t, PhaseFailed, c.State().Phase)
	assert.Equal(t, msgTimeout, c.State().Error)
}

func TestConsumer_ReadTimeoutWhenOpenIgnoresContext(t *testing.T) {
	c := NewConsumer(WithReadTimeout(50 * time.Millisecond))
	done := submitAsync(context.Background(), c, newStuckTransport(t, true))

	select {
	case err := <-done:
		var streamErr *StreamError
		require.ErrorAs(t, err, &streamErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after the read timeout")
	}
	assert.Equal(t, PhaseFailed, c.State().Phase)
}

func TestConsumer_ReleaseDuringOpen(t *testing.T) {
	tr := newStuckTransport(t, true)
	c := NewConsumer()
	done := submitAsync(context.Background(), c, tr)
	<-tr.opened

	c.Release()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Release did not abort Open")
	}
	assert.Equal(t, PhaseConnecting, c.State().Phase)
}

func TestConsumer_CancelWhenBodyIgnoresContext(t *testing.T) {
	c := NewConsumer()
	ctx, cancel := context.WithCancel(context.Background())
	tr := newStuckTransport(t, false)
	done := submitAsync(ctx, c, tr)
	<-tr.opened

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not stop Submit")
	}
}

func TestConsumer_OversizedEvent(t *testing.T) {
	stream := "data: " + strings.Repeat("x", 256)
	c := NewConsumer(WithMaxEventSize(64))
	st, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(stream)}, samplePayload())
	require.Error(t, err)
	assert.Equal(t, msgEventTooLarge, st.Error)
}

func TestConsumer_SingleUse(t *testing.T) {
	c := NewConsumer()
	_, _ = c.Submit(context.Background(), &fakeTransport{body: strings.NewReader(event(`{"event":"complete"}`))}, samplePayload())
	_, err := c.Submit(context.Background(), &fakeTransport{body: strings.NewReader("")}, samplePayload())
	assert.ErrorIs(t, err, ErrConsumerUsed)
}

func TestHTTPTransport_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StreamPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, ev := range []string{
			`{"event":"status","message":"Analyzing your assessment..."}`,
			`{"event":"delta","text":"Summary "}`,
			`{"event":"delta","text":"text"}`,
			`{"event":"complete","aiSummary":"Summary text","systemRecommendation":"LOW_URGENCY","assessmentId":"a-9","sessionId":"session-1"}`,
		} {
			fmt.Fprint(w, event(ev))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c := NewConsumer()
	st, err := c.Submit(context.Background(), NewHTTPTransport(srv.URL+"/"), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, st.Phase)
	assert.Equal(t, "Summary text", st.Text)
	assert.Equal(t, "a-9", st.AssessmentID)
}
