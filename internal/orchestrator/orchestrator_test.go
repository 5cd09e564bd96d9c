package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/pain-assessment/internal/draft"
	"github.com/jonathan/pain-assessment/internal/redflags"
	"github.com/jonathan/pain-assessment/internal/submission"
	"github.com/jonathan/pain-assessment/internal/types"
	"github.com/jonathan/pain-assessment/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type streamTransport struct {
	status int
	body   string
	err    error

	// release, when set, holds Open until it is closed.
	release chan struct{}
	opened  chan struct{}
	once    sync.Once
	calls   atomic.Int32
	payload types.SubmissionPayload
	mu      sync.Mutex
}

func (t *streamTransport) Open(ctx context.Context, payload types.SubmissionPayload) (*http.Response, error) {
	t.calls.Add(1)
	t.mu.Lock()
	t.payload = payload
	t.mu.Unlock()
	if t.opened != nil {
		t.once.Do(func() { close(t.opened) })
	}
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(t.body))}, nil
}

func sse(t *testing.T, events ...types.StreamEvent) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		b.WriteString("data: ")
		b.Write(raw)
		b.WriteString("\n\n")
	}
	return b.String()
}

func newTestOrchestrator(t *testing.T, store draft.Store, transport submission.Transport, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithAutosaveOptions(draft.WithDebounce(10*time.Millisecond), draft.WithMinVisible(0)),
		WithSessionIDFunc(func() string { return "session-test" }),
	}
	o := New(store, transport, append(base, opts...)...)
	t.Cleanup(o.Close)
	return o
}

// quietAutosave keeps timer-driven saves out of tests that compare snapshots.
var quietAutosave = WithAutosaveOptions(draft.WithDebounce(time.Hour))

// fillRequired completes every gated step.
func fillRequired(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.NoError(t, o.UpdateField(FieldUser, types.User{Email: "pat@example.com", Name: "Pat Doe"}))
	_, err := o.AddPoint(types.PainPoint{
		RegionID:         12,
		RegionName:       "Lower back",
		IntensityCurrent: 6,
		Qualities:        []types.PainQuality{types.QualityDullAching},
	})
	require.NoError(t, err)
	require.NoError(t, o.UpdateField(FieldTiming, &types.Timing{Onset: "gradual", TimeOfDay: []string{types.WakesFromSleep}}))
}

func storedDraft(t *testing.T, store draft.Store) []byte {
	t.Helper()
	raw, err := store.Get(context.Background(), draft.Key)
	require.NoError(t, err)
	return raw
}

func TestGoNext_EmptyEmailStaysOnWelcome(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	require.NoError(t, o.UpdateField(FieldUser, types.User{Email: "  ", Name: "Pat"}))

	err := o.GoNext()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, wizard.ErrStepIncomplete)
	assert.Equal(t, types.StepWelcome, verr.Step)

	st := o.Snapshot()
	assert.Equal(t, types.StepWelcome, st.CurrentStep)
	assert.Empty(t, st.CompletedSteps)
	assert.False(t, st.Validation.Valid)
	assert.Equal(t, []string{"Email is required"}, st.Validation.Errors["email"])
}

func TestGoNext_AdvancesAndCompletes(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	fillRequired(t, o)

	require.NoError(t, o.GoNext())
	require.NoError(t, o.GoNext())

	st := o.Snapshot()
	assert.Equal(t, types.StepTiming, st.CurrentStep)
	assert.Equal(t, []types.WizardStep{types.StepWelcome, types.StepPainMapping}, st.CompletedSteps)
	assert.Equal(t, 29, st.CompletionPercent)
	assert.Equal(t, 29, st.Data.CompletionPercent)
}

func TestGoBackAndGoTo(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	assert.False(t, o.GoBack())

	require.NoError(t, o.GoTo(types.StepGoals))
	assert.Equal(t, types.StepGoals, o.Snapshot().CurrentStep)
	assert.Empty(t, o.Snapshot().CompletedSteps)

	assert.True(t, o.GoBack())
	assert.Equal(t, types.StepRedFlags, o.Snapshot().CurrentStep)

	assert.ErrorIs(t, o.GoTo("nowhere"), wizard.ErrUnknownStep)
}

func TestUpdateField_ReclassifiesRedFlags(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	assert.Equal(t, types.UrgencyLow, o.Snapshot().Urgency)

	require.NoError(t, o.UpdateField(FieldAssociated, types.AssociatedSymptoms{SaddleNumbness: true}))
	st := o.Snapshot()
	assert.True(t, st.Data.RedFlags.Any)
	assert.Equal(t, []string{redflags.SaddleAnesthesia}, st.Data.RedFlags.Reasons)
	assert.Equal(t, types.UrgencyHigh, st.Urgency)
	assert.Equal(t, "tel:911", st.Guidance.ActionURL)

	require.NoError(t, o.UpdateField(FieldAssociated, types.AssociatedSymptoms{}))
	require.NoError(t, o.UpdateField(FieldHistory, &types.HistoryContext{Comorbidities: []string{" Cancer "}}))
	st = o.Snapshot()
	assert.Equal(t, []string{redflags.CancerHistory}, st.Data.RedFlags.Reasons)
	assert.Equal(t, types.UrgencyModerate, st.Urgency)
}

func TestUpdateField_TypeChecks(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	before := o.Snapshot()

	assert.ErrorIs(t, o.UpdateField(FieldGoals, "not goals"), ErrFieldType)
	assert.ErrorIs(t, o.UpdateField(FieldUser, (*types.User)(nil)), ErrFieldType)
	assert.ErrorIs(t, o.UpdateField("diet", 1), ErrUnknownField)

	after := o.Snapshot()
	assert.Equal(t, before.Data, after.Data)
	assert.False(t, after.Dirty)
}

func TestUpdateField_ClearsTiming(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	require.NoError(t, o.UpdateField(FieldTiming, types.Timing{Onset: "sudden"}))
	require.NotNil(t, o.Snapshot().Data.Timing)

	require.NoError(t, o.UpdateField(FieldTiming, nil))
	assert.Nil(t, o.Snapshot().Data.Timing)
}

func TestPoints(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})

	p, err := o.AddPoint(types.PainPoint{RegionName: "Neck", IntensityCurrent: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, fixedNow, p.CreatedAt)

	_, err = o.AddPoint(types.PainPoint{ID: p.ID})
	assert.Error(t, err)

	// No quality yet, so the point is flagged but does not block the step.
	assert.Equal(t, []string{p.ID}, o.Snapshot().IncompletePoints)

	require.NoError(t, o.UpdatePoint(p.ID, func(pp *types.PainPoint) {
		pp.Qualities = []types.PainQuality{types.QualitySharp}
	}))
	st := o.Snapshot()
	assert.Empty(t, st.IncompletePoints)
	assert.Equal(t, []types.PainQuality{types.QualitySharp}, st.Data.Points[0].Qualities)

	assert.ErrorIs(t, o.UpdatePoint("missing", func(*types.PainPoint) {}), ErrPointNotFound)
	require.NoError(t, o.RemovePoint(p.ID))
	assert.Empty(t, o.Snapshot().Data.Points)
	assert.ErrorIs(t, o.RemovePoint(p.ID), ErrPointNotFound)
}

func TestSnapshot_DoesNotAlias(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{})
	_, err := o.AddPoint(types.PainPoint{RegionName: "Knee", Qualities: []types.PainQuality{types.QualityDullAching}})
	require.NoError(t, err)

	st := o.Snapshot()
	st.Data.Points[0].Qualities[0] = types.QualityBurning
	st.Data.Points = nil

	again := o.Snapshot()
	require.Len(t, again.Data.Points, 1)
	assert.Equal(t, types.QualityDullAching, again.Data.Points[0].Qualities[0])
}

func TestAutosave_PersistsAndClearsDirty(t *testing.T) {
	store := draft.NewMemoryStore()
	o := newTestOrchestrator(t, store, &streamTransport{})

	require.NoError(t, o.UpdateField(FieldUser, types.User{Email: "pat@example.com", Name: "Pat"}))
	assert.True(t, o.Snapshot().Dirty)

	assert.Eventually(t, func() bool { return !o.Snapshot().Dirty }, time.Second, 5*time.Millisecond)

	st := o.Snapshot()
	require.NotNil(t, st.LastSavedAt)

	snap, ok := draft.Decode(storedDraft(t, store))
	require.True(t, ok)
	assert.Equal(t, "pat@example.com", snap.Data.User.Email)
	assert.Equal(t, types.StepWelcome, snap.CurrentStep)
	require.NotNil(t, snap.SavedAt)
	assert.Equal(t, fixedNow, *snap.SavedAt)
}

// gatedStore blocks Set until released so a mutation can land mid-save.
type gatedStore struct {
	*draft.MemoryStore
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func (s *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	blocked := false
	s.first.Do(func() { blocked = true })
	if blocked {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func TestAutosave_MutationDuringSaveStaysDirty(t *testing.T) {
	store := &gatedStore{MemoryStore: draft.NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(t, store, &streamTransport{})

	require.NoError(t, o.UpdateField(FieldLocale, "en"))
	<-store.entered
	require.NoError(t, o.UpdateField(FieldLocale, "fr"))
	close(store.release)

	// The first save lands but the newer revision keeps the draft dirty until it is saved too.
	assert.Eventually(t, func() bool {
		snap, ok := draft.Decode(storedDraft(t, store.MemoryStore))
		return ok && snap.Data.Locale == "fr" && !o.Snapshot().Dirty
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSaveDraftNowAndLoad(t *testing.T) {
	store := draft.NewMemoryStore()
	o := newTestOrchestrator(t, store, &streamTransport{})
	fillRequired(t, o)
	require.NoError(t, o.UpdateField(FieldAssociated, types.AssociatedSymptoms{Weakness: true}))
	require.NoError(t, o.GoNext())
	require.NoError(t, o.SaveDraftNow(context.Background()))
	want := o.Snapshot()
	assert.False(t, want.Dirty)

	resumed := newTestOrchestrator(t, store, &streamTransport{})
	found, err := resumed.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)

	got := resumed.Snapshot()
	assert.Equal(t, types.StepPainMapping, got.CurrentStep)
	assert.Equal(t, []types.WizardStep{types.StepWelcome}, got.CompletedSteps)
	assert.Equal(t, want.Data.User, got.Data.User)
	assert.Equal(t, want.Data.Points, got.Data.Points)
	assert.Equal(t, want.Data.RedFlags.Reasons, got.Data.RedFlags.Reasons)
	assert.False(t, got.Dirty)
	assert.NotNil(t, got.LastSavedAt)
}

func TestLoad_MalformedDraftIsAbsent(t *testing.T) {
	store := draft.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), draft.Key, []byte("{not json")))

	o := newTestOrchestrator(t, store, &streamTransport{})
	found, err := o.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, types.StepWelcome, o.Snapshot().CurrentStep)
}

func TestClearDraft(t *testing.T) {
	store := draft.NewMemoryStore()
	o := newTestOrchestrator(t, store, &streamTransport{})
	fillRequired(t, o)
	require.NoError(t, o.SaveDraftNow(context.Background()))
	require.NotNil(t, storedDraft(t, store))
	oldID := o.Snapshot().Data.DraftID

	require.NoError(t, o.UpdateField(FieldLocale, "es"))
	require.NoError(t, o.ClearDraft(context.Background()))

	st := o.Snapshot()
	assert.NotEqual(t, oldID, st.Data.DraftID)
	assert.Empty(t, st.Data.Points)
	assert.False(t, st.Dirty)

	// The pending autosave was canceled, so nothing comes back.
	time.Sleep(40 * time.Millisecond)
	assert.Nil(t, storedDraft(t, store))
}

func TestSubmit_SuccessClearsDraft(t *testing.T) {
	store := draft.NewMemoryStore()
	transport := &streamTransport{}
	o := newTestOrchestrator(t, store, transport)
	fillRequired(t, o)
	require.NoError(t, o.SaveDraftNow(context.Background()))

	transport.body = sse(t,
		types.StreamEvent{Event: types.EventStatus, Message: "Analyzing"},
		types.StreamEvent{Event: types.EventDelta, Text: "partial"},
		types.StreamEvent{Event: types.EventComplete, AISummary: "Final summary", SystemRecommendation: types.UrgencyModerate, AssessmentID: "a-1", SessionID: "session-test"},
	)

	var (
		mu     sync.Mutex
		phases []submission.Phase
	)
	unsubscribe := o.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		if n := len(phases); n == 0 || phases[n-1] != st.Submission.Phase {
			phases = append(phases, st.Submission.Phase)
		}
	})
	defer unsubscribe()

	st, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submission.PhaseComplete, st.Phase)
	assert.Equal(t, "Final summary", st.Text)
	assert.Equal(t, "a-1", st.AssessmentID)

	assert.Nil(t, storedDraft(t, store))
	snap := o.Snapshot()
	assert.Equal(t, types.StepWelcome, snap.CurrentStep)
	assert.Empty(t, snap.Data.Points)
	assert.False(t, snap.Submitting)
	assert.Equal(t, submission.PhaseComplete, snap.Submission.Phase)
	mu.Lock()
	assert.Contains(t, phases, submission.PhaseStreaming)
	assert.Equal(t, submission.PhaseComplete, phases[len(phases)-1])
	mu.Unlock()

	transport.mu.Lock()
	payload := transport.payload
	transport.mu.Unlock()
	assert.Equal(t, "session-test", payload.SessionID)
	assert.Equal(t, "pat@example.com", payload.Email)
	assert.True(t, payload.RedFlags.NightPain)
}

func TestSubmit_FailureKeepsDraft(t *testing.T) {
	store := draft.NewMemoryStore()
	transport := &streamTransport{}
	o := newTestOrchestrator(t, store, transport)
	fillRequired(t, o)
	require.NoError(t, o.GoTo(types.StepReview))
	require.NoError(t, o.SaveDraftNow(context.Background()))
	draftID := o.Snapshot().Data.DraftID

	transport.body = sse(t, types.StreamEvent{Event: types.EventError, Message: "model unavailable"})

	st, err := o.Submit(context.Background())
	var serr *submission.StreamError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, submission.PhaseFailed, st.Phase)
	assert.Equal(t, "model unavailable", st.Error)

	snap := o.Snapshot()
	assert.Equal(t, draftID, snap.Data.DraftID)
	assert.Equal(t, types.StepReview, snap.CurrentStep)
	assert.NotNil(t, storedDraft(t, store))

	// Retry is allowed after a failure.
	transport.body = sse(t, types.StreamEvent{Event: types.EventComplete, AISummary: "ok"})
	_, err = o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), transport.calls.Load())
}

func TestSubmit_RejectsIncompleteDraft(t *testing.T) {
	transport := &streamTransport{}
	o := newTestOrchestrator(t, draft.NewMemoryStore(), transport)

	_, err := o.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, types.StepReview, verr.Step)
	assert.Contains(t, verr.Result.Errors, "email")
	assert.Contains(t, verr.Result.Errors, "points")
	assert.NotContains(t, verr.Result.Errors, "timing")
	assert.Zero(t, transport.calls.Load())
}

func TestSubmit_TimingNotRequired(t *testing.T) {
	transport := &streamTransport{}
	o := newTestOrchestrator(t, draft.NewMemoryStore(), transport, quietAutosave)
	require.NoError(t, o.UpdateField(FieldUser, types.User{Email: "pat@example.com", Name: "Pat Doe"}))
	_, err := o.AddPoint(types.PainPoint{RegionID: 3, IntensityCurrent: 4, Qualities: []types.PainQuality{types.QualitySharp}})
	require.NoError(t, err)
	transport.body = sse(t, types.StreamEvent{Event: types.EventComplete, AISummary: "ok"})

	st, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submission.PhaseComplete, st.Phase)
	assert.Equal(t, int32(1), transport.calls.Load())
}

func TestSubmit_RejectsDoubleSubmit(t *testing.T) {
	transport := &streamTransport{
		release: make(chan struct{}),
		opened:  make(chan struct{}),
	}
	o := newTestOrchestrator(t, draft.NewMemoryStore(), transport, quietAutosave)
	fillRequired(t, o)
	transport.body = sse(t, types.StreamEvent{Event: types.EventComplete, AISummary: "done"})

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background())
		done <- err
	}()
	<-transport.opened

	before := o.Snapshot()
	require.True(t, before.Submitting)

	_, err := o.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, before, o.Snapshot())

	close(transport.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), transport.calls.Load())
}

func TestCancelSubmission(t *testing.T) {
	transport := &streamTransport{
		release: make(chan struct{}),
		opened:  make(chan struct{}),
	}
	o := newTestOrchestrator(t, draft.NewMemoryStore(), transport)
	fillRequired(t, o)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(ctx)
		done <- err
	}()
	<-transport.opened
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	st := o.Snapshot()
	assert.False(t, st.Submitting)
	assert.NotEmpty(t, st.Data.Points)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	o := newTestOrchestrator(t, draft.NewMemoryStore(), &streamTransport{}, quietAutosave)

	var calls atomic.Int32
	unsubscribe := o.Subscribe(func(State) { calls.Add(1) })
	require.NoError(t, o.UpdateField(FieldLocale, "en"))
	n := calls.Load()
	assert.GreaterOrEqual(t, n, int32(1))

	unsubscribe()
	require.NoError(t, o.UpdateField(FieldLocale, "de"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}
