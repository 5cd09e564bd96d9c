// Package orchestrator owns one in-progress assessment. It ties the wizard, the red-flag
// classifier, the autosaver and the submission consumer together and publishes a read-only
// State to subscribers after every change.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/pain-assessment/internal/draft"
	"github.com/jonathan/pain-assessment/internal/redflags"
	"github.com/jonathan/pain-assessment/internal/submission"
	"github.com/jonathan/pain-assessment/internal/types"
	"github.com/jonathan/pain-assessment/internal/wizard"
)

// State is what the presentation layer renders.
type State struct {
	Data              types.AssessmentData `json:"data"`
	CurrentStep       types.WizardStep     `json:"currentStep"`
	CompletedSteps    []types.WizardStep   `json:"completedSteps"`
	CompletionPercent int                  `json:"completionPercent"`
	Validation        wizard.Result        `json:"validation"`
	IncompletePoints  []string             `json:"incompletePoints,omitempty"`
	Urgency           types.Urgency        `json:"urgency"`
	Guidance          redflags.Guidance    `json:"guidance"`
	Dirty             bool                 `json:"dirty"`
	Saving            bool                 `json:"saving"`
	LastSavedAt       *time.Time           `json:"lastSavedAt,omitempty"`
	Submitting        bool                 `json:"submitting"`
	Submission        submission.State     `json:"submission"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator and the components it creates.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithAutosaveOptions passes options through to the autosaver.
func WithAutosaveOptions(opts ...draft.AutosaveOption) Option {
	return func(o *Orchestrator) { o.autosaveOpts = append(o.autosaveOpts, opts...) }
}

// WithConsumerOptions passes options through to each submission consumer.
func WithConsumerOptions(opts ...submission.Option) Option {
	return func(o *Orchestrator) { o.consumerOpts = append(o.consumerOpts, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSessionIDFunc replaces the session id generator used for submissions.
func WithSessionIDFunc(fn func() string) Option {
	return func(o *Orchestrator) { o.sessionID = fn }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	store        draft.Store
	transport    submission.Transport
	logger       *slog.Logger
	now          func() time.Time
	sessionID    func() string
	autosaveOpts []draft.AutosaveOption
	consumerOpts []submission.Option
	autosaver    *draft.Autosaver

	// persistMu orders draft writes against ClearDraft so a save that started before a
	// clear cannot bring the draft back.
	persistMu  sync.Mutex
	clearedRev uint64

	mu          sync.Mutex
	data        types.AssessmentData
	seq         *wizard.Sequencer
	validation  wizard.Result
	revision    uint64
	dirty       bool
	lastSavedAt *time.Time
	submitting  bool
	consumer    *submission.Consumer
	submission  submission.State

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSub     int
}

// New returns an Orchestrator holding a fresh draft. Call Load to resume a stored one.
func New(store draft.Store, transport submission.Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		transport:   transport,
		logger:      slog.Default(),
		now:         time.Now,
		subscribers: make(map[int]func(State)),
		submission:  submission.State{Phase: submission.PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessionID == nil {
		o.sessionID = func() string { return NewSessionID(o.now()) }
	}

	o.seq = wizard.NewSequencer(func(step types.WizardStep) bool {
		// Called from GoNext with o.mu held.
		return wizard.Validate(step, o.data).Valid
	})
	o.data = o.freshData()
	o.validation = wizard.Validate(o.seq.Current(), o.data)

	autosaveOpts := append([]draft.AutosaveOption{
		draft.WithLogger(o.logger),
		draft.WithOnSaved(o.onSaved),
		draft.WithOnSavingChanged(func(bool) { o.publish() }),
	}, o.autosaveOpts...)
	o.autosaver = draft.NewAutosaver(o.persist, autosaveOpts...)
	return o
}

func (o *Orchestrator) freshData() types.AssessmentData {
	now := o.now().UTC()
	return types.AssessmentData{
		DraftID:   uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		RedFlags:  redflags.EvaluateAt(types.AssociatedSymptoms{}, types.HistoryContext{}, now),
	}
}

// Load resumes the stored draft if there is one. It reports whether a draft was found.
// A malformed stored value is treated as absent.
func (o *Orchestrator) Load(ctx context.Context) (bool, error) {
	snap, ok, err := draft.Load(ctx, o.store)
	if err != nil {
		return false, fmt.Errorf("failed to load draft: %w", err)
	}
	if !ok {
		return false, nil
	}

	o.mu.Lock()
	o.data = snap.Data
	o.data.RedFlags = redflags.EvaluateAt(o.data.Associated, o.data.History, o.now().UTC())
	o.seq.Restore(snap.CurrentStep, snap.CompletedSteps)
	o.data.CompletionPercent = o.seq.CompletionPercent()
	o.lastSavedAt = snap.SavedAt
	o.dirty = false
	o.revision++
	o.validation = wizard.Validate(o.seq.Current(), o.data)
	o.mu.Unlock()

	o.logger.Info("Orchestrator.Load: resumed draft", "step", snap.CurrentStep, "completed", len(snap.CompletedSteps))
	o.publish()
	return true, nil
}

// Snapshot returns the current state. The returned value does not alias internal state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() State {
	urgency := redflags.UrgencyLevel(o.data.RedFlags)
	return State{
		Data:              o.data.Clone(),
		CurrentStep:       o.seq.Current(),
		CompletedSteps:    o.seq.Completed(),
		CompletionPercent: o.seq.CompletionPercent(),
		Validation:        cloneResult(o.validation),
		IncompletePoints:  wizard.IncompletePoints(o.data),
		Urgency:           urgency,
		Guidance:          redflags.GuidanceFor(urgency),
		Dirty:             o.dirty,
		Saving:            o.autosaver.Saving(),
		LastSavedAt:       cloneTime(o.lastSavedAt),
		Submitting:        o.submitting,
		Submission:        o.submission,
	}
}

// Subscribe registers fn to receive the state after every change. The returned function
// removes the subscription.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subscribers, id)
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) publish() {
	o.subMu.Lock()
	if len(o.subscribers) == 0 {
		o.subMu.Unlock()
		return
	}
	fns := make([]func(State), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	st := o.Snapshot()
	for _, fn := range fns {
		fn(st)
	}
}

// UpdateField replaces one section of the draft. Pointer values are accepted for every
// field; a nil *types.Timing clears timing.
func (o *Orchestrator) UpdateField(field Field, value any) error {
	o.mu.Lock()
	if err := applyField(&o.data, field, value); err != nil {
		o.mu.Unlock()
		return err
	}
	if field.affectsRedFlags() {
		o.data.RedFlags = redflags.EvaluateAt(o.data.Associated, o.data.History, o.now().UTC())
	}
	o.touchLocked()
	o.mu.Unlock()

	o.publish()
	return nil
}

// AddPoint appends a pain point. An empty ID is filled in.
func (o *Orchestrator) AddPoint(p types.PainPoint) (types.PainPoint, error) {
	now := o.now().UTC()
	p = p.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	o.mu.Lock()
	if slices.ContainsFunc(o.data.Points, func(existing types.PainPoint) bool { return existing.ID == p.ID }) {
		o.mu.Unlock()
		return types.PainPoint{}, fmt.Errorf("failed to add point %s: duplicate id", p.ID)
	}
	o.data.Points = append(o.data.Points, p)
	o.touchLocked()
	o.mu.Unlock()

	o.publish()
	return p.Clone(), nil
}

// UpdatePoint applies fn to a copy of the point with id and stores the result.
func (o *Orchestrator) UpdatePoint(id string, fn func(*types.PainPoint)) error {
	o.mu.Lock()
	idx := slices.IndexFunc(o.data.Points, func(p types.PainPoint) bool { return p.ID == id })
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("failed to update point %s: %w", id, ErrPointNotFound)
	}
	p := o.data.Points[idx].Clone()
	fn(&p)
	p.ID = id
	p.UpdatedAt = o.now().UTC()
	o.data.Points[idx] = p
	o.touchLocked()
	o.mu.Unlock()

	o.publish()
	return nil
}

// RemovePoint deletes the point with id.
func (o *Orchestrator) RemovePoint(id string) error {
	o.mu.Lock()
	idx := slices.IndexFunc(o.data.Points, func(p types.PainPoint) bool { return p.ID == id })
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("failed to remove point %s: %w", id, ErrPointNotFound)
	}
	o.data.Points = slices.Delete(o.data.Points, idx, idx+1)
	o.touchLocked()
	o.mu.Unlock()

	o.publish()
	return nil
}

// GoNext advances when the current step validates. Otherwise the step is unchanged, the
// errors are published and a *ValidationError is returned.
func (o *Orchestrator) GoNext() error {
	o.mu.Lock()
	before := o.seq.Current()
	step, err := o.seq.Advance()
	if err != nil {
		o.validation = wizard.Validate(before, o.data)
		verr := &ValidationError{Step: before, Result: cloneResult(o.validation)}
		o.mu.Unlock()
		o.publish()
		return verr
	}
	if step == before {
		o.mu.Unlock()
		return nil
	}
	o.navigatedLocked()
	o.mu.Unlock()

	o.publish()
	return nil
}

// GoBack moves one step back. It reports false on the first step.
func (o *Orchestrator) GoBack() bool {
	o.mu.Lock()
	if _, moved := o.seq.Retreat(); !moved {
		o.mu.Unlock()
		return false
	}
	o.navigatedLocked()
	o.mu.Unlock()

	o.publish()
	return true
}

// GoTo makes step current without validating or completing anything.
func (o *Orchestrator) GoTo(step types.WizardStep) error {
	o.mu.Lock()
	changed, err := o.seq.Jump(step)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("failed to go to %q: %w", step, err)
	}
	if !changed {
		o.mu.Unlock()
		return nil
	}
	o.navigatedLocked()
	o.mu.Unlock()

	o.publish()
	return nil
}

// navigatedLocked records a step change. The position is part of the draft, so it is
// persisted like any other mutation.
func (o *Orchestrator) navigatedLocked() {
	o.data.CompletionPercent = o.seq.CompletionPercent()
	o.markDirtyLocked()
	o.validation = wizard.Validate(o.seq.Current(), o.data)
}

// touchLocked records a data mutation.
func (o *Orchestrator) touchLocked() {
	o.data.UpdatedAt = o.now().UTC()
	o.markDirtyLocked()
	o.validation = wizard.Validate(o.seq.Current(), o.data)
}

func (o *Orchestrator) markDirtyLocked() {
	o.revision++
	o.dirty = true
	o.autosaver.OnDirty(o.draftSnapshotLocked())
}

func (o *Orchestrator) draftSnapshotLocked() draft.Snapshot {
	return draft.Snapshot{
		Data:           o.data.Clone(),
		CurrentStep:    o.seq.Current(),
		CompletedSteps: o.seq.Completed(),
		Revision:       o.revision,
	}
}

// persist is the autosaver's write path.
func (o *Orchestrator) persist(ctx context.Context, snap draft.Snapshot) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	if snap.Revision <= o.clearedRev {
		o.logger.Debug("Orchestrator.persist: skipping save from before clear", "revision", snap.Revision)
		return nil
	}
	at := o.now().UTC()
	snap.SavedAt = &at
	if err := draft.Save(ctx, o.store, snap); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// onSaved clears the dirty flag only when nothing changed since the saved snapshot was
// taken. If the newer state has no save scheduled it is rescheduled.
func (o *Orchestrator) onSaved(snap draft.Snapshot, at time.Time) {
	o.mu.Lock()
	if snap.Revision <= o.clearedRevision() {
		o.mu.Unlock()
		return
	}
	o.lastSavedAt = &at
	if snap.Revision == o.revision {
		o.dirty = false
	} else if !o.autosaver.Pending() {
		o.autosaver.OnDirty(o.draftSnapshotLocked())
	}
	o.mu.Unlock()

	o.publish()
}

func (o *Orchestrator) clearedRevision() uint64 {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	return o.clearedRev
}

// SaveDraftNow persists the current state immediately, replacing any pending autosave.
func (o *Orchestrator) SaveDraftNow(ctx context.Context) error {
	o.mu.Lock()
	snap := o.draftSnapshotLocked()
	o.autosaver.Cancel()
	o.mu.Unlock()

	return o.autosaver.SaveNow(ctx, snap)
}

// Flush persists a pending autosave right away. It is a no-op when nothing is pending.
func (o *Orchestrator) Flush(ctx context.Context) error {
	return o.autosaver.Flush(ctx)
}

// ClearDraft cancels pending saves, removes the stored draft and starts over.
func (o *Orchestrator) ClearDraft(ctx context.Context) error {
	o.mu.Lock()
	o.resetLocked()
	rev := o.revision
	o.mu.Unlock()

	err := o.removeStored(ctx, rev)
	o.publish()
	return err
}

// resetLocked discards the in-memory draft. The stored copy is left to the caller.
func (o *Orchestrator) resetLocked() {
	o.autosaver.Cancel()
	o.data = o.freshData()
	o.seq.Reset()
	o.revision++
	o.dirty = false
	o.lastSavedAt = nil
	o.validation = wizard.Validate(o.seq.Current(), o.data)
}

func (o *Orchestrator) removeStored(ctx context.Context, rev uint64) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	o.clearedRev = rev
	if err := o.store.Remove(ctx, draft.Key); err != nil {
		return fmt.Errorf("failed to remove draft: %w", err)
	}
	return nil
}

// Close stops the autosaver and releases an in-flight submission. A pending save is
// dropped; call Flush first to keep it.
func (o *Orchestrator) Close() {
	o.autosaver.Stop()
	o.CancelSubmission()
}

func cloneResult(r wizard.Result) wizard.Result {
	out := wizard.Result{Valid: r.Valid}
	if r.Errors != nil {
		out.Errors = make(map[string][]string, len(r.Errors))
		for k, v := range r.Errors {
			out.Errors[k] = slices.Clone(v)
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
