package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/jonathan/pain-assessment/internal/submission"
	"github.com/jonathan/pain-assessment/internal/types"
	"github.com/jonathan/pain-assessment/internal/wizard"
)

// removeTimeout bounds the draft removal that follows a completed submission.
const removeTimeout = 5 * time.Second

// Submit validates the welcome and pain-mapping fields, posts the draft and consumes the summary stream. Only one
// submission runs at a time; a second call gets ErrSubmissionInFlight and changes nothing.
//
// On completion the stored draft is removed and a fresh draft starts. On failure the draft
// is kept and the wizard returns to review. On cancellation the state is left as observed.
func (o *Orchestrator) Submit(ctx context.Context) (submission.State, error) {
	o.mu.Lock()
	if o.submitting {
		st := o.submission
		o.mu.Unlock()
		return st, ErrSubmissionInFlight
	}
	if res := wizard.ValidateSubmission(o.data); !res.Valid {
		o.validation = res
		o.mu.Unlock()
		o.publish()
		return submission.State{Phase: submission.PhaseIdle}, &ValidationError{Step: types.StepReview, Result: cloneResult(res)}
	}

	payload := BuildPayload(o.data, o.sessionID())
	opts := append([]submission.Option{submission.WithLogger(o.logger)}, o.consumerOpts...)
	opts = append(opts,
		submission.WithOnUpdate(o.onSubmissionUpdate),
		submission.WithOnComplete(o.onSubmissionComplete),
	)
	consumer := submission.NewConsumer(opts...)
	o.submitting = true
	o.consumer = consumer
	o.submission = consumer.State()
	o.mu.Unlock()
	o.publish()

	o.logger.Info("Orchestrator.Submit: submitting assessment", "session_id", payload.SessionID, "areas", len(payload.PainAreas))
	st, err := consumer.Submit(ctx, o.transport, payload)

	o.mu.Lock()
	o.submitting = false
	o.consumer = nil
	o.submission = st
	if st.Phase == submission.PhaseFailed {
		if _, jerr := o.seq.Jump(types.StepReview); jerr == nil {
			o.validation = wizard.Validate(o.seq.Current(), o.data)
		}
	}
	o.mu.Unlock()

	switch {
	case err == nil:
		o.logger.Info("Orchestrator.Submit: assessment complete", "assessment_id", st.AssessmentID, "urgency", st.Urgency)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.logger.Info("Orchestrator.Submit: submission canceled", "phase", st.Phase)
	default:
		o.logger.Warn("Orchestrator.Submit: submission failed", "error", err, "phase", st.Phase)
	}
	o.publish()
	return st, err
}

// CancelSubmission releases an in-flight submission. The draft is kept.
func (o *Orchestrator) CancelSubmission() {
	o.mu.Lock()
	c := o.consumer
	o.mu.Unlock()
	if c != nil {
		c.Release()
	}
}

func (o *Orchestrator) onSubmissionUpdate(st submission.State) {
	o.mu.Lock()
	if !o.submitting {
		o.mu.Unlock()
		return
	}
	o.submission = st
	o.mu.Unlock()
	o.publish()
}

// onSubmissionComplete runs at most once per attempt, on the completion event.
func (o *Orchestrator) onSubmissionComplete(st submission.State) {
	o.mu.Lock()
	o.resetLocked()
	rev := o.revision
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := o.removeStored(ctx, rev); err != nil {
		o.logger.Warn("Orchestrator.onSubmissionComplete: failed to clear draft", "error", err, "assessment_id", st.AssessmentID)
	}
}
