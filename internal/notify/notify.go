// Package notify tells the clinic (and the patient) about processed assessments.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Record is a processed submission ready to announce.
type Record struct {
	AssessmentID string
	Payload      types.SubmissionPayload
	AISummary    string
	Urgency      types.Urgency
	CreatedAt    time.Time
}

// Notifier delivers one kind of notification.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, rec Record) error
}

// Dispatcher fans a record out to every notifier concurrently.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. Nil notifiers are skipped.
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// Len returns the number of configured notifiers.
func (d *Dispatcher) Len() int {
	return len(d.notifiers)
}

// Dispatch runs every notifier and waits for all of them. A failing notifier does not stop
// the others; the first error is returned after each failure is logged.
func (d *Dispatcher) Dispatch(ctx context.Context, rec Record) error {
	var g errgroup.Group
	for _, n := range d.notifiers {
		g.Go(func() error {
			if err := n.Notify(ctx, rec); err != nil {
				d.logger.Error("Dispatcher.Dispatch: notification failed",
					"notifier", n.Name(), "assessment_id", rec.AssessmentID, "error", err)
				return fmt.Errorf("%s: %w", n.Name(), err)
			}
			d.logger.Debug("Dispatcher.Dispatch: notification sent",
				"notifier", n.Name(), "assessment_id", rec.AssessmentID)
			return nil
		})
	}
	return g.Wait()
}
