package wizard

import (
	"errors"
	"math"

	"github.com/jonathan/pain-assessment/internal/types"
)

var (
	// ErrStepIncomplete is returned by Advance when the gate rejects the current step.
	ErrStepIncomplete = errors.New("current step is incomplete")
	// ErrUnknownStep is returned by Jump for values outside the step order.
	ErrUnknownStep = errors.New("unknown wizard step")
)

// Gate reports whether the wizard may leave step.
type Gate func(step types.WizardStep) bool

// Sequencer tracks the current step and the set of completed steps.
// It is not safe for concurrent use; the orchestrator serializes access.
type Sequencer struct {
	steps     []types.WizardStep
	index     int
	completed map[types.WizardStep]struct{}
	gate      Gate
}

// NewSequencer starts at the first step. A nil gate allows every advance.
func NewSequencer(gate Gate) *Sequencer {
	if gate == nil {
		gate = func(types.WizardStep) bool { return true }
	}
	return &Sequencer{
		steps:     types.AllSteps(),
		completed: make(map[types.WizardStep]struct{}),
		gate:      gate,
	}
}

// Current returns the active step.
func (s *Sequencer) Current() types.WizardStep {
	return s.steps[s.index]
}

// Advance moves one step forward and marks the step left as completed. On the terminal step
// it does nothing. If the gate rejects the current step, the step is unchanged and
// ErrStepIncomplete is returned.
func (s *Sequencer) Advance() (types.WizardStep, error) {
	if s.index == len(s.steps)-1 {
		return s.Current(), nil
	}
	if !s.gate(s.Current()) {
		return s.Current(), ErrStepIncomplete
	}
	s.completed[s.Current()] = struct{}{}
	s.index++
	return s.Current(), nil
}

// Retreat moves one step back. It reports false at the first step.
func (s *Sequencer) Retreat() (types.WizardStep, bool) {
	if s.index == 0 {
		return s.Current(), false
	}
	s.index--
	return s.Current(), true
}

// Jump makes step current without touching the completed set and reports whether the
// current step changed.
func (s *Sequencer) Jump(step types.WizardStep) (bool, error) {
	idx := step.Index()
	if idx < 0 {
		return false, ErrUnknownStep
	}
	changed := idx != s.index
	s.index = idx
	return changed, nil
}

// IsCompleted reports whether step has been completed.
func (s *Sequencer) IsCompleted(step types.WizardStep) bool {
	_, ok := s.completed[step]
	return ok
}

// Completed returns the completed steps in step order.
func (s *Sequencer) Completed() []types.WizardStep {
	out := make([]types.WizardStep, 0, len(s.completed))
	for _, step := range s.steps {
		if _, ok := s.completed[step]; ok {
			out = append(out, step)
		}
	}
	return out
}

// CompletionPercent is round(100 * completed / (N-1)). The terminal step is reached, not
// completed, so it never counts.
func (s *Sequencer) CompletionPercent() int {
	denom := len(s.steps) - 1
	if denom <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(len(s.completed)) / float64(denom)))
	return min(pct, 100)
}

// Restore replaces the position and completed set, discarding unknown values. An unknown
// current step falls back to the first step.
func (s *Sequencer) Restore(current types.WizardStep, completed []types.WizardStep) {
	s.index = max(current.Index(), 0)
	s.completed = make(map[types.WizardStep]struct{}, len(completed))
	for _, step := range completed {
		if step.Valid() {
			s.completed[step] = struct{}{}
		}
	}
}

// Reset returns to the first step with nothing completed.
func (s *Sequencer) Reset() {
	s.Restore(types.StepWelcome, nil)
}
